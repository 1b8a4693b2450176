package domain

// Position 用户持仓账本：写出与持有的期权 ID（仅作反向引用），以及累计锁定抵押
type Position struct {
	User    string        `json:"user"`
	Written BoundedIDList `json:"written_options"`
	Held    BoundedIDList `json:"held_options"`
	// 只在开仓时累加，行权或过期后不扣减
	TotalCollateralLocked uint64 `json:"total_collateral_locked"`
}

// NewPosition 空持仓
func NewPosition(user string) *Position {
	return &Position{User: user}
}

// RecordWrite 记录一笔开仓，列表已满时不做任何修改
func (p *Position) RecordWrite(optionID, collateral uint64) error {
	if err := p.Written.Push(optionID); err != nil {
		return err
	}
	p.TotalCollateralLocked += collateral
	return nil
}

// RecordHold 记录一笔买入
func (p *Position) RecordHold(optionID uint64) error {
	return p.Held.Push(optionID)
}
