// Package domain 链上期权合约领域模型：期权登记、持仓账本、价格源与白名单
package domain

import (
	"fmt"
	"strings"
)

// OptionType 期权类型
type OptionType int8

const (
	OptionTypeCall OptionType = 1
	OptionTypePut  OptionType = 2
)

func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "CALL"
	case OptionTypePut:
		return "PUT"
	}
	return "UNKNOWN"
}

func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// ParseOptionType 解析 "CALL" / "PUT"，大小写不敏感
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL":
		return OptionTypeCall, nil
	case "PUT":
		return OptionTypePut, nil
	}
	return 0, ErrInvalidOptionType
}

func (t OptionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidOptionType
	}
	return []byte(t.String()), nil
}

func (t *OptionType) UnmarshalText(b []byte) error {
	v, err := ParseOptionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// OptionState 期权状态。过期不落库，按调用时高度动态判断
type OptionState int8

const (
	OptionStateActive    OptionState = 1
	OptionStateExercised OptionState = 2
)

func (s OptionState) String() string {
	switch s {
	case OptionStateActive:
		return "ACTIVE"
	case OptionStateExercised:
		return "EXERCISED"
	}
	return "UNKNOWN"
}

func (s OptionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OptionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*s = OptionStateActive
	case "EXERCISED":
		*s = OptionStateExercised
	default:
		return fmt.Errorf("unknown option state %q", string(b))
	}
	return nil
}

// Option 期权聚合根
// Writer、Asset、CollateralAmount、StrikePrice、Premium、Expiry、Type 创建后不可变；
// Holder 至多设置一次，IsExercised 只能由 false 变为 true。
type Option struct {
	ID               uint64      `json:"id"`
	Writer           string      `json:"writer"`
	Holder           string      `json:"holder,omitempty"` // 空表示尚无持有人
	Asset            string      `json:"asset"`
	CollateralAmount uint64      `json:"collateral_amount"`
	StrikePrice      uint64      `json:"strike_price"`
	Premium          uint64      `json:"premium"`
	Expiry           uint64      `json:"expiry"`
	IsExercised      bool        `json:"is_exercised"`
	Type             OptionType  `json:"option_type"`
	State            OptionState `json:"state"`
}

// WriteParams 开仓参数
type WriteParams struct {
	Asset            string
	CollateralAmount uint64
	StrikePrice      uint64
	Premium          uint64
	Expiry           uint64
	Type             OptionType
}

// NewOption 创建 ACTIVE 状态、无持有人的期权
func NewOption(id uint64, writer string, p WriteParams) *Option {
	return &Option{
		ID:               id,
		Writer:           writer,
		Asset:            p.Asset,
		CollateralAmount: p.CollateralAmount,
		StrikePrice:      p.StrikePrice,
		Premium:          p.Premium,
		Expiry:           p.Expiry,
		Type:             p.Type,
		State:            OptionStateActive,
	}
}

func (o *Option) HasHolder() bool { return o.Holder != "" }

// Expired 当前高度达到或超过到期高度即视为过期
func (o *Option) Expired(height uint64) bool { return height >= o.Expiry }

// CheckAsset 买入与行权必须使用开仓时的结算资产
func (o *Option) CheckAsset(asset string) error {
	if asset != o.Asset {
		return ErrAssetMismatch
	}
	return nil
}

// AssignHolder 买入：设置持有人
func (o *Option) AssignHolder(buyer string, height uint64) error {
	if o.HasHolder() {
		return ErrAlreadyHeld
	}
	if o.Expired(height) {
		return ErrOptionExpired
	}
	o.Holder = buyer
	return nil
}

// CheckExercisable 行权前置条件，按顺序检查
func (o *Option) CheckExercisable(caller string, height uint64) error {
	if !o.HasHolder() || caller != o.Holder {
		return ErrNotHolder
	}
	if o.IsExercised {
		return ErrAlreadyExercised
	}
	if o.Expired(height) {
		return ErrOptionExpired
	}
	return nil
}

// MarkExercised 进入终态
func (o *Option) MarkExercised() {
	o.IsExercised = true
	o.State = OptionStateExercised
}

// Settlement 计算行权结算：payout 给持有人，remainder 退回卖方，二者之和恒等于抵押
func (o *Option) Settlement(price uint64) (payout, remainder uint64) {
	var profit uint64
	switch o.Type {
	case OptionTypeCall:
		if price > o.StrikePrice {
			profit = price - o.StrikePrice
		}
	case OptionTypePut:
		if o.StrikePrice > price {
			profit = o.StrikePrice - price
		}
	}
	payout = min(profit, o.CollateralAmount)
	return payout, o.CollateralAmount - payout
}
