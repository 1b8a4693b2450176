package application

import "github.com/wyfcoding/optionsvault/internal/options/domain"

// WriteCommand 开仓
type WriteCommand struct {
	Asset            string
	CollateralAmount uint64
	StrikePrice      uint64
	Premium          uint64
	Expiry           uint64
	Type             domain.OptionType
}

// BuyCommand 买入
type BuyCommand struct {
	Asset    string
	OptionID uint64
}

// ExerciseCommand 行权
type ExerciseCommand struct {
	Asset    string
	OptionID uint64
}

// ExerciseResult 行权结算结果
type ExerciseResult struct {
	OptionID  uint64 `json:"option_id"`
	Price     uint64 `json:"price"`
	Payout    uint64 `json:"payout"`
	Remainder uint64 `json:"remainder"`
}
