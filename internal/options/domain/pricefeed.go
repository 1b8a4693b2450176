package domain

import (
	"github.com/shopspring/decimal"
)

// PriceScale PUT 抵押要求中的价格缩放因子 10^8
var PriceScale = decimal.New(1, 8)

// PriceFeed 价格源条目，按 symbol 原地覆盖，不保留历史
type PriceFeed struct {
	Symbol    string `json:"symbol"`
	Price     uint64 `json:"price"`
	Timestamp uint64 `json:"timestamp"` // 账本高度
	Source    string `json:"source"`
}

// RequiredCollateral 开仓所需最低抵押。
// CALL 为行权价；PUT 为 floor(strike * 10^8 / price)，price 取参考交易对现价。
// 用 decimal 计算，避免 strike * 10^8 溢出 uint64。
func RequiredCollateral(t OptionType, strike, price uint64) (decimal.Decimal, error) {
	switch t {
	case OptionTypeCall:
		return decimal.NewFromUint64(strike), nil
	case OptionTypePut:
		if price == 0 {
			return decimal.Zero, ErrInvalidPrice
		}
		return decimal.NewFromUint64(strike).Mul(PriceScale).Div(decimal.NewFromUint64(price)).Floor(), nil
	}
	return decimal.Zero, ErrInvalidOptionType
}

// CheckCollateral 校验抵押充足
func CheckCollateral(t OptionType, collateral, strike, price uint64) error {
	required, err := RequiredCollateral(t, strike, price)
	if err != nil {
		return err
	}
	if decimal.NewFromUint64(collateral).LessThan(required) {
		return ErrInsufficientCollateral
	}
	return nil
}
