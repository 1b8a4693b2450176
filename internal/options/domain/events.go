package domain

import "time"

// 事件类型，同时作为 Kafka topic 后缀
const (
	OptionWrittenEventType     = "options.written"
	OptionBoughtEventType      = "options.bought"
	OptionExercisedEventType   = "options.exercised"
	PriceFeedUpdatedEventType  = "pricefeed.updated"
	GovernanceChangedEventType = "governance.changed"
)

// OptionWrittenEvent 开仓事件
type OptionWrittenEvent struct {
	OptionID         uint64    `json:"option_id"`
	Writer           string    `json:"writer"`
	Asset            string    `json:"asset"`
	Type             string    `json:"option_type"`
	CollateralAmount uint64    `json:"collateral_amount"`
	StrikePrice      uint64    `json:"strike_price"`
	Premium          uint64    `json:"premium"`
	Expiry           uint64    `json:"expiry"`
	Height           uint64    `json:"height"`
	OccurredOn       time.Time `json:"occurred_on"`
}

// OptionBoughtEvent 买入事件
type OptionBoughtEvent struct {
	OptionID   uint64    `json:"option_id"`
	Holder     string    `json:"holder"`
	Writer     string    `json:"writer"`
	Premium    uint64    `json:"premium"`
	Height     uint64    `json:"height"`
	OccurredOn time.Time `json:"occurred_on"`
}

// OptionExercisedEvent 行权事件
type OptionExercisedEvent struct {
	OptionID   uint64    `json:"option_id"`
	Holder     string    `json:"holder"`
	Writer     string    `json:"writer"`
	Price      uint64    `json:"price"`
	Payout     uint64    `json:"payout"`
	Remainder  uint64    `json:"remainder"`
	Height     uint64    `json:"height"`
	OccurredOn time.Time `json:"occurred_on"`
}

// PriceFeedUpdatedEvent 价格更新事件
type PriceFeedUpdatedEvent struct {
	Symbol     string    `json:"symbol"`
	Price      uint64    `json:"price"`
	Timestamp  uint64    `json:"timestamp"`
	Source     string    `json:"source"`
	OccurredOn time.Time `json:"occurred_on"`
}

// GovernanceChangedEvent 治理参数变更事件（费率、白名单）
type GovernanceChangedEvent struct {
	Setting    string    `json:"setting"` // fee_rate / asset / symbol
	Key        string    `json:"key,omitempty"`
	Value      string    `json:"value"`
	Caller     string    `json:"caller"`
	OccurredOn time.Time `json:"occurred_on"`
}
