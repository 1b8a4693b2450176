package mysql

import (
	"time"

	"gorm.io/gorm"
)

// OptionModel 期权登记表
type OptionModel struct {
	gorm.Model
	OptionID         uint64 `gorm:"column:option_id;uniqueIndex;not null"`
	Writer           string `gorm:"column:writer;type:varchar(64);index;not null"`
	Holder           string `gorm:"column:holder;type:varchar(64);index"`
	Asset            string `gorm:"column:asset;type:varchar(160);not null"`
	CollateralAmount uint64 `gorm:"column:collateral_amount;not null"`
	StrikePrice      uint64 `gorm:"column:strike_price;not null"`
	Premium          uint64 `gorm:"column:premium;not null"`
	Expiry           uint64 `gorm:"column:expiry;index;not null"`
	IsExercised      bool   `gorm:"column:is_exercised;not null;default:false"`
	OptionType       string `gorm:"column:option_type;type:varchar(8);not null"`
	State            string `gorm:"column:state;type:varchar(16);not null"`
}

func (OptionModel) TableName() string { return "options" }

// PositionModel 持仓账本
type PositionModel struct {
	gorm.Model
	User                  string   `gorm:"column:principal;type:varchar(64);uniqueIndex;not null"`
	WrittenOptions        []uint64 `gorm:"column:written_options;type:text;serializer:json"`
	HeldOptions           []uint64 `gorm:"column:held_options;type:text;serializer:json"`
	TotalCollateralLocked uint64   `gorm:"column:total_collateral_locked;not null;default:0"`
}

func (PositionModel) TableName() string { return "option_positions" }

// PriceFeedModel 价格源
type PriceFeedModel struct {
	gorm.Model
	Symbol    string `gorm:"column:symbol;type:varchar(32);uniqueIndex;not null"`
	Price     uint64 `gorm:"column:price;not null"`
	Timestamp uint64 `gorm:"column:timestamp;not null"`
	Source    string `gorm:"column:source;type:varchar(64);not null"`
}

func (PriceFeedModel) TableName() string { return "price_feeds" }

// WhitelistModel 资产与交易对白名单，按 kind 区分
type WhitelistModel struct {
	gorm.Model
	Kind     string `gorm:"column:kind;type:varchar(16);uniqueIndex:idx_whitelist_kind_key;not null"`
	ItemKey  string `gorm:"column:item_key;type:varchar(160);uniqueIndex:idx_whitelist_kind_key;not null"`
	Approved bool   `gorm:"column:approved;not null"`
}

func (WhitelistModel) TableName() string { return "whitelist_entries" }

// ProtocolStateModel 合约标量，单行（id = 1）
type ProtocolStateModel struct {
	ID              uint   `gorm:"primaryKey;autoIncrement:false"`
	Owner           string `gorm:"column:owner;type:varchar(64);not null"`
	NextOptionID    uint64 `gorm:"column:next_option_id;not null"`
	ProtocolFeeRate uint64 `gorm:"column:protocol_fee_rate;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ProtocolStateModel) TableName() string { return "protocol_state" }

const protocolRowID = 1

// Models 需要迁移的全部模型
func Models() []any {
	return []any{
		&OptionModel{},
		&PositionModel{},
		&PriceFeedModel{},
		&WhitelistModel{},
		&ProtocolStateModel{},
	}
}
