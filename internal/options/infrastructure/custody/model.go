package custody

import (
	"gorm.io/gorm"
)

// AssetModel 已登记的结算资产
type AssetModel struct {
	gorm.Model
	AssetID     string `gorm:"column:asset_id;type:varchar(160);uniqueIndex;not null"`
	Name        string `gorm:"column:name;type:varchar(64);not null"`
	Symbol      string `gorm:"column:symbol;type:varchar(32);not null"`
	Decimals    uint8  `gorm:"column:decimals;not null"`
	URI         string `gorm:"column:uri;type:varchar(255)"`
	TotalSupply uint64 `gorm:"column:total_supply;not null;default:0"`
}

func (AssetModel) TableName() string { return "custody_assets" }

// BalanceModel 资产库余额，(asset_id, owner) 唯一
type BalanceModel struct {
	gorm.Model
	AssetID string `gorm:"column:asset_id;type:varchar(160);uniqueIndex:idx_balance_asset_owner;not null"`
	Owner   string `gorm:"column:owner;type:varchar(64);uniqueIndex:idx_balance_asset_owner;not null"`
	Balance uint64 `gorm:"column:balance;not null;default:0"`
}

func (BalanceModel) TableName() string { return "custody_balances" }

// TransferModel 转账流水
type TransferModel struct {
	gorm.Model
	TransferID int64  `gorm:"column:transfer_id;uniqueIndex;not null"`
	AssetID    string `gorm:"column:asset_id;type:varchar(160);index;not null"`
	FromOwner  string `gorm:"column:from_owner;type:varchar(64);index"` // 铸造时为空
	ToOwner    string `gorm:"column:to_owner;type:varchar(64);index;not null"`
	Amount     uint64 `gorm:"column:amount;not null"`
	Memo       string `gorm:"column:memo;type:varchar(255)"`
}

func (TransferModel) TableName() string { return "custody_transfers" }

// Models 需要迁移的全部模型
func Models() []any {
	return []any{&AssetModel{}, &BalanceModel{}, &TransferModel{}}
}
