// Package custody 结算资产账本：登记资产元数据，维护各主体余额，记录转账流水。
// 所有写操作通过 db.Conn 加入调用方事务，失败随事务整体回滚。
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/idgen"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAssetNotFound       = errors.New("custody asset not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOwner        = errors.New("invalid owner")
)

// Metadata 资产元数据
type Metadata struct {
	AssetID     string `json:"asset_id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	URI         string `json:"uri,omitempty"`
	TotalSupply uint64 `json:"total_supply"`
}

// Transfer 转账流水
type Transfer struct {
	TransferID int64     `json:"transfer_id"`
	AssetID    string    `json:"asset_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Amount     uint64    `json:"amount"`
	Memo       string    `json:"memo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ledger 基于数据库的同质化资产账本
type Ledger struct {
	db     *db.DB
	ids    *idgen.Generator
	logger *slog.Logger
}

// NewLedger 创建账本
func NewLedger(d *db.DB, ids *idgen.Generator, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     d,
		ids:    ids,
		logger: logger.With("module", "custody_ledger"),
	}
}

// Register 登记资产，已存在时只更新元数据，不改动供应量
func (l *Ledger) Register(ctx context.Context, meta Metadata) error {
	model := &AssetModel{
		AssetID:  meta.AssetID,
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		URI:      meta.URI,
	}
	err := l.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "decimals", "uri", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to register asset %s: %w", meta.AssetID, err)
	}
	l.logger.InfoContext(ctx, "asset registered", "asset", meta.AssetID, "symbol", meta.Symbol)
	return nil
}

// Mint 增发到 to，并累加总供应量
func (l *Ledger) Mint(ctx context.Context, asset, to string, amount uint64) error {
	if to == "" {
		return ErrInvalidOwner
	}
	return l.db.WithTx(ctx, func(txCtx context.Context) error {
		res := l.db.Conn(txCtx).Model(&AssetModel{}).
			Where("asset_id = ?", asset).
			UpdateColumn("total_supply", gorm.Expr("total_supply + ?", amount))
		if res.Error != nil {
			return fmt.Errorf("failed to update supply: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
		}
		if err := l.credit(txCtx, asset, to, amount); err != nil {
			return err
		}
		return l.journal(txCtx, asset, "", to, amount, "mint")
	})
}

// Transfer 从 from 转给 to。金额为 0 时直接成功，不产生流水
func (l *Ledger) Transfer(ctx context.Context, asset string, amount uint64, from, to, memo string) error {
	if from == "" || to == "" {
		return ErrInvalidOwner
	}
	if _, err := l.Metadata(ctx, asset); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}

	return l.db.WithTx(ctx, func(txCtx context.Context) error {
		// 条件扣减：余额不足时影响行数为 0
		res := l.db.Conn(txCtx).Model(&BalanceModel{}).
			Where("asset_id = ? AND owner = ? AND balance >= ?", asset, from, amount).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("failed to debit %s: %w", from, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s has less than %d of %s", ErrInsufficientBalance, from, amount, asset)
		}
		if err := l.credit(txCtx, asset, to, amount); err != nil {
			return err
		}
		if err := l.journal(txCtx, asset, from, to, amount, memo); err != nil {
			return err
		}
		l.logger.DebugContext(ctx, "asset transferred", "asset", asset, "from", from, "to", to, "amount", amount, "memo", memo)
		return nil
	})
}

func (l *Ledger) credit(ctx context.Context, asset, owner string, amount uint64) error {
	model := &BalanceModel{AssetID: asset, Owner: owner, Balance: amount}
	err := l.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_id"}, {Name: "owner"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", owner, err)
	}
	return nil
}

func (l *Ledger) journal(ctx context.Context, asset, from, to string, amount uint64, memo string) error {
	model := &TransferModel{
		TransferID: l.ids.Next(),
		AssetID:    asset,
		FromOwner:  from,
		ToOwner:    to,
		Amount:     amount,
		Memo:       memo,
	}
	if err := l.db.Conn(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// Balance 余额，无记录视为 0
func (l *Ledger) Balance(ctx context.Context, asset, owner string) (uint64, error) {
	var model BalanceModel
	err := l.db.Conn(ctx).Where("asset_id = ? AND owner = ?", asset, owner).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return model.Balance, nil
}

// Metadata 资产元数据与总供应量
func (l *Ledger) Metadata(ctx context.Context, asset string) (*Metadata, error) {
	var model AssetModel
	if err := l.db.Conn(ctx).Where("asset_id = ?", asset).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return &Metadata{
		AssetID:     model.AssetID,
		Name:        model.Name,
		Symbol:      model.Symbol,
		Decimals:    model.Decimals,
		URI:         model.URI,
		TotalSupply: model.TotalSupply,
	}, nil
}

// Transfers 按时间倒序列出与 owner 相关的流水，owner 为空时列出资产全部流水
func (l *Ledger) Transfers(ctx context.Context, asset, owner string, limit int) ([]Transfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := l.db.Conn(ctx).Where("asset_id = ?", asset)
	if owner != "" {
		q = q.Where("from_owner = ? OR to_owner = ?", owner, owner)
	}
	var models []TransferModel
	if err := q.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	out := make([]Transfer, 0, len(models))
	for _, m := range models {
		out = append(out, Transfer{
			TransferID: m.TransferID,
			AssetID:    m.AssetID,
			From:       m.FromOwner,
			To:         m.ToOwner,
			Amount:     m.Amount,
			Memo:       m.Memo,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}
