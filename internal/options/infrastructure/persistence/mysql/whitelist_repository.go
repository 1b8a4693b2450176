package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type whitelistRepositoryImpl struct {
	db *db.DB
}

// NewWhitelistRepository 创建白名单仓储
func NewWhitelistRepository(d *db.DB) domain.WhitelistRepository {
	return &whitelistRepositoryImpl{db: d}
}

func (r *whitelistRepositoryImpl) Set(ctx context.Context, kind domain.WhitelistKind, key string, approved bool) error {
	model := &WhitelistModel{Kind: string(kind), ItemKey: key, Approved: approved}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"approved", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to set %s whitelist entry: %w", kind, err)
	}
	return nil
}

func (r *whitelistRepositoryImpl) IsApproved(ctx context.Context, kind domain.WhitelistKind, key string) (bool, error) {
	var model WhitelistModel
	err := r.db.Conn(ctx).Where("kind = ? AND item_key = ?", string(kind), key).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s whitelist entry: %w", kind, err)
	}
	return model.Approved, nil
}

func (r *whitelistRepositoryImpl) List(ctx context.Context, kind domain.WhitelistKind) (map[string]bool, error) {
	var models []WhitelistModel
	if err := r.db.Conn(ctx).Where("kind = ?", string(kind)).Order("item_key").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s whitelist: %w", kind, err)
	}
	out := make(map[string]bool, len(models))
	for _, m := range models {
		out[m.ItemKey] = m.Approved
	}
	return out, nil
}
