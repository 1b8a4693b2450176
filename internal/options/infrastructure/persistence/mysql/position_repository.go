package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type positionRepositoryImpl struct {
	db *db.DB
}

// NewPositionRepository 创建持仓仓储
func NewPositionRepository(d *db.DB) domain.PositionRepository {
	return &positionRepositoryImpl{db: d}
}

func (r *positionRepositoryImpl) Save(ctx context.Context, p *domain.Position) error {
	model := &PositionModel{
		User:                  p.User,
		WrittenOptions:        p.Written.IDs(),
		HeldOptions:           p.Held.IDs(),
		TotalCollateralLocked: p.TotalCollateralLocked,
	}

	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "principal"}},
		DoUpdates: clause.AssignmentColumns([]string{"written_options", "held_options", "total_collateral_locked", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		logger.Error(ctx, "position_repository.save failed", "user", p.User, "error", err)
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

func (r *positionRepositoryImpl) Get(ctx context.Context, user string) (*domain.Position, error) {
	var model PositionModel
	if err := r.db.Conn(ctx).Where("principal = ?", user).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	written, err := domain.NewBoundedIDList(model.WrittenOptions...)
	if err != nil {
		return nil, fmt.Errorf("position %s written options: %w", user, err)
	}
	held, err := domain.NewBoundedIDList(model.HeldOptions...)
	if err != nil {
		return nil, fmt.Errorf("position %s held options: %w", user, err)
	}
	return &domain.Position{
		User:                  model.User,
		Written:               written,
		Held:                  held,
		TotalCollateralLocked: model.TotalCollateralLocked,
	}, nil
}
