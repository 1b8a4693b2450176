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

type optionRepositoryImpl struct {
	db *db.DB
}

// NewOptionRepository 创建期权仓储
func NewOptionRepository(d *db.DB) domain.OptionRepository {
	return &optionRepositoryImpl{db: d}
}

// Save 插入或更新。冲突时只更新可变字段，不可变字段以首次写入为准
func (r *optionRepositoryImpl) Save(ctx context.Context, o *domain.Option) error {
	model := &OptionModel{
		OptionID:         o.ID,
		Writer:           o.Writer,
		Holder:           o.Holder,
		Asset:            o.Asset,
		CollateralAmount: o.CollateralAmount,
		StrikePrice:      o.StrikePrice,
		Premium:          o.Premium,
		Expiry:           o.Expiry,
		IsExercised:      o.IsExercised,
		OptionType:       o.Type.String(),
		State:            o.State.String(),
	}

	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "option_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "is_exercised", "state", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		logger.Error(ctx, "option_repository.save failed", "option_id", o.ID, "error", err)
		return fmt.Errorf("failed to save option: %w", err)
	}
	return nil
}

// Get 不存在时返回 domain.ErrOptionNotFound
func (r *optionRepositoryImpl) Get(ctx context.Context, id uint64) (*domain.Option, error) {
	if id > domain.MaxValue {
		return nil, domain.ErrOptionNotFound
	}
	var model OptionModel
	if err := r.db.Conn(ctx).Where("option_id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOptionNotFound
		}
		logger.Error(ctx, "option_repository.get failed", "option_id", id, "error", err)
		return nil, fmt.Errorf("failed to get option: %w", err)
	}
	return toDomainOption(&model)
}

// ListByIDs 按给定顺序返回存在的期权
func (r *optionRepositoryImpl) ListByIDs(ctx context.Context, ids []uint64) ([]*domain.Option, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	valid := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id <= domain.MaxValue {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	var models []OptionModel
	if err := r.db.Conn(ctx).Where("option_id IN ?", valid).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}

	byID := make(map[uint64]*OptionModel, len(models))
	for i := range models {
		byID[models[i].OptionID] = &models[i]
	}
	out := make([]*domain.Option, 0, len(models))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		o, err := toDomainOption(m)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func toDomainOption(m *OptionModel) (*domain.Option, error) {
	typ, err := domain.ParseOptionType(m.OptionType)
	if err != nil {
		return nil, fmt.Errorf("option %d: %w", m.OptionID, err)
	}
	var state domain.OptionState
	if err := state.UnmarshalText([]byte(m.State)); err != nil {
		return nil, fmt.Errorf("option %d: %w", m.OptionID, err)
	}
	return &domain.Option{
		ID:               m.OptionID,
		Writer:           m.Writer,
		Holder:           m.Holder,
		Asset:            m.Asset,
		CollateralAmount: m.CollateralAmount,
		StrikePrice:      m.StrikePrice,
		Premium:          m.Premium,
		Expiry:           m.Expiry,
		IsExercised:      m.IsExercised,
		Type:             typ,
		State:            state,
	}, nil
}
