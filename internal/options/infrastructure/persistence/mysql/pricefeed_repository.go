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

type priceFeedRepositoryImpl struct {
	db *db.DB
}

// NewPriceFeedRepository 创建价格源仓储
func NewPriceFeedRepository(d *db.DB) domain.PriceFeedRepository {
	return &priceFeedRepositoryImpl{db: d}
}

// Save 按 symbol 原地覆盖
func (r *priceFeedRepositoryImpl) Save(ctx context.Context, f *domain.PriceFeed) error {
	model := &PriceFeedModel{
		Symbol:    f.Symbol,
		Price:     f.Price,
		Timestamp: f.Timestamp,
		Source:    f.Source,
	}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "timestamp", "source", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save price feed: %w", err)
	}
	return nil
}

func (r *priceFeedRepositoryImpl) Get(ctx context.Context, symbol string) (*domain.PriceFeed, error) {
	var model PriceFeedModel
	if err := r.db.Conn(ctx).Where("symbol = ?", symbol).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get price feed: %w", err)
	}
	return &domain.PriceFeed{
		Symbol:    model.Symbol,
		Price:     model.Price,
		Timestamp: model.Timestamp,
		Source:    model.Source,
	}, nil
}
