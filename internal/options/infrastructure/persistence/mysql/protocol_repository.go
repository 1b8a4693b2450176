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

type protocolRepositoryImpl struct {
	db *db.DB
}

// NewProtocolRepository 创建合约标量仓储
func NewProtocolRepository(d *db.DB) domain.ProtocolRepository {
	return &protocolRepositoryImpl{db: d}
}

func (r *protocolRepositoryImpl) Load(ctx context.Context) (*domain.ProtocolState, error) {
	var model ProtocolStateModel
	if err := r.db.Conn(ctx).First(&model, protocolRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load protocol state: %w", err)
	}
	return &domain.ProtocolState{
		Owner:           model.Owner,
		NextOptionID:    model.NextOptionID,
		ProtocolFeeRate: model.ProtocolFeeRate,
	}, nil
}

func (r *protocolRepositoryImpl) Save(ctx context.Context, s *domain.ProtocolState) error {
	model := &ProtocolStateModel{
		ID:              protocolRowID,
		Owner:           s.Owner,
		NextOptionID:    s.NextOptionID,
		ProtocolFeeRate: s.ProtocolFeeRate,
	}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner", "next_option_id", "protocol_fee_rate", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save protocol state: %w", err)
	}
	return nil
}
