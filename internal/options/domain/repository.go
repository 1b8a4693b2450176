package domain

import (
	"context"
)

// OptionRepository 期权登记表
type OptionRepository interface {
	Save(ctx context.Context, o *Option) error
	// Get 不存在时返回 ErrOptionNotFound
	Get(ctx context.Context, id uint64) (*Option, error)
	ListByIDs(ctx context.Context, ids []uint64) ([]*Option, error)
}

// PositionRepository 持仓账本
type PositionRepository interface {
	Save(ctx context.Context, p *Position) error
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, user string) (*Position, error)
}

// PriceFeedRepository 价格源
type PriceFeedRepository interface {
	Save(ctx context.Context, f *PriceFeed) error
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, symbol string) (*PriceFeed, error)
}

// WhitelistRepository 资产 / 交易对白名单
type WhitelistRepository interface {
	Set(ctx context.Context, kind WhitelistKind, key string, approved bool) error
	// IsApproved 不存在视为 false
	IsApproved(ctx context.Context, kind WhitelistKind, key string) (bool, error)
	List(ctx context.Context, kind WhitelistKind) (map[string]bool, error)
}

// ProtocolRepository 合约标量状态
type ProtocolRepository interface {
	// Load 未部署时返回 (nil, nil)
	Load(ctx context.Context) (*ProtocolState, error)
	Save(ctx context.Context, s *ProtocolState) error
}

// TxManager 事务边界。fn 内的所有仓储与资产账本调用属于同一事务
type TxManager interface {
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// AssetLedger 结算资产能力（同质化代币）
type AssetLedger interface {
	Transfer(ctx context.Context, asset string, amount uint64, from, to, memo string) error
	Balance(ctx context.Context, asset, owner string) (uint64, error)
}

// HeightSource 当前账本高度
type HeightSource interface {
	Height(ctx context.Context) (uint64, error)
}

// EventPublisher 领域事件发布。在事务内调用，随事务一起提交
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}
