// Package cache 价格源读缓存：读穿透 Redis，写入后失效
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
	pkgcache "github.com/wyfcoding/optionsvault/pkg/cache"
)

const keyPrefix = "optionsvault:pricefeed:"

// TxHooks 事务感知能力，由 *db.DB 实现
type TxHooks interface {
	InTx(ctx context.Context) bool
	AfterCommit(ctx context.Context, fn func())
}

type noTx struct{}

func (noTx) InTx(context.Context) bool { return false }

func (noTx) AfterCommit(_ context.Context, fn func()) { fn() }

// CachedPriceFeedRepository 装饰 domain.PriceFeedRepository。
// 事务内（写路径）的读取直接走数据库，保证结算使用已提交或本事务内的最新价格。
type CachedPriceFeedRepository struct {
	next   domain.PriceFeedRepository
	cache  *pkgcache.RedisCache
	ttl    time.Duration
	tx     TxHooks
	logger *slog.Logger
}

// NewCachedPriceFeedRepository 创建缓存装饰器，tx 为 nil 时视为没有事务
func NewCachedPriceFeedRepository(next domain.PriceFeedRepository, c *pkgcache.RedisCache, ttl time.Duration, tx TxHooks, logger *slog.Logger) *CachedPriceFeedRepository {
	if tx == nil {
		tx = noTx{}
	}
	return &CachedPriceFeedRepository{
		next:   next,
		cache:  c,
		ttl:    ttl,
		tx:     tx,
		logger: logger.With("module", "pricefeed_cache"),
	}
}

func cacheKey(symbol string) string { return keyPrefix + symbol }

// Save 写库，事务提交后删除缓存。删除失败只记录日志，TTL 兜底
func (r *CachedPriceFeedRepository) Save(ctx context.Context, f *domain.PriceFeed) error {
	if err := r.next.Save(ctx, f); err != nil {
		return err
	}
	symbol := f.Symbol
	r.tx.AfterCommit(ctx, func() {
		if err := r.cache.Delete(context.WithoutCancel(ctx), cacheKey(symbol)); err != nil {
			r.logger.WarnContext(ctx, "failed to invalidate price feed cache", "symbol", symbol, "error", err)
		}
	})
	return nil
}

// Get 事务外先查缓存，未命中回源并回填
func (r *CachedPriceFeedRepository) Get(ctx context.Context, symbol string) (*domain.PriceFeed, error) {
	if r.tx.InTx(ctx) {
		return r.next.Get(ctx, symbol)
	}

	var cached domain.PriceFeed
	found, err := r.cache.GetJSON(ctx, cacheKey(symbol), &cached)
	if err != nil {
		r.logger.WarnContext(ctx, "price feed cache read failed", "symbol", symbol, "error", err)
	} else if found {
		return &cached, nil
	}

	f, err := r.next.Get(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("load price feed %s: %w", symbol, err)
	}
	if f == nil {
		return nil, nil
	}
	if err := r.cache.SetJSON(ctx, cacheKey(symbol), f, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "price feed cache fill failed", "symbol", symbol, "error", err)
	}
	return f, nil
}
