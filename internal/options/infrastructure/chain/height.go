// Package chain 提供账本高度来源
package chain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// BlockClock 按固定出块间隔从创世时间推算高度
type BlockClock struct {
	genesis  time.Time
	interval time.Duration
	start    uint64
	now      func() time.Time
}

// NewBlockClock 创建出块时钟，start 为创世时的高度
func NewBlockClock(genesis time.Time, interval time.Duration, start uint64) (*BlockClock, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("block interval must be positive, got %s", interval)
	}
	return &BlockClock{genesis: genesis, interval: interval, start: start, now: time.Now}, nil
}

// Height 创世前返回 start
func (c *BlockClock) Height(ctx context.Context) (uint64, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed <= 0 {
		return c.start, nil
	}
	return c.start + uint64(elapsed/c.interval), nil
}

// ManualHeight 手动推进的高度，用于测试与演示
type ManualHeight struct {
	h atomic.Uint64
}

// NewManualHeight 以 start 为初始高度
func NewManualHeight(start uint64) *ManualHeight {
	m := &ManualHeight{}
	m.h.Store(start)
	return m
}

func (m *ManualHeight) Height(ctx context.Context) (uint64, error) {
	return m.h.Load(), nil
}

// Advance 推进 n 个高度并返回新高度
func (m *ManualHeight) Advance(n uint64) uint64 {
	return m.h.Add(n)
}

// Set 直接设置高度
func (m *ManualHeight) Set(h uint64) {
	m.h.Store(h)
}
