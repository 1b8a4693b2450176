package application

import (
	"context"
	"errors"
	"sync"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
)

var (
	ErrNotDeployed      = errors.New("contract not deployed")
	ErrInvalidPrincipal = errors.New("missing or malformed caller identity")
)

// Executor 全局串行执行器：同一时刻只有一个写操作在执行，
// 每个写操作在单个事务内完成，任何失败都整体回滚。
type Executor struct {
	mu sync.Mutex
	tx domain.TxManager
}

// NewExecutor 创建执行器。所有写服务必须共享同一个实例
func NewExecutor(tx domain.TxManager) *Executor {
	return &Executor{tx: tx}
}

// Execute 串行执行 fn
func (e *Executor) Execute(ctx context.Context, fn func(txCtx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx.WithTx(ctx, fn)
}

// Recorder 业务指标，由 metrics.Metrics 实现
type Recorder interface {
	RecordWrite(optionType string, collateral uint64)
	RecordBuy()
	RecordExercise(optionType string, payout uint64)
	RecordRejection(operation, kind string)
	RecordPriceUpdate(symbol string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(string, uint64) {}
func (nopRecorder) RecordBuy() {}
func (nopRecorder) RecordExercise(string, uint64) {}
func (nopRecorder) RecordRejection(string, string) {}
func (nopRecorder) RecordPriceUpdate(string) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }

// Deps 服务依赖。Events、Metrics 可为 nil
type Deps struct {
	Options    domain.OptionRepository
	Positions  domain.PositionRepository
	Feeds      domain.PriceFeedRepository
	Whitelists domain.WhitelistRepository
	Protocol   domain.ProtocolRepository
	Assets     domain.AssetLedger
	Height     domain.HeightSource
	Events     domain.EventPublisher
	Metrics    Recorder
	Executor   *Executor
}

func (d *Deps) defaults() {
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
}

// Config 合约部署参数
type Config struct {
	// 合约托管主体，持有全部抵押
	Custody string
	// PUT 抵押校验与行权使用的参考交易对
	ReferenceSymbol string
	CriticalAssets  []string
	CriticalSymbols []string
	DefaultFeeRate  uint64
}

// rejectionKind 指标中的拒绝类别
func rejectionKind(err error) string {
	if kind, ok := domain.KindOf(err); ok {
		return string(kind)
	}
	switch {
	case errors.Is(err, ErrNotDeployed):
		return "not_deployed"
	case errors.Is(err, ErrInvalidPrincipal):
		return string(domain.KindAuthorization)
	}
	return "internal"
}

// checkCaller 身份格式非法返回 ErrInvalidPrincipal；托管地址不能发起业务操作
func checkCaller(caller, custody string) error {
	if !domain.ValidPrincipal(caller) {
		return ErrInvalidPrincipal
	}
	if caller == custody {
		return domain.ErrCustodyCaller
	}
	return nil
}

// transferErr 资产转账失败统一归为 ErrTransferFailed
func transferErr(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrTransferFailed.Wrap(err)
}

func loadState(ctx context.Context, repo domain.ProtocolRepository) (*domain.ProtocolState, error) {
	state, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNotDeployed
	}
	return state, nil
}
