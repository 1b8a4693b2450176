package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
)

// GovernanceService 所有者管理操作：协议费率、价格源、资产与交易对白名单
type GovernanceService struct {
	deps    Deps
	cfg     Config
	assets  *domain.Whitelist
	symbols *domain.Whitelist
	logger  *slog.Logger
}

// NewGovernanceService 创建治理服务，与 OptionsService 共享 Executor
func NewGovernanceService(deps Deps, cfg Config, logger *slog.Logger) *GovernanceService {
	deps.defaults()
	return &GovernanceService{
		deps:    deps,
		cfg:     cfg,
		assets:  domain.NewWhitelist(domain.WhitelistAsset, cfg.CriticalAssets),
		symbols: domain.NewWhitelist(domain.WhitelistSymbol, cfg.CriticalSymbols),
		logger:  logger.With("module", "governance"),
	}
}

// Deploy 首次启动时写入所有者、起始 ID 与默认费率，并批准全部关键资产与交易对。
// 已部署时保持现有状态不变。
func (s *GovernanceService) Deploy(ctx context.Context, owner string) (*domain.ProtocolState, error) {
	if !domain.ValidPrincipal(owner) || owner == s.cfg.Custody {
		return nil, ErrInvalidPrincipal
	}
	feeRate := s.cfg.DefaultFeeRate
	if feeRate > domain.MaxProtocolFeeRate {
		return nil, domain.ErrInvalidFeeRate
	}

	var state *domain.ProtocolState
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		existing, err := s.deps.Protocol.Load(txCtx)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Owner != owner {
				s.logger.WarnContext(ctx, "configured owner differs from deployed owner, keeping deployed owner",
					"deployed", existing.Owner, "configured", owner)
			}
			state = existing
			return nil
		}

		state = &domain.ProtocolState{
			Owner:           owner,
			NextOptionID:    domain.FirstOptionID,
			ProtocolFeeRate: feeRate,
		}
		if err := s.deps.Protocol.Save(txCtx, state); err != nil {
			return err
		}
		for _, a := range s.assets.Critical() {
			if err := s.deps.Whitelists.Set(txCtx, domain.WhitelistAsset, a, true); err != nil {
				return err
			}
		}
		for _, sym := range s.symbols.Critical() {
			if err := s.deps.Whitelists.Set(txCtx, domain.WhitelistSymbol, sym, true); err != nil {
				return err
			}
		}
		s.logger.InfoContext(ctx, "contract deployed", "owner", owner, "fee_rate", feeRate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Owner 合约所有者
func (s *GovernanceService) Owner(ctx context.Context) (string, error) {
	state, err := loadState(ctx, s.deps.Protocol)
	if err != nil {
		return "", err
	}
	return state.Owner, nil
}

// GetProtocolFeeRate 当前协议费率（基点）
func (s *GovernanceService) GetProtocolFeeRate(ctx context.Context) (uint64, error) {
	state, err := loadState(ctx, s.deps.Protocol)
	if err != nil {
		return 0, err
	}
	return state.ProtocolFeeRate, nil
}

// SetProtocolFeeRate 仅所有者，rate <= 1000
func (s *GovernanceService) SetProtocolFeeRate(ctx context.Context, caller string, rate uint64) error {
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		state, err := loadState(txCtx, s.deps.Protocol)
		if err != nil {
			return err
		}
		if err := state.Authorize(caller, s.cfg.Custody); err != nil {
			return err
		}
		if err := state.SetFeeRate(rate); err != nil {
			return err
		}
		if err := s.deps.Protocol.Save(txCtx, state); err != nil {
			return err
		}
		return s.publishChange(txCtx, "fee_rate", "", strconv.FormatUint(rate, 10), caller)
	})
	if err != nil {
		return s.reject(ctx, "set_protocol_fee_rate", err)
	}
	s.logger.InfoContext(ctx, "protocol fee rate updated", "rate", rate)
	return nil
}

// UpdatePriceFeed 仅所有者；symbol 须在白名单，timestamp 不得低于当前高度，price > 0
func (s *GovernanceService) UpdatePriceFeed(ctx context.Context, caller, symbol string, price, timestamp uint64) error {
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		state, err := loadState(txCtx, s.deps.Protocol)
		if err != nil {
			return err
		}
		if err := state.Authorize(caller, s.cfg.Custody); err != nil {
			return err
		}
		allowed, err := s.deps.Whitelists.IsApproved(txCtx, domain.WhitelistSymbol, symbol)
		if err != nil {
			return err
		}
		if !allowed {
			return domain.ErrSymbolNotAllowed
		}
		height, err := s.deps.Height.Height(txCtx)
		if err != nil {
			return err
		}
		if timestamp < height {
			return domain.ErrInvalidTimestamp
		}
		if price == 0 {
			return domain.ErrInvalidPrice
		}
		if err := domain.CheckRange(price, timestamp); err != nil {
			return err
		}

		feed := &domain.PriceFeed{Symbol: symbol, Price: price, Timestamp: timestamp, Source: caller}
		if err := s.deps.Feeds.Save(txCtx, feed); err != nil {
			return err
		}
		return s.deps.Events.Publish(txCtx, domain.PriceFeedUpdatedEventType, symbol, domain.PriceFeedUpdatedEvent{
			Symbol:     symbol,
			Price:      price,
			Timestamp:  timestamp,
			Source:     caller,
			OccurredOn: time.Now(),
		})
	})
	if err != nil {
		return s.reject(ctx, "update_price_feed", err)
	}
	s.deps.Metrics.RecordPriceUpdate(symbol)
	s.logger.InfoContext(ctx, "price feed updated", "symbol", symbol, "price", price, "timestamp", timestamp)
	return nil
}

// SetApprovedAsset 仅所有者；关键资产不可撤销
func (s *GovernanceService) SetApprovedAsset(ctx context.Context, caller, asset string, approved bool) error {
	return s.setWhitelist(ctx, "set_approved_asset", s.assets, caller, asset, approved)
}

// SetAllowedSymbol 仅所有者；关键交易对不可撤销
func (s *GovernanceService) SetAllowedSymbol(ctx context.Context, caller, symbol string, allowed bool) error {
	return s.setWhitelist(ctx, "set_allowed_symbol", s.symbols, caller, symbol, allowed)
}

func (s *GovernanceService) setWhitelist(ctx context.Context, op string, wl *domain.Whitelist, caller, key string, approved bool) error {
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		state, err := loadState(txCtx, s.deps.Protocol)
		if err != nil {
			return err
		}
		if err := state.Authorize(caller, s.cfg.Custody); err != nil {
			return err
		}
		if err := wl.CheckChange(key, approved, caller, s.cfg.Custody); err != nil {
			return err
		}
		if err := s.deps.Whitelists.Set(txCtx, wl.Kind, key, approved); err != nil {
			return err
		}
		return s.publishChange(txCtx, string(wl.Kind), key, strconv.FormatBool(approved), caller)
	})
	if err != nil {
		return s.reject(ctx, op, err)
	}
	s.logger.InfoContext(ctx, "whitelist updated", "kind", wl.Kind, "key", key, "approved", approved)
	return nil
}

// GetPriceFeed 不存在时返回 domain.ErrPriceFeedNotFound
func (s *GovernanceService) GetPriceFeed(ctx context.Context, symbol string) (*domain.PriceFeed, error) {
	feed, err := s.deps.Feeds.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, domain.ErrPriceFeedNotFound
	}
	return feed, nil
}

func (s *GovernanceService) IsApprovedAsset(ctx context.Context, asset string) (bool, error) {
	return s.deps.Whitelists.IsApproved(ctx, domain.WhitelistAsset, asset)
}

func (s *GovernanceService) IsAllowedSymbol(ctx context.Context, symbol string) (bool, error) {
	return s.deps.Whitelists.IsApproved(ctx, domain.WhitelistSymbol, symbol)
}

// Whitelist 列出某类白名单的全部条目
func (s *GovernanceService) Whitelist(ctx context.Context, kind domain.WhitelistKind) (map[string]bool, error) {
	return s.deps.Whitelists.List(ctx, kind)
}

func (s *GovernanceService) publishChange(ctx context.Context, setting, key, value, caller string) error {
	return s.deps.Events.Publish(ctx, domain.GovernanceChangedEventType, setting, domain.GovernanceChangedEvent{
		Setting:    setting,
		Key:        key,
		Value:      value,
		Caller:     caller,
		OccurredOn: time.Now(),
	})
}

func (s *GovernanceService) reject(ctx context.Context, op string, err error) error {
	kind := rejectionKind(err)
	s.deps.Metrics.RecordRejection(op, kind)
	if kind == "internal" {
		s.logger.ErrorContext(ctx, op+" failed", "error", err)
	} else {
		s.logger.WarnContext(ctx, op+" rejected", "kind", kind, "error", err)
	}
	return err
}
