package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/wyfcoding/optionsvault/internal/options/domain"
)

// OptionsService 结算引擎：开仓、买入、行权，以及期权与持仓查询
type OptionsService struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// NewOptionsService 创建结算引擎
func NewOptionsService(deps Deps, cfg Config, logger *slog.Logger) *OptionsService {
	deps.defaults()
	return &OptionsService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("module", "options_engine"),
	}
}

// Write 锁定抵押并创建期权，返回新期权 ID。
// 前置条件按顺序检查：资产白名单、到期高度、行权价、权利金、抵押充足。
func (s *OptionsService) Write(ctx context.Context, caller string, cmd WriteCommand) (uint64, error) {
	if err := checkCaller(caller, s.cfg.Custody); err != nil {
		return 0, s.reject(ctx, "write", err)
	}

	var (
		id     uint64
		height uint64
	)
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		var err error
		if height, err = s.deps.Height.Height(txCtx); err != nil {
			return err
		}
		state, err := loadState(txCtx, s.deps.Protocol)
		if err != nil {
			return err
		}

		approved, err := s.deps.Whitelists.IsApproved(txCtx, domain.WhitelistAsset, cmd.Asset)
		if err != nil {
			return err
		}
		if !approved {
			return domain.ErrAssetNotWhitelisted
		}
		if cmd.Expiry <= height {
			return domain.ErrInvalidExpiry
		}
		if cmd.StrikePrice == 0 {
			return domain.ErrInvalidStrike
		}
		if cmd.Premium == 0 {
			return domain.ErrInvalidPremium
		}
		if !cmd.Type.Valid() {
			return domain.ErrInvalidOptionType
		}
		if err := domain.CheckRange(cmd.CollateralAmount, cmd.StrikePrice, cmd.Premium, cmd.Expiry); err != nil {
			return err
		}

		var refPrice uint64
		if cmd.Type == domain.OptionTypePut {
			feed, err := s.referenceFeed(txCtx)
			if err != nil {
				return err
			}
			refPrice = feed.Price
		}
		if err := domain.CheckCollateral(cmd.Type, cmd.CollateralAmount, cmd.StrikePrice, refPrice); err != nil {
			return err
		}

		if err := s.deps.Assets.Transfer(txCtx, cmd.Asset, cmd.CollateralAmount, caller, s.cfg.Custody, "option collateral"); err != nil {
			return transferErr(err)
		}

		id = state.AllocateID()
		opt := domain.NewOption(id, caller, domain.WriteParams{
			Asset:            cmd.Asset,
			CollateralAmount: cmd.CollateralAmount,
			StrikePrice:      cmd.StrikePrice,
			Premium:          cmd.Premium,
			Expiry:           cmd.Expiry,
			Type:             cmd.Type,
		})
		if err := s.deps.Options.Save(txCtx, opt); err != nil {
			return err
		}

		pos, err := s.position(txCtx, caller)
		if err != nil {
			return err
		}
		if err := pos.RecordWrite(id, cmd.CollateralAmount); err != nil {
			return err
		}
		if err := s.deps.Positions.Save(txCtx, pos); err != nil {
			return err
		}
		if err := s.deps.Protocol.Save(txCtx, state); err != nil {
			return err
		}

		return s.deps.Events.Publish(txCtx, domain.OptionWrittenEventType, strconv.FormatUint(id, 10), domain.OptionWrittenEvent{
			OptionID:         id,
			Writer:           caller,
			Asset:            cmd.Asset,
			Type:             cmd.Type.String(),
			CollateralAmount: cmd.CollateralAmount,
			StrikePrice:      cmd.StrikePrice,
			Premium:          cmd.Premium,
			Expiry:           cmd.Expiry,
			Height:           height,
			OccurredOn:       time.Now(),
		})
	})
	if err != nil {
		return 0, s.reject(ctx, "write", err)
	}

	s.deps.Metrics.RecordWrite(cmd.Type.String(), cmd.CollateralAmount)
	s.logger.InfoContext(ctx, "option written",
		"option_id", id,
		"writer", caller,
		"type", cmd.Type.String(),
		"collateral", cmd.CollateralAmount,
		"strike", cmd.StrikePrice,
		"expiry", cmd.Expiry,
		"height", height,
	)
	return id, nil
}

// Buy 支付权利金给卖方并成为持有人
func (s *OptionsService) Buy(ctx context.Context, caller string, cmd BuyCommand) error {
	if err := checkCaller(caller, s.cfg.Custody); err != nil {
		return s.reject(ctx, "buy", err)
	}

	var opt *domain.Option
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		height, err := s.deps.Height.Height(txCtx)
		if err != nil {
			return err
		}
		if opt, err = s.deps.Options.Get(txCtx, cmd.OptionID); err != nil {
			return err
		}
		if err := opt.AssignHolder(caller, height); err != nil {
			return err
		}
		if err := opt.CheckAsset(cmd.Asset); err != nil {
			return err
		}

		if err := s.deps.Assets.Transfer(txCtx, opt.Asset, opt.Premium, caller, opt.Writer, "option premium"); err != nil {
			return transferErr(err)
		}

		pos, err := s.position(txCtx, caller)
		if err != nil {
			return err
		}
		if err := pos.RecordHold(opt.ID); err != nil {
			return err
		}
		if err := s.deps.Positions.Save(txCtx, pos); err != nil {
			return err
		}
		if err := s.deps.Options.Save(txCtx, opt); err != nil {
			return err
		}

		return s.deps.Events.Publish(txCtx, domain.OptionBoughtEventType, strconv.FormatUint(opt.ID, 10), domain.OptionBoughtEvent{
			OptionID:   opt.ID,
			Holder:     caller,
			Writer:     opt.Writer,
			Premium:    opt.Premium,
			Height:     height,
			OccurredOn: time.Now(),
		})
	})
	if err != nil {
		return s.reject(ctx, "buy", err)
	}

	s.deps.Metrics.RecordBuy()
	s.logger.InfoContext(ctx, "option bought", "option_id", opt.ID, "holder", caller, "premium", opt.Premium)
	return nil
}

// Exercise 按参考价结算：payout 从托管付给持有人，剩余抵押退回卖方。
// 两笔转账总是都会执行，金额为 0 时也不例外。
func (s *OptionsService) Exercise(ctx context.Context, caller string, cmd ExerciseCommand) (*ExerciseResult, error) {
	if err := checkCaller(caller, s.cfg.Custody); err != nil {
		return nil, s.reject(ctx, "exercise", err)
	}

	var (
		opt    *domain.Option
		result *ExerciseResult
	)
	err := s.deps.Executor.Execute(ctx, func(txCtx context.Context) error {
		height, err := s.deps.Height.Height(txCtx)
		if err != nil {
			return err
		}
		if opt, err = s.deps.Options.Get(txCtx, cmd.OptionID); err != nil {
			return err
		}
		if err := opt.CheckExercisable(caller, height); err != nil {
			return err
		}
		if err := opt.CheckAsset(cmd.Asset); err != nil {
			return err
		}

		feed, err := s.referenceFeed(txCtx)
		if err != nil {
			return err
		}
		payout, remainder := opt.Settlement(feed.Price)

		if err := s.deps.Assets.Transfer(txCtx, opt.Asset, payout, s.cfg.Custody, opt.Holder, "option payout"); err != nil {
			return transferErr(err)
		}
		if err := s.deps.Assets.Transfer(txCtx, opt.Asset, remainder, s.cfg.Custody, opt.Writer, "collateral release"); err != nil {
			return transferErr(err)
		}

		opt.MarkExercised()
		if err := s.deps.Options.Save(txCtx, opt); err != nil {
			return err
		}

		result = &ExerciseResult{OptionID: opt.ID, Price: feed.Price, Payout: payout, Remainder: remainder}
		return s.deps.Events.Publish(txCtx, domain.OptionExercisedEventType, strconv.FormatUint(opt.ID, 10), domain.OptionExercisedEvent{
			OptionID:   opt.ID,
			Holder:     opt.Holder,
			Writer:     opt.Writer,
			Price:      feed.Price,
			Payout:     payout,
			Remainder:  remainder,
			Height:     height,
			OccurredOn: time.Now(),
		})
	})
	if err != nil {
		return nil, s.reject(ctx, "exercise", err)
	}

	s.deps.Metrics.RecordExercise(opt.Type.String(), result.Payout)
	s.logger.InfoContext(ctx, "option exercised",
		"option_id", opt.ID,
		"holder", caller,
		"price", result.Price,
		"payout", result.Payout,
		"remainder", result.Remainder,
	)
	return result, nil
}

// GetOption 不存在时返回 domain.ErrOptionNotFound
func (s *OptionsService) GetOption(ctx context.Context, id uint64) (*domain.Option, error) {
	return s.deps.Options.Get(ctx, id)
}

// GetUserPosition 不存在时返回 (nil, nil)
func (s *OptionsService) GetUserPosition(ctx context.Context, user string) (*domain.Position, error) {
	return s.deps.Positions.Get(ctx, user)
}

// ListOptions 按 ID 批量查询，用于展示持仓下的期权
func (s *OptionsService) ListOptions(ctx context.Context, ids []uint64) ([]*domain.Option, error) {
	return s.deps.Options.ListByIDs(ctx, ids)
}

func (s *OptionsService) position(ctx context.Context, user string) (*domain.Position, error) {
	pos, err := s.deps.Positions.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = domain.NewPosition(user)
	}
	return pos, nil
}

func (s *OptionsService) referenceFeed(ctx context.Context) (*domain.PriceFeed, error) {
	feed, err := s.deps.Feeds.Get(ctx, s.cfg.ReferenceSymbol)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, domain.ErrPriceFeedNotFound
	}
	return feed, nil
}

func (s *OptionsService) reject(ctx context.Context, op string, err error) error {
	kind := rejectionKind(err)
	s.deps.Metrics.RecordRejection(op, kind)
	if kind == "internal" {
		s.logger.ErrorContext(ctx, op+" failed", "error", err)
	} else {
		s.logger.WarnContext(ctx, op+" rejected", "kind", kind, "error", err)
	}
	return err
}
