package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
)

func TestLifecycleCallInTheMoney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 开仓
	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	pos, err := f.engine.GetUserPosition(ctx, writer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pos.TotalCollateralLocked)
	assert.Equal(t, []uint64{1}, pos.Written.IDs())
	assert.Equal(t, uint64(1000), f.balance(t, usda, vault))

	// 买入
	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
	opt, err := f.engine.GetOption(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, buyer, opt.Holder)
	assert.Equal(t, startBalance-1000+10, f.balance(t, usda, writer))
	assert.Equal(t, startBalance-10, f.balance(t, usda, buyer))

	// 价格 1500 行权
	f.setPrice(t, 1500)
	res, err := f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	require.NoError(t, err)
	assert.Equal(t, &ExerciseResult{OptionID: 1, Price: 1500, Payout: 500, Remainder: 500}, res)

	assert.Equal(t, startBalance-10+500, f.balance(t, usda, buyer))
	assert.Equal(t, startBalance-1000+10+500, f.balance(t, usda, writer))
	assert.Zero(t, f.balance(t, usda, vault))

	opt, err = f.engine.GetOption(ctx, id)
	require.NoError(t, err)
	assert.True(t, opt.IsExercised)
	assert.Equal(t, domain.OptionStateExercised, opt.State)

	// 累计锁定抵押不随行权扣减
	pos, err = f.engine.GetUserPosition(ctx, writer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pos.TotalCollateralLocked)

	held, err := f.engine.GetUserPosition(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, held.Held.IDs())

	assert.Equal(t, int64(1), f.outboxCount(t, domain.OptionWrittenEventType))
	assert.Equal(t, int64(1), f.outboxCount(t, domain.OptionBoughtEventType))
	assert.Equal(t, int64(1), f.outboxCount(t, domain.OptionExercisedEventType))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OptionsExercised.WithLabelValues("CALL")))
	assert.Equal(t, 500.0, testutil.ToFloat64(f.metrics.PayoutTotal))
}

func TestExerciseCallOutOfTheMoney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))

	f.setPrice(t, 800)
	res, err := f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	require.NoError(t, err)
	assert.Zero(t, res.Payout)
	assert.Equal(t, uint64(1000), res.Remainder)

	assert.Equal(t, startBalance+10, f.balance(t, usda, writer))
	assert.Equal(t, startBalance-10, f.balance(t, usda, buyer))
	assert.Zero(t, f.balance(t, usda, vault))
}

func TestExercisePut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 参考价 10^8 时 PUT 抵押要求等于行权价
	f.setPrice(t, 100_000_000)
	cmd := WriteCommand{
		Asset:            usda,
		CollateralAmount: 100_000_000,
		StrikePrice:      100_000_000,
		Premium:          5,
		Expiry:           startHeight + 10,
		Type:             domain.OptionTypePut,
	}
	_, err := f.engine.Write(ctx, writer, WriteCommand{
		Asset: usda, CollateralAmount: 99_999_999, StrikePrice: 100_000_000,
		Premium: 5, Expiry: startHeight + 10, Type: domain.OptionTypePut,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCollateral)

	require.NoError(t, f.ledger.Mint(ctx, usda, writer, 100_000_000))
	id, err := f.engine.Write(ctx, writer, cmd)
	require.NoError(t, err)
	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))

	f.setPrice(t, 60_000_000)
	res, err := f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000_000), res.Payout)
	assert.Equal(t, uint64(60_000_000), res.Remainder)
	assert.Zero(t, f.balance(t, usda, vault))
}

func TestWritePreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*WriteCommand)
		want   error
	}{
		{"asset checked before expiry", func(c *WriteCommand) { c.Asset = otherCoin; c.Expiry = 1 }, domain.ErrAssetNotWhitelisted},
		{"expiry equal to height", func(c *WriteCommand) { c.Expiry = startHeight }, domain.ErrInvalidExpiry},
		{"expiry checked before strike", func(c *WriteCommand) { c.Expiry = startHeight - 1; c.StrikePrice = 0 }, domain.ErrInvalidExpiry},
		{"zero strike", func(c *WriteCommand) { c.StrikePrice = 0; c.Premium = 0 }, domain.ErrInvalidStrike},
		{"zero premium", func(c *WriteCommand) { c.Premium = 0 }, domain.ErrInvalidPremium},
		{"invalid type", func(c *WriteCommand) { c.Type = 0 }, domain.ErrInvalidOptionType},
		{"call collateral below strike", func(c *WriteCommand) { c.CollateralAmount = 999 }, domain.ErrInsufficientCollateral},
		{"put without reference price", func(c *WriteCommand) { c.Type = domain.OptionTypePut }, domain.ErrPriceFeedNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := callCommand()
			tc.mutate(&cmd)
			_, err := f.engine.Write(ctx, writer, cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// 全部失败，无任何状态变化
	pos, err := f.engine.GetUserPosition(ctx, writer)
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.Equal(t, startBalance, f.balance(t, usda, writer))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues("write", string(domain.KindValidation))))
}

func TestWriteTransferFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := callCommand()
	cmd.CollateralAmount = startBalance + 1
	_, err := f.engine.Write(ctx, writer, cmd)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "failed write must not consume an id")
}

func TestWriteEleventhOptionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= domain.MaxListEntries; i++ {
		id, err := f.engine.Write(ctx, writer, callCommand())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}

	_, err := f.engine.Write(ctx, writer, callCommand())
	assert.ErrorIs(t, err, domain.ErrListFull)

	// 失败的第 11 笔已整体回滚：抵押未转出，ID 未消耗
	assert.Equal(t, uint64(10*1000), f.balance(t, usda, vault))
	pos, err := f.engine.GetUserPosition(ctx, writer)
	require.NoError(t, err)
	assert.Equal(t, uint64(10*1000), pos.TotalCollateralLocked)

	id, err := f.engine.Write(ctx, buyer, callCommand())
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: 42})
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)

	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: otherCoin, OptionID: id}), domain.ErrAssetMismatch)

	f.height.Set(startHeight + 100)
	assert.ErrorIs(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}), domain.ErrOptionExpired)

	f.height.Set(startHeight + 99)
	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
	assert.ErrorIs(t, f.engine.Buy(ctx, writer, BuyCommand{Asset: usda, OptionID: id}), domain.ErrAlreadyHeld)

	opt, err := f.engine.GetOption(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, buyer, opt.Holder)
	assert.Equal(t, startBalance-10, f.balance(t, usda, buyer))
}

func TestBuyHeldListFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < domain.MaxListEntries+1; i++ {
		who := writer
		if i == domain.MaxListEntries {
			who = owner
			require.NoError(t, f.ledger.Mint(ctx, usda, owner, 1000))
		}
		id, err := f.engine.Write(ctx, who, callCommand())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids[:domain.MaxListEntries] {
		require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
	}

	before := f.balance(t, usda, buyer)
	err := f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: ids[domain.MaxListEntries]})
	assert.ErrorIs(t, err, domain.ErrListFull)
	assert.Equal(t, before, f.balance(t, usda, buyer))

	opt, err := f.engine.GetOption(ctx, ids[domain.MaxListEntries])
	require.NoError(t, err)
	assert.False(t, opt.HasHolder())
}

func TestExerciseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)

	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrNotHolder)

	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
	_, err = f.engine.Exercise(ctx, writer, ExerciseCommand{Asset: usda, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrNotHolder)

	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrPriceFeedNotFound)

	f.setPrice(t, 1200)
	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: otherCoin, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrAssetMismatch)

	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	require.NoError(t, err)
	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrAlreadyExercised)

	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: 99})
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)
}

func TestExerciseAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
	f.setPrice(t, 5000)

	f.height.Set(startHeight + 100)
	_, err = f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
	assert.ErrorIs(t, err, domain.ErrOptionExpired)

	// 过期不落库，状态仍为 ACTIVE，抵押留在托管
	opt, err := f.engine.GetOption(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OptionStateActive, opt.State)
	assert.Equal(t, uint64(1000), f.balance(t, usda, vault))
}

func TestPayoutPlusRemainderEqualsCollateral(t *testing.T) {
	for _, price := range []uint64{1, 500, 999, 1000, 1001, 1999, 2000, 1_000_000} {
		t.Run(fmt.Sprintf("price_%d", price), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			id, err := f.engine.Write(ctx, writer, callCommand())
			require.NoError(t, err)
			require.NoError(t, f.engine.Buy(ctx, buyer, BuyCommand{Asset: usda, OptionID: id}))
			f.setPrice(t, price)

			res, err := f.engine.Exercise(ctx, buyer, ExerciseCommand{Asset: usda, OptionID: id})
			require.NoError(t, err)
			assert.Equal(t, uint64(1000), res.Payout+res.Remainder)
			assert.Zero(t, f.balance(t, usda, vault))
			assert.Equal(t, 2*startBalance, f.balance(t, usda, writer)+f.balance(t, usda, buyer))
		})
	}
}

func TestOperationsRequireCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Write(ctx, "", callCommand())
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
	assert.ErrorIs(t, f.engine.Buy(ctx, "not a principal", BuyCommand{Asset: usda, OptionID: 1}), ErrInvalidPrincipal)
}

func TestCustodyCannotActAsCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	second, err := f.engine.Write(ctx, writer, callCommand())
	require.NoError(t, err)
	require.Equal(t, uint64(2000), f.balance(t, usda, vault))

	_, err = f.engine.Write(ctx, vault, callCommand())
	assert.ErrorIs(t, err, domain.ErrCustodyCaller)
	assert.ErrorIs(t, f.engine.Buy(ctx, vault, BuyCommand{Asset: usda, OptionID: second}), domain.ErrCustodyCaller)
	_, err = f.engine.Exercise(ctx, vault, ExerciseCommand{Asset: usda, OptionID: first})
	assert.ErrorIs(t, err, domain.ErrCustodyCaller)

	kind, ok := domain.KindOf(domain.ErrCustodyCaller)
	require.True(t, ok)
	assert.Equal(t, domain.KindAuthorization, kind)

	// 托管余额与期权状态均未变化
	assert.Equal(t, uint64(2000), f.balance(t, usda, vault))
	opt, err := f.engine.GetOption(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, opt.Holder)
	_, err = f.engine.GetOption(ctx, second+1)
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)
}

func TestWriteRejectsOutOfRangeValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	huge := domain.MaxValue + 10
	cases := map[string]func(*WriteCommand){
		"collateral and strike": func(c *WriteCommand) { c.CollateralAmount, c.StrikePrice = huge, huge },
		"premium":               func(c *WriteCommand) { c.Premium = huge },
		"expiry":                func(c *WriteCommand) { c.Expiry = huge },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := callCommand()
			mutate(&cmd)
			_, err := f.engine.Write(ctx, writer, cmd)
			assert.ErrorIs(t, err, domain.ErrAmountTooLarge)
		})
	}

	assert.Equal(t, startBalance, f.balance(t, usda, writer))
	assert.Zero(t, f.outboxCount(t, domain.OptionWrittenEventType))
}

func TestWriteBeforeDeploy(t *testing.T) {
	f := newUndeployedFixture(t)
	_, err := f.engine.Write(context.Background(), writer, callCommand())
	assert.ErrorIs(t, err, ErrNotDeployed)
}

func TestListOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.engine.Write(ctx, writer, callCommand())
		require.NoError(t, err)
	}
	pos, err := f.engine.GetUserPosition(ctx, writer)
	require.NoError(t, err)

	opts, err := f.engine.ListOptions(ctx, pos.Written.IDs())
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, uint64(3), opts[2].ID)
}
