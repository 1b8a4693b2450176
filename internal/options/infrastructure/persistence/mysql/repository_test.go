package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/pkg/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AutoMigrate(Models()...))
	return d
}

func TestOptionRepository(t *testing.T) {
	d := newTestDB(t)
	repo := NewOptionRepository(d)
	ctx := context.Background()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)
	// 超出存储范围的 ID 不访问数据库
	_, err = repo.Get(ctx, domain.MaxValue+1)
	assert.ErrorIs(t, err, domain.ErrOptionNotFound)

	o := domain.NewOption(1, "ST1WRITER", domain.WriteParams{
		Asset: "ST1TOKEN.usda-token", CollateralAmount: 1000, StrikePrice: 1000,
		Premium: 10, Expiry: 200, Type: domain.OptionTypePut,
	})
	require.NoError(t, repo.Save(ctx, o))

	o.Holder = "ST1BUYER"
	o.MarkExercised()
	// 不可变字段的改动不会落库
	o.StrikePrice = 1
	require.NoError(t, repo.Save(ctx, o))

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ST1BUYER", got.Holder)
	assert.True(t, got.IsExercised)
	assert.Equal(t, domain.OptionStateExercised, got.State)
	assert.Equal(t, domain.OptionTypePut, got.Type)
	assert.Equal(t, uint64(1000), got.StrikePrice)
}

func TestOptionRepositoryListByIDs(t *testing.T) {
	d := newTestDB(t)
	repo := NewOptionRepository(d)
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, repo.Save(ctx, domain.NewOption(id, "ST1WRITER", domain.WriteParams{
			Asset: "ST1TOKEN.usda-token", CollateralAmount: 10, StrikePrice: 10,
			Premium: 1, Expiry: 50, Type: domain.OptionTypeCall,
		})))
	}

	got, err := repo.ListByIDs(ctx, []uint64{3, 1, 42})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)

	got, err = repo.ListByIDs(ctx, []uint64{domain.MaxValue + 1, 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].ID)
}

func TestPositionRepository(t *testing.T) {
	d := newTestDB(t)
	repo := NewPositionRepository(d)
	ctx := context.Background()

	p, err := repo.Get(ctx, "ST1WRITER")
	require.NoError(t, err)
	assert.Nil(t, p)

	p = domain.NewPosition("ST1WRITER")
	require.NoError(t, p.RecordWrite(1, 1000))
	require.NoError(t, repo.Save(ctx, p))
	require.NoError(t, p.RecordWrite(2, 500))
	require.NoError(t, p.RecordHold(3))
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.Get(ctx, "ST1WRITER")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got.Written.IDs())
	assert.Equal(t, []uint64{3}, got.Held.IDs())
	assert.Equal(t, uint64(1500), got.TotalCollateralLocked)
}

func TestPriceFeedRepository(t *testing.T) {
	d := newTestDB(t)
	repo := NewPriceFeedRepository(d)
	ctx := context.Background()

	f, err := repo.Get(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, repo.Save(ctx, &domain.PriceFeed{Symbol: "BTC-USD", Price: 1500, Timestamp: 10, Source: "ST1OWNER"}))
	require.NoError(t, repo.Save(ctx, &domain.PriceFeed{Symbol: "BTC-USD", Price: 800, Timestamp: 12, Source: "ST1OWNER"}))

	f, err = repo.Get(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, &domain.PriceFeed{Symbol: "BTC-USD", Price: 800, Timestamp: 12, Source: "ST1OWNER"}, f)

	var count int64
	require.NoError(t, d.Model(&PriceFeedModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWhitelistRepository(t *testing.T) {
	d := newTestDB(t)
	repo := NewWhitelistRepository(d)
	ctx := context.Background()

	ok, err := repo.IsApproved(ctx, domain.WhitelistAsset, "ST1TOKEN.usda-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, domain.WhitelistAsset, "ST1TOKEN.usda-token", true))
	require.NoError(t, repo.Set(ctx, domain.WhitelistSymbol, "ST1TOKEN.usda-token", false))
	require.NoError(t, repo.Set(ctx, domain.WhitelistSymbol, "BTC-USD", true))

	ok, err = repo.IsApproved(ctx, domain.WhitelistAsset, "ST1TOKEN.usda-token")
	require.NoError(t, err)
	assert.True(t, ok)

	symbols, err := repo.List(ctx, domain.WhitelistSymbol)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"BTC-USD": true, "ST1TOKEN.usda-token": false}, symbols)
}

func TestProtocolRepository(t *testing.T) {
	d := newTestDB(t)
	repo := NewProtocolRepository(d)
	ctx := context.Background()

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, repo.Save(ctx, &domain.ProtocolState{Owner: "ST1OWNER", NextOptionID: 1, ProtocolFeeRate: 50}))
	require.NoError(t, repo.Save(ctx, &domain.ProtocolState{Owner: "ST1OWNER", NextOptionID: 2, ProtocolFeeRate: 75}))

	s, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.ProtocolState{Owner: "ST1OWNER", NextOptionID: 2, ProtocolFeeRate: 75}, s)
}

func TestRepositoriesJoinTransaction(t *testing.T) {
	d := newTestDB(t)
	feeds := NewPriceFeedRepository(d)
	ctx := context.Background()

	err := d.WithTx(ctx, func(txCtx context.Context) error {
		if err := feeds.Save(txCtx, &domain.PriceFeed{Symbol: "BTC-USD", Price: 1, Timestamp: 1, Source: "ST1OWNER"}); err != nil {
			return err
		}
		return domain.ErrInvalidPrice
	})
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	f, err := feeds.Get(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Nil(t, f)
}
