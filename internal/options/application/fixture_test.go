package application

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionsvault/internal/options/domain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/chain"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/custody"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/messaging"
	"github.com/wyfcoding/optionsvault/internal/options/infrastructure/persistence/mysql"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/idgen"
	"github.com/wyfcoding/optionsvault/pkg/metrics"
)

const (
	owner     = "ST1OWNER"
	vault     = "ST1CUSTODY"
	writer    = "ST1WRITER"
	buyer     = "ST1BUYER"
	usda      = "ST1TOKEN.usda-token"
	otherCoin = "ST1TOKEN.other-token"
	btcUSD    = "BTC-USD"

	startHeight  uint64 = 100
	startBalance uint64 = 1_000_000
)

type fixture struct {
	db      *db.DB
	height  *chain.ManualHeight
	ledger  *custody.Ledger
	metrics *metrics.Metrics
	engine  *OptionsService
	gov     *GovernanceService
}

func newUndeployedFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.Init(db.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AutoMigrate(mysql.Models()...))
	require.NoError(t, d.AutoMigrate(custody.Models()...))
	require.NoError(t, d.AutoMigrate(&messaging.OutboxMessage{}))

	ids, err := idgen.New(1)
	require.NoError(t, err)
	ledger := custody.NewLedger(d, ids, slog.Default())
	for _, asset := range []string{usda, otherCoin} {
		require.NoError(t, ledger.Register(ctx, custody.Metadata{AssetID: asset, Name: asset, Symbol: "TKN", Decimals: 6}))
		require.NoError(t, ledger.Mint(ctx, asset, writer, startBalance))
		require.NoError(t, ledger.Mint(ctx, asset, buyer, startBalance))
	}

	m := metrics.New("apptest")
	require.NoError(t, m.Register())

	height := chain.NewManualHeight(startHeight)
	deps := Deps{
		Options:    mysql.NewOptionRepository(d),
		Positions:  mysql.NewPositionRepository(d),
		Feeds:      mysql.NewPriceFeedRepository(d),
		Whitelists: mysql.NewWhitelistRepository(d),
		Protocol:   mysql.NewProtocolRepository(d),
		Assets:     ledger,
		Height:     height,
		Events:     messaging.NewOutboxPublisher(d, slog.Default()),
		Metrics:    m,
		Executor:   NewExecutor(d),
	}
	cfg := Config{
		Custody:         vault,
		ReferenceSymbol: btcUSD,
		CriticalAssets:  []string{usda},
		CriticalSymbols: []string{btcUSD, "STX-USD"},
		DefaultFeeRate:  domain.DefaultProtocolFeeRate,
	}

	return &fixture{
		db:      d,
		height:  height,
		ledger:  ledger,
		metrics: m,
		engine:  NewOptionsService(deps, cfg, slog.Default()),
		gov:     NewGovernanceService(deps, cfg, slog.Default()),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newUndeployedFixture(t)
	_, err := f.gov.Deploy(context.Background(), owner)
	require.NoError(t, err)
	return f
}

func (f *fixture) balance(t *testing.T, asset, who string) uint64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), asset, who)
	require.NoError(t, err)
	return b
}

func (f *fixture) setPrice(t *testing.T, price uint64) {
	t.Helper()
	h, _ := f.height.Height(context.Background())
	require.NoError(t, f.gov.UpdatePriceFeed(context.Background(), owner, btcUSD, price, h))
}

func (f *fixture) outboxCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&messaging.OutboxMessage{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func callCommand() WriteCommand {
	return WriteCommand{
		Asset:            usda,
		CollateralAmount: 1000,
		StrikePrice:      1000,
		Premium:          10,
		Expiry:           startHeight + 100,
		Type:             domain.OptionTypeCall,
	}
}
