package custody

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/idgen"
)

const usda = "ST1TOKEN.usda-token"

func newTestLedger(t *testing.T) (*Ledger, *db.DB) {
	t.Helper()
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AutoMigrate(Models()...))

	ids, err := idgen.New(3)
	require.NoError(t, err)
	l := NewLedger(d, ids, slog.Default())
	require.NoError(t, l.Register(context.Background(), Metadata{AssetID: usda, Name: "USDA", Symbol: "USDA", Decimals: 6}))
	return l, d
}

func TestMintAndMetadata(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, usda, "ST1ALICE", 1000))
	require.NoError(t, l.Mint(ctx, usda, "ST1ALICE", 500))

	bal, err := l.Balance(ctx, usda, "ST1ALICE")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), bal)

	meta, err := l.Metadata(ctx, usda)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), meta.TotalSupply)
	assert.Equal(t, uint8(6), meta.Decimals)

	// 重复登记不重置供应量
	require.NoError(t, l.Register(ctx, Metadata{AssetID: usda, Name: "USDA v2", Symbol: "USDA", Decimals: 6}))
	meta, err = l.Metadata(ctx, usda)
	require.NoError(t, err)
	assert.Equal(t, "USDA v2", meta.Name)
	assert.Equal(t, uint64(1500), meta.TotalSupply)

	assert.ErrorIs(t, l.Mint(ctx, "ST1TOKEN.unknown", "ST1ALICE", 1), ErrAssetNotFound)
}

func TestTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usda, "ST1ALICE", 1000))

	require.NoError(t, l.Transfer(ctx, usda, 400, "ST1ALICE", "ST1BOB", "premium"))

	alice, _ := l.Balance(ctx, usda, "ST1ALICE")
	bob, _ := l.Balance(ctx, usda, "ST1BOB")
	assert.Equal(t, uint64(600), alice)
	assert.Equal(t, uint64(400), bob)

	err := l.Transfer(ctx, usda, 601, "ST1ALICE", "ST1BOB", "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	alice, _ = l.Balance(ctx, usda, "ST1ALICE")
	assert.Equal(t, uint64(600), alice)

	transfers, err := l.Transfers(ctx, usda, "ST1BOB", 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "premium", transfers[0].Memo)
}

func TestTransferZeroAmountIsNoop(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// 零余额主体之间的零额转账同样成功
	require.NoError(t, l.Transfer(ctx, usda, 0, "ST1ALICE", "ST1BOB", "payout"))
	transfers, err := l.Transfers(ctx, usda, "", 10)
	require.NoError(t, err)
	assert.Empty(t, transfers)

	assert.ErrorIs(t, l.Transfer(ctx, "ST1TOKEN.unknown", 0, "ST1ALICE", "ST1BOB", ""), ErrAssetNotFound)
	assert.ErrorIs(t, l.Transfer(ctx, usda, 1, "", "ST1BOB", ""), ErrInvalidOwner)
}

func TestTransferRollsBackWithOuterTx(t *testing.T) {
	l, d := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usda, "ST1ALICE", 1000))

	boom := errors.New("boom")
	err := d.WithTx(ctx, func(txCtx context.Context) error {
		if err := l.Transfer(txCtx, usda, 1000, "ST1ALICE", "ST1BOB", ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	alice, _ := l.Balance(ctx, usda, "ST1ALICE")
	bob, _ := l.Balance(ctx, usda, "ST1BOB")
	assert.Equal(t, uint64(1000), alice)
	assert.Zero(t, bob)
}
