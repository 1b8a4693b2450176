package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionsvault/pkg/db"
)

type sentMessage struct {
	topic string
	key   string
	env   Envelope
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, topic, key string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, env: value.(Envelope)})
	return nil
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.AutoMigrate(&OutboxMessage{}))
	return d
}

func TestPublishFollowsTransaction(t *testing.T) {
	d := newTestDB(t)
	pub := NewOutboxPublisher(d, slog.Default())
	ctx := context.Background()

	boom := errors.New("boom")
	err := d.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, pub.Publish(txCtx, "options.written", "1", map[string]int{"option_id": 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, d.Model(&OutboxMessage{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, d.WithTx(ctx, func(txCtx context.Context) error {
		return pub.Publish(txCtx, "options.written", "1", map[string]int{"option_id": 1})
	}))
	require.NoError(t, d.Model(&OutboxMessage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRelayOnce(t *testing.T) {
	d := newTestDB(t)
	pub := NewOutboxPublisher(d, slog.Default())
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, "options.written", "1", map[string]int{"option_id": 1}))
	require.NoError(t, pub.Publish(ctx, "options.bought", "1", map[string]int{"option_id": 1}))

	sender := &fakeSender{}
	relay := NewRelay(d, sender, "optionsvault", 10, 0, slog.Default())

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "optionsvault.options.written", sender.sent[0].topic)
	assert.Equal(t, "1", sender.sent[0].key)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(sender.sent[1].env.Payload, &payload))
	assert.Equal(t, 1, payload["option_id"])

	// 已投递的不再重复发送
	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayStopsOnSendFailure(t *testing.T) {
	d := newTestDB(t)
	pub := NewOutboxPublisher(d, slog.Default())
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, "pricefeed.updated", "BTC-USD", map[string]int{"price": 1}))

	relay := NewRelay(d, &fakeSender{err: errors.New("broker down")}, "", 10, 0, slog.Default())
	n, err := relay.RelayOnce(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	var msg OutboxMessage
	require.NoError(t, d.First(&msg).Error)
	assert.Equal(t, StatusPending, msg.Status)
	assert.Equal(t, 1, msg.Attempts)
}

func TestRelayPreservesInsertionOrder(t *testing.T) {
	d := newTestDB(t)
	pub := NewOutboxPublisher(d, slog.Default())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, pub.Publish(ctx, "options.written", strconv.Itoa(i), map[string]int{"option_id": i}))
	}
	// 创建时间完全相同时仍按写入顺序投递
	require.NoError(t, d.Model(&OutboxMessage{}).Where("1 = 1").
		UpdateColumn("created_at", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).Error)

	sender := &fakeSender{}
	n, err := NewRelay(d, sender, "", 100, 0, slog.Default()).RelayOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	for i, m := range sender.sent {
		assert.Equal(t, strconv.Itoa(i), m.key)
	}
}
