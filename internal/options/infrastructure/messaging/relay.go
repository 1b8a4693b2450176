package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/wyfcoding/optionsvault/pkg/db"
)

// Sender 消息发送能力，由 mq.KafkaProducer 实现
type Sender interface {
	SendMessage(ctx context.Context, topic string, key string, value any) error
}

// Relay 轮询 outbox，将待投递事件发送到 Kafka
type Relay struct {
	db          *db.DB
	sender      Sender
	topicPrefix string
	batchSize   int
	interval    time.Duration
	logger      *slog.Logger
}

// NewRelay 创建投递器，topic 为 <topicPrefix>.<事件类型>
func NewRelay(d *db.DB, sender Sender, topicPrefix string, batchSize int, interval time.Duration, logger *slog.Logger) *Relay {
	if topicPrefix != "" && !strings.HasSuffix(topicPrefix, ".") {
		topicPrefix += "."
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		db:          d,
		sender:      sender,
		topicPrefix: topicPrefix,
		batchSize:   batchSize,
		interval:    interval,
		logger:      logger.With("module", "outbox_relay"),
	}
}

// Run 阻塞运行直到 ctx 取消
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(context.Background(), "outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce 投递一批，按 Seq 顺序逐条发送；某条失败即停止，保证同一 key 的顺序
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var msgs []OutboxMessage
	if err := r.db.Conn(ctx).
		Where("status = ?", StatusPending).
		Order("seq ASC").
		Limit(r.batchSize).
		Find(&msgs).Error; err != nil {
		return 0, err
	}

	sent := 0
	for i := range msgs {
		m := &msgs[i]
		env := Envelope{
			EventID:   m.ID,
			EventType: m.EventType,
			Key:       m.EventKey,
			Payload:   json.RawMessage(m.Payload),
			CreatedAt: m.CreatedAt,
		}
		if err := r.sender.SendMessage(ctx, r.topicPrefix+m.EventType, m.EventKey, env); err != nil {
			if uerr := r.db.Conn(ctx).Model(m).UpdateColumn("attempts", m.Attempts+1).Error; uerr != nil {
				r.logger.ErrorContext(ctx, "failed to record outbox attempt", "event_id", m.ID, "error", uerr)
			}
			return sent, err
		}
		if err := r.db.Conn(ctx).Model(m).Updates(map[string]any{
			"status":   StatusSent,
			"attempts": m.Attempts + 1,
		}).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
