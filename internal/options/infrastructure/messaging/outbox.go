// Package messaging 领域事件的 Outbox 发布与 Kafka 投递
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/optionsvault/pkg/db"
	"github.com/wyfcoding/optionsvault/pkg/idgen"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// OutboxMessage 待投递事件
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Seq       int64     `gorm:"not null;index"` // 雪花序号，决定投递顺序
	EventType string    `gorm:"type:varchar(100);index"`
	EventKey  string    `gorm:"type:varchar(100)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	Attempts  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "options_outbox_messages"
}

// Envelope 投递到 Kafka 的消息体
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// OutboxPublisher 实现 domain.EventPublisher：事件与业务数据写入同一事务
type OutboxPublisher struct {
	db     *db.DB
	logger *slog.Logger
}

// NewOutboxPublisher 创建 Outbox 发布者
func NewOutboxPublisher(d *db.DB, logger *slog.Logger) *OutboxPublisher {
	return &OutboxPublisher{db: d, logger: logger.With("module", "outbox")}
}

// Publish 写入 outbox，ctx 中有事务时随事务提交
func (p *OutboxPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	msg := &OutboxMessage{
		ID:        uuid.New().String(),
		Seq:       idgen.Default().Next(),
		EventType: eventType,
		EventKey:  key,
		Payload:   string(payload),
		Status:    StatusPending,
	}
	if err := p.db.Conn(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("save outbox message: %w", err)
	}
	p.logger.DebugContext(ctx, "event staged", "event_type", eventType, "key", key, "event_id", msg.ID)
	return nil
}
