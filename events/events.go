// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"quickeats/gorest/models"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the message written for each created order and each status change.
type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	OldStatus   models.OrderStatus `json:"old_status,omitempty"`
	NewStatus   models.OrderStatus `json:"new_status"`
	ChangedBy   string             `json:"changed_by"`
	TotalAmount float64            `json:"total_amount"`
	Version     int64              `json:"version"`
	Timestamp   time.Time          `json:"timestamp"`
}

func Created(o *models.Order) OrderEvent {
	return OrderEvent{
		Type:        TypeOrderCreated,
		OrderID:     o.ID.Hex(),
		UserID:      o.UserID.Hex(),
		NewStatus:   o.Status,
		ChangedBy:   o.UserID.Hex(),
		TotalAmount: o.TotalAmount,
		Version:     o.Version,
		Timestamp:   o.CreatedAt,
	}
}

func StatusChanged(o *models.Order, old models.OrderStatus, changedBy string) OrderEvent {
	return OrderEvent{
		Type:        TypeOrderStatusChanged,
		OrderID:     o.ID.Hex(),
		UserID:      o.UserID.Hex(),
		OldStatus:   old,
		NewStatus:   o.Status,
		ChangedBy:   changedBy,
		TotalAmount: o.TotalAmount,
		Version:     o.Version,
		Timestamp:   o.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

// KafkaPublisher writes events keyed by order id so one order's events stay
// on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e OrderEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: b,
		Time:  e.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []OrderEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderEvent(nil), r.events...)
}
