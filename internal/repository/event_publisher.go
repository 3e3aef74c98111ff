package repository

import (
	"context"
	"time"

	"TradeSentinel/internal/domain/models"
)

// EventWriter is the slice of pkg/kafka.Producer the publisher needs.
type EventWriter interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher mirrors every notification onto a Kafka topic as JSON.
// Messages are keyed by instrument so one pair keeps its order within a partition.
type KafkaEventPublisher struct {
	w EventWriter
}

func NewKafkaEventPublisher(w EventWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{w: w}
}

func (p *KafkaEventPublisher) Name() string    { return "kafka" }
func (p *KafkaEventPublisher) Throttled() bool { return false }

type event struct {
	Kind       string                 `json:"kind"`
	Instrument string                 `json:"instrument,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Text       string                 `json:"text"`
	At         int64                  `json:"at"`
	AtRFC3339  string                 `json:"at_rfc3339"`
}

func (p *KafkaEventPublisher) Send(ctx context.Context, n models.Notification) error {
	key := n.Instrument
	if key == "" {
		key = string(n.Kind)
	}
	return p.w.Publish(ctx, []byte(key), event{
		Kind:       string(n.Kind),
		Instrument: n.Instrument,
		Fields:     n.Fields,
		Text:       n.Text,
		At:         n.CreatedAt.UnixMilli(),
		AtRFC3339:  n.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (p *KafkaEventPublisher) Close() error {
	if p.w != nil {
		return p.w.Close()
	}
	return nil
}
