package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewProducerRequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewProducer(WithTopic("events")); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"})); err == nil {
		t.Fatalf("expected error without topic")
	}
}

func TestNewProducerAppliesOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithTopic("events"),
		WithCompression("zstd"),
		WithRequiredAcks(-1),
		WithMaxAttempts(7),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	if p.Topic() != "events" || p.writer.Topic != "events" {
		t.Fatalf("topic=%q", p.writer.Topic)
	}
	if p.writer.Compression != kafka.Zstd {
		t.Fatalf("compression=%v", p.writer.Compression)
	}
	if p.writer.RequiredAcks != kafka.RequireAll || p.writer.MaxAttempts != 7 {
		t.Fatalf("acks=%v attempts=%d", p.writer.RequiredAcks, p.writer.MaxAttempts)
	}
}

func TestParseCompressionDefault(t *testing.T) {
	if parseCompression("") != kafka.Snappy || parseCompression("gzip") != kafka.Gzip {
		t.Fatalf("unexpected compression mapping")
	}
}
