package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/route-matching/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits search_performed events keyed by operation.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		// one event per search; flush right away instead of waiting out the default 1s batch
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
	return NewKafkaPublisherFromWriter(w)
}

func NewKafkaPublisherFromWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

type searchPerformed struct {
	Type string `json:"type"`
	models.SearchEvent
}

func (k *KafkaPublisher) PublishSearch(ctx context.Context, ev models.SearchEvent) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(searchPerformed{Type: "search_performed", SearchEvent: ev})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Operation), Value: b, Time: ev.At})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
