package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/route-matching/internal/models"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher emits search events to a topic exchange with routing key
// search.<operation>.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// DialAMQP connects with exponential backoff and declares the exchange.
func DialAMQP(url, exchange string, attempts int) (*AMQPPublisher, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	delay := time.Second
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if i < attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to amqp after %d attempts: %w", attempts, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p, err := NewAMQPPublisherFromChannel(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewAMQPPublisherFromChannel(ch Channel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange}, nil
}

func (a *AMQPPublisher) PublishSearch(ctx context.Context, ev models.SearchEvent) error {
	body, err := json.Marshal(searchPerformed{Type: "search_performed", SearchEvent: ev})
	if err != nil {
		return fmt.Errorf("marshal search event: %w", err)
	}
	return a.ch.PublishWithContext(ctx, a.exchange, "search."+ev.Operation, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.At,
		Body:        body,
	})
}

func (a *AMQPPublisher) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
