package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends analysis events.  Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev AnalysisEvent) error
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AnalysisEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to QueueName on the
// default exchange.  Each publish opens its own connection.
type AMQPPublisher struct {
	URL string
	Log zerolog.Logger
}

func NewAMQPPublisher(url string, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Log: log.With().Str("component", "publisher").Logger()}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev AnalysisEvent) error {
	if err := p.publish(ctx, ev); err != nil {
		p.Log.Warn().Err(err).Str("type", ev.Type).Str("analysis_id", ev.AnalysisID).Msg("publish event")
		return err
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, ev AnalysisEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
}
