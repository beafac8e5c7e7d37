package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ChannelProvider hands out the current channel and can replace a dropped one.
// *RabbitMQ implements it.
type ChannelProvider interface {
	PublishChannel() Channel
	Reconnect(ctx context.Context) error
}

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	mu       sync.Mutex
	channel  Channel
	provider ChannelProvider
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher declares the exchange and returns a publisher that follows
// rmq across reconnects
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return NewPublisherWithProvider(rmq, exchange, source, log), nil
}

// NewPublisherWithProvider builds a publisher that reconnects through provider
// when the broker drops its channel
func NewPublisherWithProvider(provider ChannelProvider, exchange, source string, log *logger.Logger) *Publisher {
	p := NewPublisherWithChannel(provider.PublishChannel(), exchange, source, log)
	p.provider = provider
	return p
}

// NewPublisherWithChannel builds a publisher on an already prepared channel
func NewPublisherWithChannel(ch Channel, exchange, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		source:   source,
		logger:   log,
	}
}

// Publish publishes an event to the exchange, using the event type as routing key.
// A closed channel is reopened once before giving up.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	correlationID := getCorrelationID(ctx)

	event, err := NewEvent(eventType, p.source, correlationID, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		MessageId:     event.ID,
		Timestamp:     event.Timestamp,
		Body:          body,
	}

	ch := p.current()
	err = ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
	if err != nil && p.provider != nil && isChannelClosed(err) {
		p.logger.Warn().Err(err).Str("event_type", eventType).Msg("channel closed, reconnecting")

		ch, err = p.reopen(ctx, ch)
		if err == nil {
			err = ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Str("correlation_id", correlationID).
		Msg("event published")

	return nil
}

func (p *Publisher) current() Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

// reopen replaces failed with a fresh channel. Concurrent callers that saw the
// same failed channel reconnect only once.
func (p *Publisher) reopen(ctx context.Context, failed Channel) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != failed {
		return p.channel, nil
	}
	if err := p.provider.Reconnect(ctx); err != nil {
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	p.channel = p.provider.PublishChannel()
	return p.channel, nil
}

func isChannelClosed(err error) bool {
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced
	}
	return false
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
