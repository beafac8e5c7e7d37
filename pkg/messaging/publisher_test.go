package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	calls    int
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.calls++
	c.exchange = exchange
	c.key = key
	c.msg = msg
	return c.err
}

type fakeProvider struct {
	channels   []*recordingChannel
	reconnects int
	err        error
}

func (f *fakeProvider) PublishChannel() Channel {
	return f.channels[min(f.reconnects, len(f.channels)-1)]
}

func (f *fakeProvider) Reconnect(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.reconnects++
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := NewPublisherWithChannel(ch, ExchangeAuditEvents, "profile-service", logger.Nop())

	ctx := WithCorrelationID(context.Background(), "req-1")
	err := p.Publish(ctx, AuditRoutingPrefix+"generate", map[string]string{"outcome": "success"})
	require.NoError(t, err)

	assert.Equal(t, "audit.events", ch.exchange)
	assert.Equal(t, "audit.profile.generate", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "req-1", ch.msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var event Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &event))
	assert.Equal(t, "profile-service", event.Source)
	assert.Equal(t, ch.msg.MessageId, event.ID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "success", data["outcome"])
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &recordingChannel{err: errors.New("channel closed")}
	p := NewPublisherWithChannel(ch, ExchangeAuditEvents, "profile-service", logger.Nop())

	err := p.Publish(context.Background(), "audit.profile.export", struct{}{})
	assert.ErrorContains(t, err, "channel closed")
}

func TestPublisher_ReconnectsClosedChannel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"closed", amqp.ErrClosed},
		{"wrapped closed", fmt.Errorf("publish: %w", amqp.ErrClosed)},
		{"channel error", &amqp.Error{Code: amqp.ChannelError, Reason: "channel exception"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dropped := &recordingChannel{err: tt.err}
			fresh := &recordingChannel{}
			provider := &fakeProvider{channels: []*recordingChannel{dropped, fresh}}
			p := NewPublisherWithProvider(provider, ExchangeAuditEvents, "profile-service", logger.Nop())

			require.NoError(t, p.Publish(context.Background(), "audit.profile.upload", struct{}{}))
			require.NoError(t, p.Publish(context.Background(), "audit.profile.export", struct{}{}))

			assert.Equal(t, 1, provider.reconnects)
			assert.Equal(t, 1, dropped.calls)
			assert.Equal(t, 2, fresh.calls)
			assert.Equal(t, "audit.profile.export", fresh.key)
		})
	}
}

func TestPublisher_ReconnectFailure(t *testing.T) {
	dropped := &recordingChannel{err: amqp.ErrClosed}
	provider := &fakeProvider{channels: []*recordingChannel{dropped}, err: errors.New("broker unreachable")}
	p := NewPublisherWithProvider(provider, ExchangeAuditEvents, "profile-service", logger.Nop())

	err := p.Publish(context.Background(), "audit.profile.upload", struct{}{})
	assert.ErrorContains(t, err, "broker unreachable")
	assert.Equal(t, 1, dropped.calls)
}

func TestPublisher_OtherErrorsDoNotReconnect(t *testing.T) {
	ch := &recordingChannel{err: errors.New("publish timeout")}
	provider := &fakeProvider{channels: []*recordingChannel{ch}}
	p := NewPublisherWithProvider(provider, ExchangeAuditEvents, "profile-service", logger.Nop())

	err := p.Publish(context.Background(), "audit.profile.upload", struct{}{})
	assert.ErrorContains(t, err, "publish timeout")
	assert.Equal(t, 0, provider.reconnects)
}
