// Package broker publishes sync failure summaries to RabbitMQ so that other
// services can route them to the people who fix the data.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/constants"
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/metrics"
	"github.com/agentstation/syncbridge/pkg/notifier"
)

// Channel is the part of an AMQP channel the publisher uses.
type Channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher sends notifier messages to a topic exchange and waits for the
// broker to confirm each one.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger

	healthy   atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
}

var _ notifier.Inbox = (*Publisher)(nil)

// Dial connects to url, declares the exchange and enables publisher
// confirms. The broker health gauge follows the connection state.
func Dial(url, exchange string, logger *zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = constants.DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.WrapResource("connect", "broker", "", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.WrapResource("open", "channel", "", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.WrapResource("declare", "exchange", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.WrapResource("enable", "publisher confirms", "", err)
	}

	p := NewPublisher(ch, exchange, logger)
	p.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case err := <-connClosed:
			p.markDown()
			logger.Warn().Err(err).Msg("broker connection closed")
		case err := <-chanClosed:
			p.markDown()
			logger.Warn().Err(err).Msg("broker channel closed")
		case <-ctx.Done():
		}
	}()

	logger.Info().Str("exchange", exchange).Msg("connected to broker")
	return p, nil
}

// NewPublisher wraps an open channel that already has confirms enabled.
func NewPublisher(ch Channel, exchange string, logger *zerolog.Logger) *Publisher {
	p := &Publisher{
		channel:  ch,
		exchange: exchange,
		timeout:  constants.PublishTimeout,
		logger:   logger,
	}
	p.healthy.Store(true)
	metrics.BrokerHealthy.Set(1)
	return p
}

func (p *Publisher) markDown() {
	p.healthy.Store(false)
	metrics.BrokerHealthy.Set(0)
}

// IsHealthy reports whether the connection and channel are open.
func (p *Publisher) IsHealthy() bool {
	return p.healthy.Load()
}

// RoutingKey derives the topic for a message: sync.failures.<integration>.<object>.
func RoutingKey(msg notifier.Message) string {
	return "sync.failures." + topicWord(msg.Integration) + "." + topicWord(msg.Object)
}

func topicWord(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Publishing encodes msg as a persistent JSON message.
func Publishing(msg notifier.Message, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode message: %w", err)
	}
	return amqp.Publishing{
		Headers: amqp.Table{
			"integration": msg.Integration,
			"object":      msg.Object,
			"entries":     int32(len(msg.Entries)),
		},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Body:         body,
	}, nil
}

// Send implements notifier.Inbox. It blocks until the broker acks the
// message, nacks it, or the publish timeout passes.
func (p *Publisher) Send(ctx context.Context, msg notifier.Message) error {
	if !p.IsHealthy() {
		return errors.NewResourceError("publish", "notification", "", errors.New("broker connection is closed"))
	}

	publishing, err := Publishing(msg, time.Now().UTC())
	if err != nil {
		return err
	}
	key := RoutingKey(msg)
	logger := p.logger.With().Str("routing_key", key).Str("message_id", publishing.MessageId).Logger()

	deferred, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, publishing)
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish notification")
		return errors.WrapResource("publish", "notification", publishing.MessageId, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return errors.NewResourceError("publish", "notification", publishing.MessageId, errors.New("broker nack"))
		}
		logger.Debug().Int("entries", len(msg.Entries)).Msg("notification published")
		return nil
	case <-timer.C:
		return errors.NewResourceError("publish", "notification", publishing.MessageId, errors.New("publisher confirm timeout"))
	}
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.channel != nil {
			_ = p.channel.Close()
		}
		if p.conn != nil {
			_ = p.conn.Close()
		}
		p.markDown()
	})
	return nil
}
