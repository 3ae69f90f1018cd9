package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/avast/retry-go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// ExchangeName is the topic exchange all report events go to
	ExchangeName = "evlc.reports"

	publishTimeout = 5 * time.Second
	reconnectDelay = 5 * time.Second
)

// amqpChannel is the part of *amqp.Channel the publisher needs
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// session is one live connection and channel. connLost and chanLost fire
// when the broker drops either of them.
type session struct {
	conn     io.Closer
	channel  amqpChannel
	connLost <-chan *amqp.Error
	chanLost <-chan *amqp.Error
}

// RabbitMQ publishes events to a durable topic exchange and reconnects when
// the broker drops the connection. Publishes fail fast while reconnecting.
type RabbitMQ struct {
	mu      sync.Mutex
	url     string
	conn    io.Closer
	channel amqpChannel

	dial      func(url string) (*session, error)
	delay     time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// NewRabbitMQ dials url and declares the exchange, retrying the dial a few
// times while the broker starts up
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	r := &RabbitMQ{
		url:   url,
		dial:  dialSession,
		delay: reconnectDelay,
		done:  make(chan struct{}),
	}
	err := retry.Do(
		r.connect,
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zap.S().Warnw("rabbitmq connect failed, retrying",
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func dialSession(url string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &session{
		conn:     conn,
		channel:  ch,
		connLost: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chanLost: ch.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

func (r *RabbitMQ) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *RabbitMQ) connect() error {
	if r.closed() {
		return errors.New("publisher closed")
	}
	s, err := r.dial(r.url)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed() {
		r.mu.Unlock()
		s.channel.Close()
		s.conn.Close()
		return errors.New("publisher closed")
	}
	r.conn = s.conn
	r.channel = s.channel
	r.mu.Unlock()

	go r.watch(s)
	zap.S().Infow("rabbitmq connected", "exchange", ExchangeName)
	return nil
}

// watch waits for s to drop and dials again until it succeeds or the
// publisher is closed
func (r *RabbitMQ) watch(s *session) {
	var cause *amqp.Error
	select {
	case <-r.done:
		return
	case cause = <-s.connLost:
	case cause = <-s.chanLost:
	}
	zap.S().Warnw("rabbitmq connection lost, reconnecting", "error", cause)

	r.mu.Lock()
	if r.channel == s.channel {
		r.channel = nil
		r.conn = nil
	}
	r.mu.Unlock()
	_ = s.conn.Close()

	for {
		err := r.connect()
		if err == nil {
			return
		}
		zap.S().Warnw("rabbitmq reconnect failed",
			"retryIn", r.delay,
			"error", err)
		select {
		case <-r.done:
			return
		case <-time.After(r.delay):
		}
	}
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel == nil {
		return errors.New("channel not available")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	zap.S().Debugw("published event", "routingKey", routingKey)
	return nil
}

// ReportCreated implements Publisher
func (r *RabbitMQ) ReportCreated(ctx context.Context, msg ReportCreated) error {
	return r.publish(ctx, RoutingKeyReportCreated, msg)
}

// StatusChanged implements Publisher
func (r *RabbitMQ) StatusChanged(ctx context.Context, msg StatusChanged) error {
	return r.publish(ctx, RoutingKeyStatusChanged, msg)
}

// VoteReceived implements Publisher
func (r *RabbitMQ) VoteReceived(ctx context.Context, msg VoteReceived) error {
	return r.publish(ctx, RoutingKeyVoteReceived, msg)
}

// Close stops reconnecting and shuts the channel and connection
func (r *RabbitMQ) Close() error {
	if r.done != nil {
		r.closeOnce.Do(func() { close(r.done) })
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
		r.channel = nil
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
		r.conn = nil
	}
	return errors.Join(errs...)
}
