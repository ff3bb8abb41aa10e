// Package nats provides a NATS implementation of messaging.Transport.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

// Config holds NATS transport configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// QueueGroup load-balances deliveries across instances of the same service.
	// Empty means every subscriber receives every message.
	QueueGroup string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "whizbang",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Transport publishes envelopes as JSON NATS messages with the envelope identity in headers.
type Transport struct {
	conn       *nats.Conn
	queueGroup string
	logger     *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS and returns a ready transport.
func Connect(cfg Config, logger *slog.Logger) (*Transport, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to nats: %v", messaging.ErrTransportUnavailable, err)
	}

	return &Transport{conn: conn, queueGroup: cfg.QueueGroup, logger: logger}, nil
}

// Publish sends envelope to the destination subject.
func (t *Transport) Publish(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	msg := &nats.Msg{Subject: destination, Data: data, Header: make(nats.Header)}
	for k, v := range envelope.Headers() {
		msg.Header.Set(k, v)
	}

	if err := t.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: %v", messaging.ErrTransportUnavailable, err)
	}
	return nil
}

// Subscribe delivers envelopes published to destination to handler.
func (t *Transport) Subscribe(
	ctx context.Context,
	destination string,
	handler messaging.Handler,
) (messaging.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var envelope messaging.Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			t.logger.Error("discarding malformed envelope",
				slog.String("subject", msg.Subject),
				slog.Any("error", err),
			)
			return
		}
		if err := handler(ctx, &envelope); err != nil {
			t.logger.Error("envelope handler failed",
				slog.String("subject", msg.Subject),
				slog.String("message_id", envelope.MessageID.String()),
				slog.Any("error", err),
			)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if t.queueGroup != "" {
		sub, err = t.conn.QueueSubscribe(destination, t.queueGroup, cb)
	} else {
		sub, err = t.conn.Subscribe(destination, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", messaging.ErrTransportUnavailable, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	return sub, nil
}

// IsReady reports whether the connection is established.
func (t *Transport) IsReady(_ context.Context) bool {
	return t.conn != nil && t.conn.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil
	t.mu.Unlock()

	t.conn.Close()
	return nil
}
