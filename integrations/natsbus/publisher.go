package natsbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"pairvault/core/events"
	"pairvault/observability"
)

const sinkName = "nats"

type Config struct {
	URL            string
	Subject        string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// conn is the slice of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher forwards committed events to NATS as JSON envelopes. Each event is
// published on <subject>.<event type> so consumers can subscribe with
// wildcards such as "pairvault.events.vault.>".
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// Connect dials the NATS server described by cfg.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("natsbus: url required")
	}
	if cfg.Name == "" {
		cfg.Name = "pairvault"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("natsbus: disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("natsbus: reconnected", slog.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect: %w", err)
	}
	return newPublisher(nc, cfg.Subject, logger), nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = "pairvault.events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, subject: subject, logger: logger, now: time.Now}
}

// Subject returns the subject evt is published on.
func (p *Publisher) Subject(eventType string) string {
	if eventType == "" {
		return p.subject
	}
	return p.subject + "." + eventType
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(evt events.Event) {
	if p == nil || evt == nil {
		return
	}
	err := p.Publish(events.NewEnvelope(evt, p.now()))
	observability.Events().RecordSink(sinkName, err)
	if err != nil {
		p.logger.Error("natsbus: publish failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Publish sends env.
func (p *Publisher) Publish(env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("natsbus: marshal: %w", err)
	}
	return p.conn.Publish(p.Subject(env.Type), payload)
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
