// Package events publishes domain events for downstream consumers (shop runtime, analytics).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	PaymentConfirmed = "payment.confirmed"
	PaymentRejected  = "payment.rejected"
	ShopCreated      = "shop.created"
	ShopApproved     = "shop.approved"
	ShopSuspended    = "shop.suspended"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    logrus.FieldLogger
}

func NewNATSPublisher(url, prefix string, log logrus.FieldLogger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("mother-bot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}
	return p.conn.Publish(full, data)
}

func (p *NATSPublisher) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats status %s", p.conn.Status())
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.WithError(err).Warn("nats drain failed")
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Payload: payload})
	return nil
}

// Subjects lists recorded subjects in publish order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Subject)
	}
	return out
}
