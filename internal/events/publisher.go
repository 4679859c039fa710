// Package events publishes task lifecycle events to NATS so other services
// can follow the task stream without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

type Type string

const (
	TaskCreated         Type = "created"
	TaskStatusChanged   Type = "status_changed"
	TaskCommented       Type = "commented"
	DeadlineApproaching Type = "deadline_approaching"
	TaskOverdue         Type = "overdue"
)

type TaskEvent struct {
	Type       Type      `json:"type"`
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev TaskEvent) error
	Close() error
}

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func Connect(url, subjectPrefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("taskbot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: subjectPrefix}, nil
}

// Subject is <prefix>.<event type>.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Nop drops every event. Used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, TaskEvent) error { return nil }
func (Nop) Close() error                             { return nil }
