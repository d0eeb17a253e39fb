// Package events publishes interview lifecycle signals over NATS for
// downstream consumers (analytics, tenant dashboards).
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lohnlab/tarifbot/internal/calc"
)

// SubjectCompleted carries finished interviews with their net result.
const SubjectCompleted = "tarifbot.interview.completed"

// SubjectEscalated carries validation circuit-breaker trips, a quality
// signal for the extraction prompts.
const SubjectEscalated = "tarifbot.validation.escalated"

// CompletedEvent is emitted once per finished interview.
type CompletedEvent struct {
	SessionRef   string  `json:"session_ref"`
	TenantID     string  `json:"tenant_id,omitempty"`
	GrossMonthly float64 `json:"gross_monthly"`
	Netto        float64 `json:"netto"`
	CompletedAt  string  `json:"completed_at"`
}

// EscalatedEvent is emitted when a field falls back to discrete choices.
type EscalatedEvent struct {
	SessionRef string `json:"session_ref"`
	TenantID   string `json:"tenant_id,omitempty"`
	Field      string `json:"field"`
	OccurredAt string `json:"occurred_at"`
}

type Client struct {
	conn     *nats.Conn
	tenantID string
	logger   *slog.Logger
}

func NewClient(url, token, tenantID string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, tenantID: tenantID, logger: logger}, nil
}

func (c *Client) InterviewCompleted(sessionID string, result *calc.TaxResult) error {
	return c.publish(SubjectCompleted, CompletedEvent{
		SessionRef:   sessionID,
		TenantID:     c.tenantID,
		GrossMonthly: result.GrossMonthly,
		Netto:        result.Netto,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *Client) ValidationEscalated(sessionID, field string) error {
	return c.publish(SubjectEscalated, EscalatedEvent{
		SessionRef: sessionID,
		TenantID:   c.tenantID,
		Field:      field,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *Client) publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Close() {
	c.conn.Close()
}
