package harvest

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Announcer publishes per-dataset refresh summaries to NATS so downstream
// consumers (dashboards, cache invalidators) learn about registry changes
// without polling the registry directory.
type Announcer struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewAnnouncer connects to NATS and returns an Announcer publishing under
// subject ("semharvest.refresh" by default), one message per dataset at
// "<subject>.<dataset>".
func NewAnnouncer(url, subject string, logger *slog.Logger) (*Announcer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = "semharvest.refresh"
	}
	conn, err := nats.Connect(url, nats.Name("semharvest"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Announcer{conn: conn, subject: subject, logger: logger}, nil
}

// Announce publishes one dataset report.
func (a *Announcer) Announce(rep DatasetReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal dataset report: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", a.subject, rep.Dataset)
	if err := a.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (a *Announcer) Close() {
	if err := a.conn.Drain(); err != nil {
		a.logger.Warn("drain NATS connection", slog.String("error", err.Error()))
	}
}
