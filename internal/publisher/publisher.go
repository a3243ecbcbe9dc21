// Package publisher announces finished exports on a NATS subject.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ExportCompleted is the event published after a successful export
type ExportCompleted struct {
	Owner              string    `json:"owner"`
	Repo               string    `json:"repo"`
	Since              time.Time `json:"since,omitempty"`
	GeneratedAt        time.Time `json:"generated_at"`
	TotalCommits       int       `json:"total_commits"`
	ActiveContributors int       `json:"active_contributors"`
	BusFactor          int       `json:"bus_factor"`
	MergedPRs          int       `json:"merged_prs,omitempty"`
	Files              []string  `json:"files"`
}

// Publisher holds the NATS connection used for export events
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     logrus.FieldLogger
}

// New connects to the NATS server at url
func New(url, subject string, log logrus.FieldLogger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("activity-exporter"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		nc:      nc,
		subject: subject,
		log:     log.WithField("subject", subject),
	}, nil
}

// Publish sends the event and flushes so it is on the wire before the run ends
func (p *Publisher) Publish(ev ExportCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	if err := p.nc.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	p.log.WithField("repo", ev.Owner+"/"+ev.Repo).Info("Published export event")
	return nil
}

// Close cleanly shuts down the connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
