// Package events publishes ingest events to NATS JetStream so downstream
// consumers can react to completed loads. Publishing is optional and never
// affects pipeline results.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	streamName     = "MAILVAULT"
	subjectTenant  = "etl.tenant.loaded"
	subjectRun     = "etl.run.completed"
	dedupeWindow   = 10 * time.Minute
	eventRetention = 30 * 24 * time.Hour
)

// TenantLoaded is emitted once per tenant whose records reached the warehouse.
type TenantLoaded struct {
	RunID    string `json:"run_id"`
	Tenant   string `json:"tenant"`
	Inserted int    `json:"inserted"`
	TS       int64  `json:"ts"`
}

// RunCompleted is emitted once per finished run.
type RunCompleted struct {
	RunID         string `json:"run_id"`
	Tenants       int    `json:"tenants"`
	TotalInserted int    `json:"total_inserted"`
	TS            int64  `json:"ts"`
}

// Publisher wraps a JetStream context. A nil *Publisher is valid and publishes
// nothing, so the pipeline runs without a broker.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials NATS and ensures the ingest stream exists.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       streamName,
			Subjects:   []string{"etl.>"},
			Storage:    nats.FileStorage,
			Retention:  nats.LimitsPolicy,
			Duplicates: dedupeWindow,
			MaxAge:     eventRetention,
		})
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			nc.Close()
			return nil, fmt.Errorf("create stream: %w", err)
		}
	}

	return &Publisher{nc: nc, js: js}, nil
}

// TenantLoaded publishes a per-tenant load event, deduplicated on run+tenant.
func (p *Publisher) TenantLoaded(ev TenantLoaded) {
	if ev.TS == 0 {
		ev.TS = time.Now().Unix()
	}
	p.publish(subjectTenant, ev, fmt.Sprintf("tenant.loaded|%s|%s", ev.RunID, ev.Tenant))
}

// RunCompleted publishes the run summary event, deduplicated on run id.
func (p *Publisher) RunCompleted(ev RunCompleted) {
	if ev.TS == 0 {
		ev.TS = time.Now().Unix()
	}
	p.publish(subjectRun, ev, fmt.Sprintf("run.completed|%s", ev.RunID))
}

func (p *Publisher) publish(subject string, ev any, msgID string) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("subject", subject).Warn("marshal ingest event failed")
		return
	}
	if _, err := p.js.Publish(subject, payload, nats.MsgId(msgID)); err != nil {
		log.WithError(err).WithField("subject", subject).Warn("publish ingest event failed")
	}
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
