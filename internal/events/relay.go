// Package events relays committed outbox rows to the message broker.
package events

import (
	"context"
	"fmt"
	"time"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/store"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	ConsumerName     = "nats-relay"
	defaultBatchSize = 100
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

type Config struct {
	SubjectPrefix string
	BatchSize     int
	Interval      time.Duration
}

type Relay struct {
	store     store.EventStore
	publisher Publisher
	prefix    string
	batchSize int
	interval  time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewRelay(events store.EventStore, publisher Publisher, cfg Config, log *zap.Logger, m *metrics.Metrics) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		store:     events,
		publisher: publisher,
		prefix:    cfg.SubjectPrefix,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		log:       log,
		metrics:   m,
	}
}

// Subject maps an event type such as qr.activated onto the broker subject.
func (r *Relay) Subject(eventType string) string {
	if r.prefix == "" {
		return eventType
	}
	return r.prefix + "." + eventType
}

// RunOnce publishes one batch in sequence order and advances the stored
// offset past the last event the broker accepted.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	offset, err := r.store.GetOutboxOffset(ctx, ConsumerName)
	if err != nil {
		return 0, err
	}
	batch, err := r.store.ListOutboxEvents(ctx, offset, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	var publishErr error
	for _, event := range batch {
		msg := nats.NewMsg(r.Subject(event.Type))
		msg.Data = event.Payload
		msg.Header.Set(nats.MsgIdHdr, event.EventID)
		msg.Header.Set("Upets-Event-Type", event.Type)
		msg.Header.Set("Upets-Event-Time", event.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err := r.publisher.PublishMsg(msg); err != nil {
			publishErr = fmt.Errorf("publish seq %d: %w", event.Seq, err)
			break
		}
		offset = event.Seq
		published++
		if r.metrics != nil {
			r.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
		}
	}

	if published > 0 {
		if err := r.store.SetOutboxOffset(ctx, ConsumerName, offset); err != nil {
			return published, err
		}
	}
	return published, publishErr
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another round.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Warn("outbox relay round failed", zap.Int("published", n), zap.Error(err))
		} else if n > 0 {
			r.log.Debug("outbox events published", zap.Int("count", n))
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
