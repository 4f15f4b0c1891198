package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// TextHandler consumes a social post.
type TextHandler func(ctx context.Context, ev TextEvent) error

// MetricHandler consumes a metric snapshot.
type MetricHandler func(ctx context.Context, snap MetricSnapshot) error

// Dispatcher is a synchronous in-process pub/sub hub. There is one
// method pair per payload shape rather than string channel names, so a
// producer cannot publish onto a channel nobody can type-check.
//
// Delivery runs under a single mutex: events on the same channel are
// delivered in publish order, and two events are never in flight at
// once. Downstream consumers (trend windows, the alert gate) rely on
// that serialisation for their check-then-update sequences.
type Dispatcher struct {
	mu         sync.Mutex
	textSubs   []TextHandler
	metricSubs []MetricHandler
	logger     zerolog.Logger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger.With().Str("component", "dispatcher").Logger()}
}

// SubscribeText registers a handler for social posts.
func (d *Dispatcher) SubscribeText(h TextHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textSubs = append(d.textSubs, h)
}

// SubscribeMetric registers a handler for metric snapshots.
func (d *Dispatcher) SubscribeMetric(h MetricHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metricSubs = append(d.metricSubs, h)
}

// PublishText delivers ev to every text subscriber in subscription
// order. Handler errors are logged and do not stop delivery.
func (d *Dispatcher) PublishText(ctx context.Context, ev TextEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.textSubs {
		if err := h(ctx, ev); err != nil {
			d.logger.Error().Err(err).
				Str("source", ev.Source).
				Str("event_id", ev.ID).
				Msg("text handler failed")
		}
	}
}

// PublishMetric delivers snap to every metric subscriber in
// subscription order.
func (d *Dispatcher) PublishMetric(ctx context.Context, snap MetricSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.metricSubs {
		if err := h(ctx, snap); err != nil {
			d.logger.Error().Err(err).
				Str("source", snap.Source).
				Str("entity_id", snap.EntityID).
				Msg("metric handler failed")
		}
	}
}
