package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/gate"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/notify"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/scoring"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/storage"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/trend"
)

// Metric sources map onto trend categories.
var sourceCategories = map[string]string{
	"defillama": alert.CategoryTVL,
	"market":    alert.CategoryPrice,
	"chainlink": alert.CategoryPrice,
}

// Options parameterise the pipeline.
type Options struct {
	// Thresholds per trend category; missing categories fall back to
	// the documented defaults.
	Thresholds map[string]trend.Thresholds
	// Window spans for the per-category trackers.
	ShortWindow time.Duration
	LongWindow  time.Duration
}

// Pipeline connects the dispatcher to the analyzers and drives scored
// classifications through the gate to the notification and persistence
// boundaries. All hot-path work is in-memory; network I/O stays at the
// edges (collectors in, notifier out).
type Pipeline struct {
	opts        Options
	scorer      *scoring.Scorer
	factory     *alert.Factory
	gate        *gate.Gate
	trackers    map[string]*trend.Tracker
	alertStore  storage.AlertStore
	sampleStore storage.MetricSampleStore
	notifier    notify.Notifier
	logger      zerolog.Logger
}

// New constructs the pipeline. alertStore, sampleStore, and notifier
// may be nil; the corresponding boundary is then skipped.
func New(opts Options, scorer *scoring.Scorer, factory *alert.Factory, g *gate.Gate,
	alertStore storage.AlertStore, sampleStore storage.MetricSampleStore,
	notifier notify.Notifier, logger zerolog.Logger) *Pipeline {

	trackers := make(map[string]*trend.Tracker)
	for _, category := range sourceCategories {
		if _, ok := trackers[category]; !ok {
			trackers[category] = trend.NewTracker(opts.ShortWindow, opts.LongWindow)
		}
	}

	return &Pipeline{
		opts:        opts,
		scorer:      scorer,
		factory:     factory,
		gate:        g,
		trackers:    trackers,
		alertStore:  alertStore,
		sampleStore: sampleStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Register subscribes the pipeline to the dispatcher channels.
func (p *Pipeline) Register(d *event.Dispatcher) {
	d.SubscribeText(p.HandleText)
	d.SubscribeMetric(p.HandleMetric)
}

// HandleText scores a social post and, for the best-matching category,
// pushes an alert through the gate. Events matching nothing are the
// common case and only logged at debug.
func (p *Pipeline) HandleText(ctx context.Context, ev event.TextEvent) error {
	results := p.scorer.Score(ev)
	if len(results) == 0 {
		p.logger.Debug().
			Str("source", ev.Source).
			Str("event_id", ev.ID).
			Msg("no category matched")
		return nil
	}

	// Only the top-scoring category produces an alert; anything after
	// the first would die on the global cooldown anyway.
	best := results[0]
	a := p.factory.FromTextMatch(ev, best)
	p.emit(ctx, a)
	return nil
}

// HandleMetric records a snapshot in the entity's rolling windows,
// persists it, and emits a trend alert when the entity's change over
// the category lookback clears the significance thresholds.
func (p *Pipeline) HandleMetric(ctx context.Context, snap event.MetricSnapshot) error {
	// The trackers map is built once in New and never mutated after,
	// so SweepTrends can range over it without locking.
	category, ok := sourceCategories[snap.Source]
	if !ok {
		category = alert.CategoryPrice
	}
	tracker := p.trackers[category]

	tracker.Ingest(snap.EntityID, snap.EntityName, snap.Value, snap.Breakdown, snap.Timestamp)
	p.persistSample(ctx, snap)

	th := p.thresholds(category)
	change, ok := tracker.ChangeSince(snap.EntityID, th.LookbackHours)
	if !ok {
		return nil
	}
	if change.Current.LessThan(decimal.NewFromFloat(th.MinAbsoluteValue)) {
		return nil
	}
	if change.ChangePct.Abs().LessThan(decimal.NewFromFloat(th.MinChangePct)) {
		return nil
	}

	a := p.factory.FromTrendChange(change, category)
	p.emit(ctx, a)
	return nil
}

// SweepTrends re-evaluates every tracked entity per category. Catches
// entities whose change crossed a threshold because old points aged
// out rather than because fresh data arrived.
func (p *Pipeline) SweepTrends(ctx context.Context) error {
	for category, tracker := range p.trackers {
		th := p.thresholds(category)
		for _, change := range tracker.SignificantChanges(th) {
			a := p.factory.FromTrendChange(change, category)
			p.emit(ctx, a)
		}
	}
	return nil
}

func (p *Pipeline) thresholds(category string) trend.Thresholds {
	if th, ok := p.opts.Thresholds[category]; ok {
		if th.LookbackHours <= 0 {
			th.LookbackHours = trend.DefaultLookbackHours
		}
		if th.MinChangePct <= 0 {
			th.MinChangePct = trend.DefaultMinChangePct
		}
		if th.MinAbsoluteValue <= 0 {
			th.MinAbsoluteValue = trend.DefaultMinAbsoluteValue
		}
		return th
	}
	return trend.DefaultThresholds()
}

func (p *Pipeline) emit(ctx context.Context, a alert.Alert) {
	decision := p.gate.Admit(ctx, a)
	if !decision.Approved {
		p.logger.Info().
			Str("alert_id", a.ID).
			Str("category", a.Category).
			Str("reason", string(decision.Reason)).
			Msg("alert rejected")
		return
	}

	p.logger.Info().
		Str("alert_id", a.ID).
		Str("category", a.Category).
		Str("priority", a.Priority.String()).
		Str("title", a.Title).
		Msg("alert approved")

	if p.alertStore != nil {
		if err := p.alertStore.InsertAlert(ctx, toAlertRecord(a)); err != nil {
			p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to persist alert")
		}
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, a); err != nil {
			p.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to dispatch alert")
		}
	}
}

func (p *Pipeline) persistSample(ctx context.Context, snap event.MetricSnapshot) {
	if p.sampleStore == nil {
		return
	}

	var breakdown json.RawMessage
	if len(snap.Breakdown) > 0 {
		if data, err := json.Marshal(snap.Breakdown); err == nil {
			breakdown = data
		}
	}

	sample := storage.MetricSample{
		EntityID:   snap.EntityID,
		EntityName: snap.EntityName,
		Source:     snap.Source,
		Value:      snap.Value,
		Breakdown:  breakdown,
		ObservedAt: snap.Timestamp,
	}
	if err := p.sampleStore.UpsertMetricSample(ctx, sample); err != nil {
		p.logger.Error().Err(err).
			Str("entity_id", snap.EntityID).
			Msg("failed to persist metric sample")
	}
}

func toAlertRecord(a alert.Alert) storage.AlertRecord {
	var details json.RawMessage
	if a.Details != nil {
		if data, err := json.Marshal(a.Details); err == nil {
			details = data
		}
	}

	return storage.AlertRecord{
		ID:          a.ID,
		Category:    a.Category,
		Priority:    int(a.Priority),
		Source:      a.Source,
		Title:       a.Title,
		Summary:     a.Summary,
		DetailsKind: a.DetailsKind(),
		Details:     details,
		Tags:        a.Tags,
		CreatedAt:   a.CreatedAt,
	}
}
