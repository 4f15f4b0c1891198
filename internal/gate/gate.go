package gate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
)

// Reason explains an admission decision. Rejections are ordinary
// control flow, never errors.
type Reason string

const (
	ReasonApproved         Reason = "approved"
	ReasonDuplicate        Reason = "duplicate"
	ReasonCategoryDisabled Reason = "category_disabled"
	ReasonGlobalCooldown   Reason = "global_cooldown"
	ReasonCategoryCooldown Reason = "category_cooldown"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Approved    bool
	Reason      Reason
	Fingerprint string
}

// DedupStore is the persistence boundary for fingerprints of
// previously approved alerts.
type DedupStore interface {
	ExistsWithin(ctx context.Context, fingerprint string, window time.Duration) (bool, error)
	Insert(ctx context.Context, fingerprint string, approvedAt time.Time) error
}

// CategoryPolicy carries the per-category admission knobs.
type CategoryPolicy struct {
	Enabled  bool
	Cooldown time.Duration
}

// Options parameterise the gate.
type Options struct {
	DedupWindow    time.Duration
	GlobalCooldown time.Duration
	Categories     map[string]CategoryPolicy
}

// Gate is the admission-control state machine. Rules run in a fixed
// order and the first failure rejects with no side effects; cooldown
// state is stamped only on approval. The whole check-then-update runs
// under one mutex.
type Gate struct {
	mu             sync.Mutex
	opts           Options
	dedup          DedupStore
	lastGlobal     time.Time
	lastByCategory map[string]time.Time
	now            func() time.Time
	logger         zerolog.Logger
}

// New constructs a Gate.
func New(opts Options, dedup DedupStore, logger zerolog.Logger) *Gate {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 24 * time.Hour
	}
	return &Gate{
		opts:           opts,
		dedup:          dedup,
		lastByCategory: make(map[string]time.Time),
		now:            time.Now,
		logger:         logger.With().Str("component", "alert_gate").Logger(),
	}
}

// SetClock overrides the time source. Test hook.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Admit decides whether a is allowed out.
func (g *Gate) Admit(ctx context.Context, a alert.Alert) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	fingerprint := alert.Fingerprint(a)
	now := g.now()

	if g.isDuplicate(ctx, fingerprint) {
		return Decision{Reason: ReasonDuplicate, Fingerprint: fingerprint}
	}

	policy, known := g.opts.Categories[a.Category]
	if known && !policy.Enabled {
		return Decision{Reason: ReasonCategoryDisabled, Fingerprint: fingerprint}
	}

	if g.opts.GlobalCooldown > 0 && !g.lastGlobal.IsZero() &&
		now.Sub(g.lastGlobal) < g.opts.GlobalCooldown {
		return Decision{Reason: ReasonGlobalCooldown, Fingerprint: fingerprint}
	}

	if known && policy.Cooldown > 0 {
		if last, ok := g.lastByCategory[a.Category]; ok && now.Sub(last) < policy.Cooldown {
			return Decision{Reason: ReasonCategoryCooldown, Fingerprint: fingerprint}
		}
	}

	g.lastGlobal = now
	g.lastByCategory[a.Category] = now

	if g.dedup != nil {
		if err := g.dedup.Insert(ctx, fingerprint, now); err != nil {
			g.logger.Error().Err(err).
				Str("fingerprint", fingerprint).
				Msg("failed to record dedup fingerprint")
		}
	}

	return Decision{Approved: true, Reason: ReasonApproved, Fingerprint: fingerprint}
}

// isDuplicate consults the dedup store. A store failure is fail-open:
// risking one duplicate notification beats silently losing a real
// alert.
func (g *Gate) isDuplicate(ctx context.Context, fingerprint string) bool {
	if g.dedup == nil {
		return false
	}
	exists, err := g.dedup.ExistsWithin(ctx, fingerprint, g.opts.DedupWindow)
	if err != nil {
		g.logger.Warn().Err(err).
			Str("fingerprint", fingerprint).
			Msg("dedup store unavailable, failing open")
		return false
	}
	return exists
}
