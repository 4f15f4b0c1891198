package trend

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Default thresholds for categories with no trend configuration.
const (
	DefaultMinChangePct     = 10.0
	DefaultMinAbsoluteValue = 1_000_000.0
	DefaultLookbackHours    = 24
)

// One point per five minutes bounds window memory.
const pointSpacing = 5 * time.Minute

// Point is one snapshot of an entity's value.
type Point struct {
	Timestamp time.Time
	Value     decimal.Decimal
	Breakdown map[string]decimal.Decimal
}

// Tier classifies the magnitude of a change.
type Tier int

const (
	TierMedium Tier = iota
	TierHigh
	TierCritical
)

// String returns the tier label.
func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	default:
		return "medium"
	}
}

// Thresholds bound trend significance.
type Thresholds struct {
	MinChangePct     float64
	MinAbsoluteValue float64
	LookbackHours    int
}

// DefaultThresholds returns the documented fallback thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinChangePct:     DefaultMinChangePct,
		MinAbsoluteValue: DefaultMinAbsoluteValue,
		LookbackHours:    DefaultLookbackHours,
	}
}

// Change is the outcome of comparing an entity's current value to its
// value one lookback window ago.
type Change struct {
	EntityID      string
	EntityName    string
	Previous      decimal.Decimal
	Current       decimal.Decimal
	ChangePct     decimal.Decimal
	Breakdown     map[string]decimal.Decimal
	LookbackHours int
	ObservedAt    time.Time
}

// Tier classifies the change magnitude. Bands are checked from the
// widest down.
func (c Change) Tier() Tier {
	abs := c.ChangePct.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return TierCritical
	case abs.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return TierHigh
	default:
		return TierMedium
	}
}

type window struct {
	maxAge    time.Duration
	maxPoints int
	points    []Point
}

func newWindow(maxAge time.Duration) *window {
	capPoints := int(maxAge / pointSpacing)
	if capPoints < 2 {
		capPoints = 2
	}
	return &window{maxAge: maxAge, maxPoints: capPoints}
}

// add appends p and re-establishes the age and count bounds. Points
// keep insertion order even when timestamps arrive out of order.
func (w *window) add(p Point, now time.Time) {
	w.points = append(w.points, p)

	cutoff := now.Add(-w.maxAge)
	kept := w.points[:0]
	for _, pt := range w.points {
		if !pt.Timestamp.Before(cutoff) {
			kept = append(kept, pt)
		}
	}
	w.points = kept

	if len(w.points) > w.maxPoints {
		w.points = w.points[len(w.points)-w.maxPoints:]
	}
}

// latest returns the point with the greatest timestamp.
func (w *window) latest() (Point, bool) {
	if len(w.points) == 0 {
		return Point{}, false
	}
	best := w.points[0]
	for _, pt := range w.points[1:] {
		if pt.Timestamp.After(best.Timestamp) {
			best = pt
		}
	}
	return best, true
}

type entity struct {
	id    string
	name  string
	short *window
	long  *window
}

// Tracker maintains bounded rolling time-series per tracked entity and
// computes percentage change over configurable lookback windows. All
// methods are safe for concurrent use; ingest and read are one
// mutual-exclusion domain.
type Tracker struct {
	mu       sync.Mutex
	shortAge time.Duration
	longAge  time.Duration
	entities map[string]*entity
	now      func() time.Time
}

// NewTracker constructs a Tracker with the given window spans.
func NewTracker(shortAge, longAge time.Duration) *Tracker {
	if shortAge <= 0 {
		shortAge = 24 * time.Hour
	}
	if longAge < shortAge {
		longAge = 7 * 24 * time.Hour
	}
	return &Tracker{
		shortAge: shortAge,
		longAge:  longAge,
		entities: make(map[string]*entity),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Ingest records one snapshot for an entity in both rolling windows.
func (t *Tracker) Ingest(entityID, name string, value decimal.Decimal, breakdown map[string]decimal.Decimal, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entities[entityID]
	if !ok {
		ent = &entity{
			id:    entityID,
			name:  name,
			short: newWindow(t.shortAge),
			long:  newWindow(t.longAge),
		}
		t.entities[entityID] = ent
	}
	if name != "" {
		ent.name = name
	}

	point := Point{Timestamp: ts, Value: value, Breakdown: breakdown}
	now := t.now()
	ent.short.add(point, now)
	ent.long.add(point, now)
}

// ChangeSince computes the percentage change for an entity over the
// given lookback. Returns false when history is insufficient or the
// reference value is zero.
func (t *Tracker) ChangeSince(entityID string, lookbackHours int) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changeSinceLocked(entityID, lookbackHours)
}

func (t *Tracker) changeSinceLocked(entityID string, lookbackHours int) (Change, bool) {
	ent, ok := t.entities[entityID]
	if !ok {
		return Change{}, false
	}

	w := ent.short
	if time.Duration(lookbackHours)*time.Hour > t.shortAge {
		w = ent.long
	}
	if len(w.points) < 2 {
		return Change{}, false
	}

	now := t.now()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// History must actually span the lookback: at least one point at or
	// before the cutoff.
	covered := false
	for _, pt := range w.points {
		if !pt.Timestamp.After(cutoff) {
			covered = true
			break
		}
	}
	if !covered {
		return Change{}, false
	}

	// previous = oldest point still inside the window.
	var previous Point
	found := false
	for _, pt := range w.points {
		if pt.Timestamp.Before(cutoff) {
			continue
		}
		if !found || pt.Timestamp.Before(previous.Timestamp) {
			previous = pt
			found = true
		}
	}
	if !found {
		return Change{}, false
	}

	current, ok := w.latest()
	if !ok {
		return Change{}, false
	}
	// A zero on either end means the series collapsed, not that it
	// moved; report insufficient history.
	if previous.Value.IsZero() || current.Value.IsZero() {
		return Change{}, false
	}

	pct := current.Value.Sub(previous.Value).
		Div(previous.Value).
		Mul(decimal.NewFromInt(100))

	return Change{
		EntityID:      ent.id,
		EntityName:    ent.name,
		Previous:      previous.Value,
		Current:       current.Value,
		ChangePct:     pct,
		Breakdown:     current.Breakdown,
		LookbackHours: lookbackHours,
		ObservedAt:    current.Timestamp,
	}, true
}

// SignificantChanges scans all tracked entities and returns those whose
// current value meets the absolute floor and whose change magnitude
// meets the percentage floor, sorted by magnitude descending.
func (t *Tracker) SignificantChanges(th Thresholds) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	minAbs := decimal.NewFromFloat(th.MinAbsoluteValue)
	minPct := decimal.NewFromFloat(th.MinChangePct)

	ids := make([]string, 0, len(t.entities))
	for id := range t.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var changes []Change
	for _, id := range ids {
		change, ok := t.changeSinceLocked(id, th.LookbackHours)
		if !ok {
			continue
		}
		if change.Current.LessThan(minAbs) {
			continue
		}
		if change.ChangePct.Abs().LessThan(minPct) {
			continue
		}
		changes = append(changes, change)
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].ChangePct.Abs().GreaterThan(changes[j].ChangePct.Abs())
	})
	return changes
}
