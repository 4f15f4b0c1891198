package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
)

type clock struct {
	current time.Time
}

func newClock() *clock {
	return &clock{current: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.current }
func (c *clock) Advance(d time.Duration) { c.current = c.current.Add(d) }

type failingDedup struct{}

func (failingDedup) ExistsWithin(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingDedup) Insert(context.Context, string, time.Time) error {
	return errors.New("connection refused")
}

func testAlert(category, title string) alert.Alert {
	return alert.Alert{
		ID:       "test",
		Category: category,
		Source:   "twitter",
		Title:    title,
		Tags:     []string{category, "twitter"},
	}
}

func newTestGate(opts Options, dedup DedupStore, clk *clock) *Gate {
	g := New(opts, dedup, zerolog.Nop())
	g.SetClock(clk.Now)
	return g
}

func TestAdmitRejectsDuplicateWithinWindow(t *testing.T) {
	clk := newClock()
	dedup := NewMemoryDedup(24 * time.Hour)
	dedup.SetClock(clk.Now)
	g := newTestGate(Options{DedupWindow: 24 * time.Hour}, dedup, clk)

	ctx := context.Background()
	a := testAlert("security", "Security alert: LendX exploited")

	first := g.Admit(ctx, a)
	require.True(t, first.Approved)
	require.Equal(t, ReasonApproved, first.Reason)
	require.NotEmpty(t, first.Fingerprint)

	clk.Advance(time.Hour)
	second := g.Admit(ctx, a)
	require.False(t, second.Approved)
	require.Equal(t, ReasonDuplicate, second.Reason)
	require.Equal(t, first.Fingerprint, second.Fingerprint)

	// Past the dedup window the same alert goes out again.
	clk.Advance(24 * time.Hour)
	third := g.Admit(ctx, a)
	require.True(t, third.Approved)
}

func TestAdmitHonoursLongDedupWindow(t *testing.T) {
	clk := newClock()
	dedup := NewMemoryDedup(48 * time.Hour)
	dedup.SetClock(clk.Now)
	g := newTestGate(Options{DedupWindow: 48 * time.Hour}, dedup, clk)

	ctx := context.Background()
	a := testAlert("security", "Security alert: LendX exploited")
	require.True(t, g.Admit(ctx, a).Approved)

	// Unrelated approvals trigger store pruning; the fingerprint must
	// survive until the full window has elapsed.
	clk.Advance(25 * time.Hour)
	require.True(t, g.Admit(ctx, testAlert("governance", "Governance update: proposal")).Approved)

	dup := g.Admit(ctx, a)
	require.False(t, dup.Approved)
	require.Equal(t, ReasonDuplicate, dup.Reason)

	clk.Advance(24 * time.Hour)
	require.True(t, g.Admit(ctx, a).Approved)
}

func TestAdmitGlobalCooldownSpansCategories(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{GlobalCooldown: 5 * time.Minute}, NewMemoryDedup(24 * time.Hour), clk)

	ctx := context.Background()

	first := g.Admit(ctx, testAlert("security", "Security alert: LendX exploited"))
	require.True(t, first.Approved)

	clk.Advance(time.Minute)
	second := g.Admit(ctx, testAlert("governance", "Governance update: proposal passed"))
	require.False(t, second.Approved)
	require.Equal(t, ReasonGlobalCooldown, second.Reason)

	clk.Advance(5 * time.Minute)
	third := g.Admit(ctx, testAlert("governance", "Governance update: proposal passed"))
	require.True(t, third.Approved)
}

func TestAdmitCategoryCooldownsAreIndependent(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{
		Categories: map[string]CategoryPolicy{
			"security":   {Enabled: true, Cooldown: time.Hour},
			"governance": {Enabled: true, Cooldown: time.Hour},
		},
	}, NewMemoryDedup(24 * time.Hour), clk)

	ctx := context.Background()

	require.True(t, g.Admit(ctx, testAlert("security", "Security alert: first")).Approved)

	clk.Advance(10 * time.Minute)
	blocked := g.Admit(ctx, testAlert("security", "Security alert: second"))
	require.False(t, blocked.Approved)
	require.Equal(t, ReasonCategoryCooldown, blocked.Reason)

	// The governance stamp is untouched by security traffic.
	other := g.Admit(ctx, testAlert("governance", "Governance update: proposal"))
	require.True(t, other.Approved)

	clk.Advance(time.Hour)
	require.True(t, g.Admit(ctx, testAlert("security", "Security alert: third")).Approved)
}

func TestAdmitRejectsDisabledCategory(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{
		Categories: map[string]CategoryPolicy{
			"listing": {Enabled: false},
		},
	}, NewMemoryDedup(24 * time.Hour), clk)

	d := g.Admit(context.Background(), testAlert("listing", "Listing news: token live"))
	require.False(t, d.Approved)
	require.Equal(t, ReasonCategoryDisabled, d.Reason)
}

func TestAdmitUnknownCategoryIsEnabled(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{}, NewMemoryDedup(24 * time.Hour), clk)

	d := g.Admit(context.Background(), testAlert("airdrops", "DeFi update: something"))
	require.True(t, d.Approved)
}

func TestAdmitFailsOpenOnDedupError(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{}, failingDedup{}, clk)

	d := g.Admit(context.Background(), testAlert("security", "Security alert: LendX exploited"))
	require.True(t, d.Approved, "a broken dedup store must not swallow alerts")
}

func TestAdmitRejectionLeavesNoStamp(t *testing.T) {
	clk := newClock()
	g := newTestGate(Options{
		GlobalCooldown: 5 * time.Minute,
		Categories: map[string]CategoryPolicy{
			"listing": {Enabled: false},
		},
	}, NewMemoryDedup(24 * time.Hour), clk)

	ctx := context.Background()

	// A rejection must not start the global cooldown.
	require.False(t, g.Admit(ctx, testAlert("listing", "Listing news: token live")).Approved)
	require.True(t, g.Admit(ctx, testAlert("security", "Security alert: first")).Approved)
}

func TestFilterDestinations(t *testing.T) {
	dests := []Destination{
		{ID: "ops", Categories: []string{"security", "tvl"}},
		{ID: "paused", Categories: []string{"security"}, Paused: true},
		{ID: "gov-only", Categories: []string{"governance"}},
	}

	a := testAlert("security", "Security alert: LendX exploited")
	got := FilterDestinations(a, dests)
	require.Len(t, got, 1)
	require.Equal(t, "ops", got[0].ID)

	require.Empty(t, FilterDestinations(testAlert("price", "x"), dests))
}

func TestMemoryDedupPrunesOldEntries(t *testing.T) {
	clk := newClock()
	m := NewMemoryDedup(24 * time.Hour)
	m.SetClock(clk.Now)

	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, "old", clk.Now()))

	clk.Advance(25 * time.Hour)
	require.NoError(t, m.Insert(ctx, "new", clk.Now()))

	m.mu.RLock()
	_, oldKept := m.seen["old"]
	m.mu.RUnlock()
	require.False(t, oldKept, "entries past the retention horizon are pruned on insert")

	exists, err := m.ExistsWithin(ctx, "new", 24*time.Hour)
	require.NoError(t, err)
	require.True(t, exists)
}
