package trend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestChangeSinceComputesPercentage(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := t0.Add(24 * time.Hour)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	tr.Ingest("lendx", "LendX", decimal.NewFromInt(10_000_000), nil, t0)
	tr.Ingest("lendx", "LendX", decimal.NewFromInt(15_500_000), nil, t0.Add(20*time.Hour))

	change, ok := tr.ChangeSince("lendx", 24)
	require.True(t, ok)
	require.Equal(t, "LendX", change.EntityName)
	require.True(t, change.ChangePct.Equal(decimal.NewFromInt(55)), "got %s", change.ChangePct)
	require.Equal(t, TierHigh, change.Tier())
	require.True(t, change.Previous.Equal(decimal.NewFromInt(10_000_000)))
	require.True(t, change.Current.Equal(decimal.NewFromInt(15_500_000)))
}

func TestChangeSinceInsufficientHistory(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	_, ok := tr.ChangeSince("lendx", 24)
	require.False(t, ok, "unknown entity")

	tr.Ingest("lendx", "LendX", decimal.NewFromInt(10), nil, now)
	_, ok = tr.ChangeSince("lendx", 24)
	require.False(t, ok, "single point")

	// Two points but none at or before the cutoff: the history does not
	// span the lookback yet.
	tr.Ingest("lendx", "LendX", decimal.NewFromInt(12), nil, now.Add(-2*time.Hour))
	_, ok = tr.ChangeSince("lendx", 24)
	require.False(t, ok, "history shorter than lookback")
}

func TestChangeSinceZeroReference(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	tr.Ingest("pool", "Pool", decimal.Zero, nil, now.Add(-24*time.Hour))
	tr.Ingest("pool", "Pool", decimal.NewFromInt(1_000_000), nil, now)

	_, ok := tr.ChangeSince("pool", 24)
	require.False(t, ok, "zero reference value")

	// A collapse to zero reads as insufficient history, not -100%.
	tr.Ingest("vault", "Vault", decimal.NewFromInt(1_000_000), nil, now.Add(-24*time.Hour))
	tr.Ingest("vault", "Vault", decimal.Zero, nil, now)

	_, ok = tr.ChangeSince("vault", 24)
	require.False(t, ok, "zero current value")
}

func TestChangeSinceUsesLongWindowForLargeLookback(t *testing.T) {
	now := time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	tr.Ingest("dex", "Dex", decimal.NewFromInt(2_000_000), nil, now.Add(-168*time.Hour))
	tr.Ingest("dex", "Dex", decimal.NewFromInt(3_000_000), nil, now)

	change, ok := tr.ChangeSince("dex", 168)
	require.True(t, ok)
	require.True(t, change.ChangePct.Equal(decimal.NewFromInt(50)), "got %s", change.ChangePct)

	// The short window pruned the week-old point, so a 24h lookback has
	// no coverage.
	_, ok = tr.ChangeSince("dex", 24)
	require.False(t, ok)
}

func TestWindowBounds(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// 1h short window caps at 12 points.
	tr := NewTracker(time.Hour, 2*time.Hour)
	tr.SetClock(fixedClock(now))

	for i := 0; i < 30; i++ {
		ts := now.Add(-time.Duration(i) * time.Minute)
		tr.Ingest("e", "E", decimal.NewFromInt(int64(i)), nil, ts)
	}

	ent := tr.entities["e"]
	require.LessOrEqual(t, len(ent.short.points), 12)
	cutoff := now.Add(-time.Hour)
	for _, pt := range ent.short.points {
		require.False(t, pt.Timestamp.Before(cutoff), "point older than window survived")
	}
}

func TestLatestHandlesOutOfOrderInserts(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	tr.Ingest("e", "E", decimal.NewFromInt(100), nil, now.Add(-24*time.Hour))
	tr.Ingest("e", "E", decimal.NewFromInt(300), nil, now)
	tr.Ingest("e", "E", decimal.NewFromInt(200), nil, now.Add(-12*time.Hour))

	change, ok := tr.ChangeSince("e", 24)
	require.True(t, ok)
	require.True(t, change.Current.Equal(decimal.NewFromInt(300)), "latest by timestamp, not insertion order")
	require.True(t, change.Previous.Equal(decimal.NewFromInt(100)))
}

func TestSignificantChangesFiltersAndSorts(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tr := NewTracker(24*time.Hour, 168*time.Hour)
	tr.SetClock(fixedClock(now))

	ingest := func(id string, prev, cur int64) {
		tr.Ingest(id, id, decimal.NewFromInt(prev), nil, now.Add(-24*time.Hour))
		tr.Ingest(id, id, decimal.NewFromInt(cur), nil, now)
	}

	ingest("small-move", 10_000_000, 10_500_000) // +5%, below pct floor
	ingest("tiny-pool", 1_000, 2_000)            // +100% but below absolute floor
	ingest("big-drop", 10_000_000, 4_000_000)    // -60%
	ingest("big-gain", 10_000_000, 12_000_000)   // +20%

	changes := tr.SignificantChanges(DefaultThresholds())
	require.Len(t, changes, 2)
	require.Equal(t, "big-drop", changes[0].EntityID)
	require.Equal(t, "big-gain", changes[1].EntityID)
}

func TestTierBoundaries(t *testing.T) {
	tier := func(pct int64) Tier {
		return Change{ChangePct: decimal.NewFromInt(pct)}.Tier()
	}

	require.Equal(t, TierMedium, tier(10))
	require.Equal(t, TierMedium, tier(49))
	require.Equal(t, TierHigh, tier(50))
	require.Equal(t, TierHigh, tier(99))
	require.Equal(t, TierCritical, tier(100))
	require.Equal(t, TierCritical, tier(-250))
	require.Equal(t, TierHigh, tier(-55))
}
