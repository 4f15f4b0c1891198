package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintStableAcrossVolatileFields(t *testing.T) {
	a := Alert{
		ID:        "id-1",
		Category:  CategorySecurity,
		Source:    "twitter",
		Title:     "Security alert: LendX exploited",
		Tags:      []string{"security", "twitter"},
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	b := a
	b.ID = "id-2"
	b.CreatedAt = b.CreatedAt.Add(time.Hour)
	b.Tags = []string{"twitter", "security"}

	require.Equal(t, Fingerprint(a), Fingerprint(b), "ids, timestamps and tag order must not affect the fingerprint")
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Alert{Category: CategorySecurity, Source: "twitter", Title: "Security alert: LendX exploited"}

	b := a
	b.Title = "Security alert: DexY exploited"
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))

	c := a
	c.Category = CategoryGovernance
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))

	d := a
	d.Tags = []string{"trusted"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(d))
}
