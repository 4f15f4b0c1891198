package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is a persisted approved alert.
type AlertRecord struct {
	ID          string
	Category    string
	Priority    int
	Source      string
	Title       string
	Summary     string
	DetailsKind string
	Details     json.RawMessage
	Tags        []string
	CreatedAt   time.Time
}

// DedupRecord is one approved fingerprint.
type DedupRecord struct {
	Fingerprint string
	ApprovedAt  time.Time
}

// MetricSample is a persisted entity snapshot.
type MetricSample struct {
	EntityID   string
	EntityName string
	Source     string
	Value      decimal.Decimal
	Breakdown  json.RawMessage
	ObservedAt time.Time
	CreatedAt  time.Time
}
