package alert

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority is the ordered severity tier of an alert.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority label.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Well-known category names. Categories are configuration-driven; these
// constants only anchor the heuristics and title templates.
const (
	CategorySecurity    = "security"
	CategoryGovernance  = "governance"
	CategoryListing     = "listing"
	CategoryPartnership = "partnership"
	CategoryTVL         = "tvl"
	CategoryPrice       = "price"
)

// Details is the closed set of category-specific payloads. One variant
// per category family keeps required fields enforced by construction.
type Details interface {
	detailsKind() string
}

// SecurityDetails carries the heuristic extraction for security posts.
type SecurityDetails struct {
	Severity  string `json:"severity"`
	EventType string `json:"event_type"`
	Protocol  string `json:"protocol,omitempty"`
}

func (SecurityDetails) detailsKind() string { return "security" }

// GovernanceDetails carries the governance action classification.
type GovernanceDetails struct {
	Action string `json:"action"`
}

func (GovernanceDetails) detailsKind() string { return "governance" }

// TextDetails is the generic payload for keyword matches.
type TextDetails struct {
	Score            int      `json:"score"`
	PrimaryMatches   []string `json:"primary_matches,omitempty"`
	SecondaryMatches []string `json:"secondary_matches,omitempty"`
	HashtagMatches   []string `json:"hashtag_matches,omitempty"`
	TrustedAccount   bool     `json:"trusted_account"`
	AuthorHandle     string   `json:"author_handle,omitempty"`
}

func (TextDetails) detailsKind() string { return "text" }

// TrendDetails carries the numbers behind a trend alert.
type TrendDetails struct {
	EntityID      string          `json:"entity_id"`
	EntityName    string          `json:"entity_name"`
	Previous      decimal.Decimal `json:"previous"`
	Current       decimal.Decimal `json:"current"`
	ChangePct     decimal.Decimal `json:"change_pct"`
	Direction     string          `json:"direction"`
	LookbackHours int             `json:"lookback_hours"`
}

func (TrendDetails) detailsKind() string { return "trend" }

// Alert is one candidate notification. Immutable once built; admission
// is the gate's business, not the alert's.
type Alert struct {
	ID        string
	Category  string
	Priority  Priority
	Source    string
	Title     string
	Summary   string
	Details   Details
	Tags      []string
	CreatedAt time.Time
}

// DetailsKind names the details variant, for persistence.
func (a Alert) DetailsKind() string {
	if a.Details == nil {
		return ""
	}
	return a.Details.detailsKind()
}
