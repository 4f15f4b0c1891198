package alert

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/scoring"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/trend"
)

// Title templates per category. Unrecognised categories fall back to
// the generic template.
var titleTemplates = map[string]string{
	CategorySecurity:    "Security alert: %s",
	CategoryGovernance:  "Governance update: %s",
	CategoryListing:     "Listing news: %s",
	CategoryPartnership: "Partnership news: %s",
}

const genericTitleTemplate = "DeFi update: %s"

const (
	maxHeadlineLen = 80
	maxSummaryLen  = 280
)

// Severity keyword tiers, checked most severe first.
var (
	severityCritical = []string{"exploited", "hacked", "drained", "stolen", "rug pull", "rugged"}
	severityHigh     = []string{"exploit", "hack", "vulnerability", "attack", "breach"}
	severityWarning  = []string{"suspicious", "paused", "warning", "investigating", "anomaly"}
)

// Protocol name heuristics: "on LendX", "LendX protocol". Lossy by
// design; an empty result is acceptable.
var (
	protocolOnPattern   = regexp.MustCompile(`\bon\s+([A-Z][A-Za-z0-9]{2,})`)
	protocolNounPattern = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]{2,})\s+[Pp]rotocol\b`)
)

// Factory builds structured alerts from scored classifications and
// trend changes.
type Factory struct {
	categoryPriority map[string]Priority
	now              func() time.Time
	newID            func() string
}

// NewFactory constructs a Factory. categoryPriority maps a category to
// its configured base tier; unknown categories get medium.
func NewFactory(categoryPriority map[string]Priority) *Factory {
	return &Factory{
		categoryPriority: categoryPriority,
		now:              time.Now,
		newID:            func() string { return uuid.NewString() },
	}
}

// SetClock overrides the time source. Test hook.
func (f *Factory) SetClock(now func() time.Time) { f.now = now }

// FromTextMatch builds an alert from a scored text classification.
func (f *Factory) FromTextMatch(ev event.TextEvent, res scoring.Result) Alert {
	priority := f.basePriority(res.Category)

	// A trusted author reporting a security event outranks whatever the
	// category is configured at.
	if res.Category == CategorySecurity && res.TrustedAccount {
		priority = PriorityCritical
	}

	a := Alert{
		ID:        f.newID(),
		Category:  res.Category,
		Priority:  priority,
		Source:    ev.Source,
		Title:     renderTitle(res.Category, headline(ev.Body)),
		Summary:   truncate(ev.Body, maxSummaryLen),
		Details:   f.extractDetails(ev, res),
		Tags:      textTags(ev, res),
		CreatedAt: f.now(),
	}
	return a
}

// FromTrendChange builds an alert from a significant metric move.
func (f *Factory) FromTrendChange(change trend.Change, category string) Alert {
	direction := classifyDirection(change.ChangePct)
	pct := change.ChangePct.Abs().StringFixed(1)

	title := fmt.Sprintf("%s %s %s %s%% over %dh",
		displayName(change), strings.ToUpper(category), direction, pct, change.LookbackHours)
	summary := fmt.Sprintf("%s moved from %s to %s (%s%%) in the last %d hours.",
		displayName(change), change.Previous.StringFixed(0), change.Current.StringFixed(0),
		change.ChangePct.StringFixed(2), change.LookbackHours)

	return Alert{
		ID:       f.newID(),
		Category: category,
		Priority: priorityForTier(change.Tier()),
		Source:   change.EntityID,
		Title:    title,
		Summary:  summary,
		Details: TrendDetails{
			EntityID:      change.EntityID,
			EntityName:    change.EntityName,
			Previous:      change.Previous,
			Current:       change.Current,
			ChangePct:     change.ChangePct,
			Direction:     direction,
			LookbackHours: change.LookbackHours,
		},
		Tags:      []string{category, change.EntityID, direction},
		CreatedAt: f.now(),
	}
}

func (f *Factory) basePriority(category string) Priority {
	if p, ok := f.categoryPriority[category]; ok && p >= PriorityLow && p <= PriorityCritical {
		return p
	}
	return PriorityMedium
}

func (f *Factory) extractDetails(ev event.TextEvent, res scoring.Result) Details {
	switch res.Category {
	case CategorySecurity:
		return extractSecurityDetails(ev.Body)
	case CategoryGovernance:
		return GovernanceDetails{Action: classifyGovernanceAction(ev.Body)}
	default:
		return TextDetails{
			Score:            res.Score,
			PrimaryMatches:   res.PrimaryMatches,
			SecondaryMatches: res.SecondaryMatches,
			HashtagMatches:   res.HashtagMatches,
			TrustedAccount:   res.TrustedAccount,
			AuthorHandle:     ev.AuthorHandle,
		}
	}
}

func extractSecurityDetails(body string) SecurityDetails {
	lowered := strings.ToLower(body)

	severity := "informational"
	switch {
	case containsAny(lowered, severityCritical):
		severity = "critical"
	case containsAny(lowered, severityHigh):
		severity = "high"
	case containsAny(lowered, severityWarning):
		severity = "warning"
	}

	eventType := "abnormal behavior"
	switch {
	case containsAny(lowered, []string{"rug", "scam"}):
		eventType = "rug_pull"
	case containsAny(lowered, []string{"exploit", "hack", "drained"}):
		eventType = "exploit"
	case strings.Contains(lowered, "paused"):
		eventType = "protocol_paused"
	case strings.Contains(lowered, "audit"):
		eventType = "audit"
	}

	return SecurityDetails{
		Severity:  severity,
		EventType: eventType,
		Protocol:  extractProtocolName(body),
	}
}

func extractProtocolName(body string) string {
	if m := protocolNounPattern.FindStringSubmatch(body); len(m) == 2 {
		return m[1]
	}
	if m := protocolOnPattern.FindStringSubmatch(body); len(m) == 2 {
		return m[1]
	}
	return ""
}

func classifyGovernanceAction(body string) string {
	lowered := strings.ToLower(body)
	switch {
	case containsAny(lowered, []string{"passed", "approved", "executed"}):
		return "passed"
	case containsAny(lowered, []string{"vote", "voting", "quorum"}):
		return "vote"
	case containsAny(lowered, []string{"proposal", "proposed"}):
		return "proposal"
	default:
		return "discussion"
	}
}

func classifyDirection(pct decimal.Decimal) string {
	switch pct.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

func priorityForTier(t trend.Tier) Priority {
	switch t {
	case trend.TierCritical:
		return PriorityCritical
	case trend.TierHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

func renderTitle(category, headline string) string {
	tmpl, ok := titleTemplates[category]
	if !ok {
		tmpl = genericTitleTemplate
	}
	return fmt.Sprintf(tmpl, headline)
}

func displayName(change trend.Change) string {
	if change.EntityName != "" {
		return change.EntityName
	}
	return change.EntityID
}

func textTags(ev event.TextEvent, res scoring.Result) []string {
	tags := []string{res.Category, ev.Source}
	if res.TrustedAccount {
		tags = append(tags, "trusted")
	}
	return tags
}

func headline(body string) string {
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[:idx]
	}
	return truncate(strings.TrimSpace(body), maxHeadlineLen)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never leaves a partial
	// multibyte sequence behind.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
