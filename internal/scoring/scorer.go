package scoring

import (
	"sort"
	"strings"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

// Ruleset is the matching vocabulary for one category. Loaded at
// startup, immutable during a run.
type Ruleset struct {
	Category        string
	Primary         []string
	Secondary       []string
	Negative        []string
	TrustedAccounts []string
	Hashtags        []string
}

// Result is the outcome of matching one text event against one category.
type Result struct {
	Category         string
	Score            int
	PrimaryMatches   []string
	SecondaryMatches []string
	NegativeMatches  []string
	HashtagMatches   []string
	TrustedAccount   bool
}

// Scoring weights. Negative terms veto the category outright; the
// penalty only matters for logging partial matches.
const (
	weightPrimary    = 10
	weightSecondary  = 5
	weightHashtag    = 3
	weightTrusted    = 20
	weightEngagement = 5
	penaltyNegative  = 50
)

// Scorer classifies text events against the configured rulesets.
type Scorer struct {
	rulesets   []Ruleset
	minLikes   int
	minReposts int
}

// New constructs a Scorer. Ruleset order decides tie-breaking between
// equal scores.
func New(rulesets []Ruleset, minLikes, minReposts int) *Scorer {
	return &Scorer{rulesets: rulesets, minLikes: minLikes, minReposts: minReposts}
}

// Score evaluates ev against every category and returns one Result per
// qualifying category, sorted by score descending. Ties keep ruleset
// order.
func (s *Scorer) Score(ev event.TextEvent) []Result {
	body := strings.ToLower(ev.Body)
	handle := strings.ToLower(ev.AuthorHandle)

	var results []Result
	for _, rs := range s.rulesets {
		res := s.scoreCategory(ev, rs, body, handle)

		// A category qualifies only on a primary hit or a trusted
		// author, and a single negative term vetoes it.
		if len(res.PrimaryMatches) == 0 && !res.TrustedAccount {
			continue
		}
		if len(res.NegativeMatches) > 0 {
			continue
		}
		if res.Score <= 0 {
			continue
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// MatchesCategory reports whether text matches a category's rules:
// at least one primary keyword and no negative keyword. Independent of
// scoring.
func (s *Scorer) MatchesCategory(text, category string) bool {
	lowered := strings.ToLower(text)
	for _, rs := range s.rulesets {
		if rs.Category != category {
			continue
		}
		if len(matchSubstrings(lowered, rs.Negative)) > 0 {
			return false
		}
		return len(matchSubstrings(lowered, rs.Primary)) > 0
	}
	return false
}

func (s *Scorer) scoreCategory(ev event.TextEvent, rs Ruleset, body, handle string) Result {
	res := Result{
		Category:         rs.Category,
		PrimaryMatches:   matchSubstrings(body, rs.Primary),
		SecondaryMatches: matchSubstrings(body, rs.Secondary),
		NegativeMatches:  matchSubstrings(body, rs.Negative),
		HashtagMatches:   matchHashtags(ev.Hashtags, rs.Hashtags),
		TrustedAccount:   isTrusted(handle, rs.TrustedAccounts),
	}

	score := weightPrimary*len(res.PrimaryMatches) +
		weightSecondary*len(res.SecondaryMatches) +
		weightHashtag*len(res.HashtagMatches)
	if res.TrustedAccount {
		score += weightTrusted
	}
	if ev.LikeCount > s.minLikes {
		score += weightEngagement
	}
	if ev.RepostCount > s.minReposts {
		score += weightEngagement
	}
	score -= penaltyNegative * len(res.NegativeMatches)

	res.Score = score
	return res
}

func matchSubstrings(lowered string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func matchHashtags(tags, configured []string) []string {
	var matched []string
	for _, want := range configured {
		want = strings.ToLower(strings.TrimPrefix(want, "#"))
		if want == "" {
			continue
		}
		for _, tag := range tags {
			if strings.ToLower(strings.TrimPrefix(tag, "#")) == want {
				matched = append(matched, want)
				break
			}
		}
	}
	return matched
}

func isTrusted(handle string, accounts []string) bool {
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return false
	}
	for _, acc := range accounts {
		if strings.EqualFold(handle, strings.TrimPrefix(acc, "@")) {
			return true
		}
	}
	return false
}
