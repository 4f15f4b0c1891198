package gate

import "github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"

// Destination is one delivery target with its subscription state.
type Destination struct {
	ID         string
	Categories []string
	Paused     bool
}

// Accepts reports whether the destination should receive alerts of the
// given category.
func (d Destination) Accepts(category string) bool {
	if d.Paused {
		return false
	}
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// FilterDestinations applies per-destination filtering after global
// approval: a destination receives the alert only if it is not paused
// and subscribes to the alert's category.
func FilterDestinations(a alert.Alert, dests []Destination) []Destination {
	var out []Destination
	for _, d := range dests {
		if d.Accepts(a.Category) {
			out = append(out, d)
		}
	}
	return out
}
