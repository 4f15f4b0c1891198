package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// TextEvent is one social post as delivered by a collector.
type TextEvent struct {
	Source       string
	ID           string
	AuthorID     string
	AuthorHandle string
	Body         string
	IsRetweet    bool
	IsReply      bool
	ReplyCount   int
	RepostCount  int
	LikeCount    int
	Hashtags     []string
	Mentions     []string
	URLs         []string
	Timestamp    time.Time
}

// MetricSnapshot is one observation of a tracked entity's value.
type MetricSnapshot struct {
	Source     string
	EntityID   string
	EntityName string
	Value      decimal.Decimal
	Breakdown  map[string]decimal.Decimal
	Timestamp  time.Time
}
