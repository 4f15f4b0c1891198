package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

const recentSearchPath = "/tweets/search/recent"

// TwitterOptions parameterise the recent-search poller.
type TwitterOptions struct {
	BearerToken string
	BaseURL     string
	Query       string
	Timeout     time.Duration
}

// Twitter polls the recent-search endpoint and publishes text events.
type Twitter struct {
	opts       TwitterOptions
	dispatcher *event.Dispatcher
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string

	mu      sync.Mutex
	sinceID string
}

// NewTwitter constructs a Twitter collector.
func NewTwitter(opts TwitterOptions, dispatcher *event.Dispatcher, logger zerolog.Logger) *Twitter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}

	return &Twitter{
		opts:       opts,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "twitter_collector").Logger(),
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Name identifies the collector.
func (t *Twitter) Name() string { return "twitter" }

type tweetPayload struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			LikeCount    int `json:"like_count"`
		} `json:"public_metrics"`
		Entities struct {
			Hashtags []struct {
				Tag string `json:"tag"`
			} `json:"hashtags"`
			Mentions []struct {
				Username string `json:"username"`
			} `json:"mentions"`
			URLs []struct {
				URL string `json:"url"`
			} `json:"urls"`
		} `json:"entities"`
		ReferencedTweets []struct {
			Type string `json:"type"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
}

// Collect fetches tweets newer than the last seen ID and publishes one
// TextEvent per well-formed tweet. Malformed entries are dropped here;
// the analyzers never see them.
func (t *Twitter) Collect(ctx context.Context) error {
	if t.opts.BearerToken == "" {
		return errors.New("twitter bearer token not configured")
	}
	if t.opts.Query == "" {
		return errors.New("twitter query not configured")
	}

	t.mu.Lock()
	sinceID := t.sinceID
	t.mu.Unlock()

	payload, err := t.fetch(ctx, sinceID)
	if err != nil {
		return err
	}

	users := make(map[string]string, len(payload.Includes.Users))
	for _, u := range payload.Includes.Users {
		users[u.ID] = u.Username
	}

	published := 0
	for i := len(payload.Data) - 1; i >= 0; i-- { // oldest first
		tw := payload.Data[i]
		if tw.ID == "" || tw.Text == "" {
			continue
		}

		ev := event.TextEvent{
			Source:       t.Name(),
			ID:           tw.ID,
			AuthorID:     tw.AuthorID,
			AuthorHandle: users[tw.AuthorID],
			Body:         tw.Text,
			ReplyCount:   tw.PublicMetrics.ReplyCount,
			RepostCount:  tw.PublicMetrics.RetweetCount,
			LikeCount:    tw.PublicMetrics.LikeCount,
			Timestamp:    tw.CreatedAt,
		}
		for _, ref := range tw.ReferencedTweets {
			switch ref.Type {
			case "retweeted":
				ev.IsRetweet = true
			case "replied_to":
				ev.IsReply = true
			}
		}
		for _, h := range tw.Entities.Hashtags {
			ev.Hashtags = append(ev.Hashtags, h.Tag)
		}
		for _, m := range tw.Entities.Mentions {
			ev.Mentions = append(ev.Mentions, m.Username)
		}
		for _, u := range tw.Entities.URLs {
			ev.URLs = append(ev.URLs, u.URL)
		}

		t.dispatcher.PublishText(ctx, ev)
		published++
	}

	if payload.Meta.NewestID != "" {
		t.mu.Lock()
		t.sinceID = payload.Meta.NewestID
		t.mu.Unlock()
	}

	t.logger.Debug().Int("published", published).Msg("twitter poll complete")
	return nil
}

func (t *Twitter) fetch(ctx context.Context, sinceID string) (*tweetPayload, error) {
	params := url.Values{}
	params.Set("query", t.opts.Query)
	params.Set("tweet.fields", "author_id,created_at,public_metrics,entities,referenced_tweets")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")
	params.Set("max_results", "100")
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}

	endpoint := t.baseURL + recentSearchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create twitter request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.opts.BearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send twitter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twitter responded with status %d", resp.StatusCode)
	}

	var payload tweetPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode twitter response: %w", err)
	}
	return &payload, nil
}

var _ Collector = (*Twitter)(nil)
