package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

type capture struct {
	mu      sync.Mutex
	texts   []event.TextEvent
	metrics []event.MetricSnapshot
}

func newCapture(d *event.Dispatcher) *capture {
	c := &capture{}
	d.SubscribeText(func(_ context.Context, ev event.TextEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.texts = append(c.texts, ev)
		return nil
	})
	d.SubscribeMetric(func(_ context.Context, snap event.MetricSnapshot) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.metrics = append(c.metrics, snap)
		return nil
	})
	return c
}

func TestTwitterCollectPublishesOldestFirst(t *testing.T) {
	var sinceIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.Contains(t, r.URL.Path, "/tweets/search/recent")
		sinceIDs = append(sinceIDs, r.URL.Query().Get("since_id"))

		_, _ = w.Write([]byte(`{
			"data": [
				{
					"id": "102",
					"text": "exploit on LendX #defi",
					"author_id": "u1",
					"public_metrics": {"retweet_count": 3, "reply_count": 1, "like_count": 42},
					"entities": {"hashtags": [{"tag": "defi"}]},
					"referenced_tweets": [{"type": "replied_to"}]
				},
				{"id": "101", "text": "older tweet", "author_id": "u2"},
				{"id": "", "text": "dropped, no id"}
			],
			"includes": {"users": [{"id": "u1", "username": "peckshield"}]},
			"meta": {"newest_id": "102"}
		}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	got := newCapture(dispatcher)

	tw := NewTwitter(TwitterOptions{
		BearerToken: "token",
		BaseURL:     srv.URL,
		Query:       "defi exploit",
	}, dispatcher, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, tw.Collect(ctx))

	require.Len(t, got.texts, 2)
	require.Equal(t, "101", got.texts[0].ID, "oldest tweet first")
	require.Equal(t, "102", got.texts[1].ID)

	ev := got.texts[1]
	require.Equal(t, "twitter", ev.Source)
	require.Equal(t, "peckshield", ev.AuthorHandle)
	require.Equal(t, 42, ev.LikeCount)
	require.Equal(t, 3, ev.RepostCount)
	require.True(t, ev.IsReply)
	require.False(t, ev.IsRetweet)
	require.Equal(t, []string{"defi"}, ev.Hashtags)

	// The cursor advances so the next poll only asks for newer tweets.
	require.NoError(t, tw.Collect(ctx))
	require.Equal(t, []string{"", "102"}, sinceIDs)
}

func TestTwitterCollectRequiresConfig(t *testing.T) {
	dispatcher := event.NewDispatcher(zerolog.Nop())

	tw := NewTwitter(TwitterOptions{}, dispatcher, zerolog.Nop())
	require.Error(t, tw.Collect(context.Background()))

	tw = NewTwitter(TwitterOptions{BearerToken: "token"}, dispatcher, zerolog.Nop())
	require.Error(t, tw.Collect(context.Background()))
}

func TestLlamaCollectSumsChainsAndSkipsSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/protocol/lendx", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"name": "LendX",
			"currentChainTvls": {
				"Ethereum": 8000000,
				"Arbitrum": 2000000,
				"Ethereum-borrowed": 3000000,
				"borrowed": 1000000
			}
		}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	got := newCapture(dispatcher)

	llama := NewLlama(LlamaOptions{
		BaseURL:   srv.URL,
		Protocols: []string{"lendx"},
	}, dispatcher, zerolog.Nop())

	require.NoError(t, llama.Collect(context.Background()))
	require.Len(t, got.metrics, 1)

	snap := got.metrics[0]
	require.Equal(t, "defillama", snap.Source)
	require.Equal(t, "lendx", snap.EntityID)
	require.Equal(t, "LendX", snap.EntityName)
	require.True(t, snap.Value.Equal(decimal.NewFromInt(10_000_000)), "borrowed buckets must not double-count, got %s", snap.Value)
	require.Len(t, snap.Breakdown, 2)
}

func TestLlamaCollectContinuesPastFailingProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/protocol/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"name": "DexY", "currentChainTvls": {"Ethereum": 5000000}}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	got := newCapture(dispatcher)

	llama := NewLlama(LlamaOptions{
		BaseURL:   srv.URL,
		Protocols: []string{"broken", "dexy"},
	}, dispatcher, zerolog.Nop())

	err := llama.Collect(context.Background())
	require.Error(t, err, "the failing protocol still surfaces")
	require.Len(t, got.metrics, 1)
	require.Equal(t, "dexy", got.metrics[0].EntityID)
}

func TestLlamaFetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"name": "LendX",
			"tvl": [
				{"date": 1754006400, "totalLiquidityUSD": 10000000},
				{"date": 1754092800, "totalLiquidityUSD": 15500000}
			]
		}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	llama := NewLlama(LlamaOptions{BaseURL: srv.URL}, dispatcher, zerolog.Nop())

	snaps, err := llama.FetchHistory(context.Background(), "lendx")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.True(t, snaps[0].Timestamp.Before(snaps[1].Timestamp))
	require.True(t, snaps[1].Value.Equal(decimal.NewFromInt(15_500_000)))
}

func TestMarketCollectPublishesPerAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ethereum,chainlink", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"ethereum": {"usd": 4200.5}, "chainlink": {"usd": 30.25}}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	got := newCapture(dispatcher)

	market := NewMarket(MarketOptions{
		BaseURL: srv.URL,
		Assets:  []string{"ethereum", "chainlink"},
	}, dispatcher, zerolog.Nop())

	require.NoError(t, market.Collect(context.Background()))
	require.Len(t, got.metrics, 2)
	require.Equal(t, "ethereum", got.metrics[0].EntityID)
	require.True(t, got.metrics[0].Value.Equal(decimal.NewFromFloat(4200.5)))
	require.Equal(t, "market", got.metrics[1].Source)
}

func TestMarketCollectSkipsMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum": {"usd": 4200.5}}`))
	}))
	defer srv.Close()

	dispatcher := event.NewDispatcher(zerolog.Nop())
	got := newCapture(dispatcher)

	market := NewMarket(MarketOptions{
		BaseURL: srv.URL,
		Assets:  []string{"ethereum", "unknown-token"},
	}, dispatcher, zerolog.Nop())

	require.NoError(t, market.Collect(context.Background()))
	require.Len(t, got.metrics, 1)
}
