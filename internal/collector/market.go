package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

const simplePricePath = "/simple/price"

// MarketOptions parameterise the spot price poller.
type MarketOptions struct {
	BaseURL    string
	Assets     []string
	VsCurrency string
	Timeout    time.Duration
	UserAgent  string
}

// Market polls CoinGecko simple prices and publishes metric snapshots.
type Market struct {
	opts       MarketOptions
	dispatcher *event.Dispatcher
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string
}

// NewMarket constructs a market price collector.
func NewMarket(opts MarketOptions, dispatcher *event.Dispatcher, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}

	return &Market{
		opts:       opts,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "market_collector").Logger(),
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Name identifies the collector.
func (m *Market) Name() string { return "market" }

// Collect fetches prices for the configured assets in one request and
// publishes one MetricSnapshot per asset.
func (m *Market) Collect(ctx context.Context) error {
	if len(m.opts.Assets) == 0 {
		return errors.New("no market assets configured")
	}

	params := url.Values{}
	params.Set("ids", strings.Join(m.opts.Assets, ","))
	params.Set("vs_currencies", m.opts.VsCurrency)

	endpoint := m.baseURL + simplePricePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create market request: %w", err)
	}
	if m.opts.UserAgent != "" {
		req.Header.Set("User-Agent", m.opts.UserAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send market request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("market api responded with status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode market response: %w", err)
	}

	now := time.Now().UTC()
	for _, asset := range m.opts.Assets {
		prices, ok := payload[asset]
		if !ok {
			m.logger.Warn().Str("asset", asset).Msg("asset missing from price response")
			continue
		}
		price, ok := prices[m.opts.VsCurrency]
		if !ok {
			continue
		}

		m.dispatcher.PublishMetric(ctx, event.MetricSnapshot{
			Source:     m.Name(),
			EntityID:   asset,
			EntityName: asset,
			Value:      decimal.NewFromFloat(price),
			Timestamp:  now,
		})
	}
	return nil
}

var _ Collector = (*Market)(nil)
