package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

// LlamaOptions parameterise the DeFiLlama TVL poller.
type LlamaOptions struct {
	BaseURL   string
	Protocols []string
	Timeout   time.Duration
}

// Llama polls DeFiLlama per-protocol TVL with chain breakdown.
type Llama struct {
	opts       LlamaOptions
	dispatcher *event.Dispatcher
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string
}

// NewLlama constructs a DeFiLlama collector.
func NewLlama(opts LlamaOptions, dispatcher *event.Dispatcher, logger zerolog.Logger) *Llama {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.llama.fi"
	}

	return &Llama{
		opts:       opts,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "llama_collector").Logger(),
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Name identifies the collector.
func (l *Llama) Name() string { return "defillama" }

type llamaProtocol struct {
	Name             string             `json:"name"`
	CurrentChainTvls map[string]float64 `json:"currentChainTvls"`
	TVL              []llamaHistoryItem `json:"tvl"`
}

type llamaHistoryItem struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

// Collect fetches every configured protocol and publishes one
// MetricSnapshot each. A failing protocol is logged and skipped so one
// outage does not starve the rest.
func (l *Llama) Collect(ctx context.Context) error {
	if len(l.opts.Protocols) == 0 {
		return errors.New("no defillama protocols configured")
	}

	var lastErr error
	for _, slug := range l.opts.Protocols {
		proto, err := l.fetchProtocol(ctx, slug)
		if err != nil {
			l.logger.Error().Err(err).Str("protocol", slug).Msg("tvl fetch failed")
			lastErr = err
			continue
		}

		breakdown := make(map[string]decimal.Decimal, len(proto.CurrentChainTvls))
		total := decimal.Zero
		for chain, tvl := range proto.CurrentChainTvls {
			// Synthetic keys like "Ethereum-borrowed" double-count.
			if strings.Contains(chain, "-") || chain == "borrowed" {
				continue
			}
			value := decimal.NewFromFloat(tvl)
			breakdown[chain] = value
			total = total.Add(value)
		}

		l.dispatcher.PublishMetric(ctx, event.MetricSnapshot{
			Source:     l.Name(),
			EntityID:   slug,
			EntityName: proto.Name,
			Value:      total,
			Breakdown:  breakdown,
			Timestamp:  time.Now().UTC(),
		})
	}
	return lastErr
}

// FetchHistory returns the historical TVL series for one protocol.
// Used by the backfill command.
func (l *Llama) FetchHistory(ctx context.Context, slug string) ([]event.MetricSnapshot, error) {
	proto, err := l.fetchProtocol(ctx, slug)
	if err != nil {
		return nil, err
	}

	snaps := make([]event.MetricSnapshot, 0, len(proto.TVL))
	for _, item := range proto.TVL {
		snaps = append(snaps, event.MetricSnapshot{
			Source:     l.Name(),
			EntityID:   slug,
			EntityName: proto.Name,
			Value:      decimal.NewFromFloat(item.TotalLiquidityUSD),
			Timestamp:  time.Unix(item.Date, 0).UTC(),
		})
	}
	return snaps, nil
}

func (l *Llama) fetchProtocol(ctx context.Context, slug string) (*llamaProtocol, error) {
	endpoint := fmt.Sprintf("%s/protocol/%s", l.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create defillama request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send defillama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("defillama responded with status %d", resp.StatusCode)
	}

	var proto llamaProtocol
	if err := json.NewDecoder(resp.Body).Decode(&proto); err != nil {
		return nil, fmt.Errorf("decode defillama response: %w", err)
	}
	return &proto, nil
}

var _ Collector = (*Llama)(nil)
