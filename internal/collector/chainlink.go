package collector

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
)

const aggregatorABIJSON = `[
  {"inputs":[],"name":"latestAnswer","outputs":[{"internalType":"int256","name":"","type":"int256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain feed collector.
type ChainlinkOptions struct {
	RPCURL  string
	Feeds   map[string]string // entity name -> aggregator address
	Timeout time.Duration
}

// Chainlink reads price feeds straight from aggregator contracts.
type Chainlink struct {
	opts       ChainlinkOptions
	dispatcher *event.Dispatcher
	logger     zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client
}

// NewChainlink constructs an on-chain feed collector.
func NewChainlink(opts ChainlinkOptions, dispatcher *event.Dispatcher, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:       opts,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "chainlink_collector").Logger(),
	}
}

// Name identifies the collector.
func (c *Chainlink) Name() string { return "chainlink" }

// Collect reads every configured feed and publishes one MetricSnapshot
// per feed. Feed order is stable so failures are reproducible.
func (c *Chainlink) Collect(ctx context.Context) error {
	if c.opts.RPCURL == "" {
		return errors.New("ethereum rpc url not configured")
	}
	if len(c.opts.Feeds) == 0 {
		return errors.New("no chainlink feeds configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(c.opts.Feeds))
	for name := range c.opts.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	var lastErr error
	for _, name := range names {
		price, err := c.readFeed(ctx, client, c.opts.Feeds[name])
		if err != nil {
			c.logger.Error().Err(err).Str("feed", name).Msg("feed read failed")
			lastErr = err
			continue
		}

		c.dispatcher.PublishMetric(ctx, event.MetricSnapshot{
			Source:     c.Name(),
			EntityID:   name,
			EntityName: name,
			Value:      price,
			Timestamp:  now,
		})
	}
	return lastErr
}

func (c *Chainlink) readFeed(ctx context.Context, client *ethclient.Client, address string) (decimal.Decimal, error) {
	addr := common.HexToAddress(address)

	answer, err := c.callInt(ctx, client, addr, "latestAnswer")
	if err != nil {
		return decimal.Decimal{}, err
	}

	decimalsPayload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return decimal.Decimal{}, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: decimalsPayload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, errors.New("unexpected decimals response")
	}
	feedDecimals, ok := outputs[0].(uint8)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode decimals output")
	}

	return decimal.NewFromBigInt(answer, -int32(feedDecimals)), nil
}

func (c *Chainlink) callInt(ctx context.Context, client *ethclient.Client, addr common.Address, method string) (*big.Int, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, err
	}
	outputs, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, errors.New("unexpected " + method + " response")
	}
	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, errors.New("failed to decode " + method + " output")
	}
	return value, nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Collector = (*Chainlink)(nil)
