package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/collector"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/config"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/gate"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/notify"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/scheduler"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/scoring"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/service"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/storage"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/trend"
)

// Trend sweeps are cheap in-memory scans; half an hour keeps aged-out
// windows from hiding a slow move for long.
const trendSweepInterval = 30 * time.Minute

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) buildRulesets() []scoring.Ruleset {
	names := a.Config.CategoryNames()
	rulesets := make([]scoring.Ruleset, 0, len(names))
	for _, name := range names {
		kw := a.Config.Categories[name].Keywords
		rulesets = append(rulesets, scoring.Ruleset{
			Category:        name,
			Primary:         kw.Primary,
			Secondary:       kw.Secondary,
			Negative:        kw.Negative,
			TrustedAccounts: kw.TrustedAccounts,
			Hashtags:        kw.Hashtags,
		})
	}
	return rulesets
}

func (a *App) newScorer() *scoring.Scorer {
	return scoring.New(a.buildRulesets(), a.Config.Scoring.MinLikes, a.Config.Scoring.MinReposts)
}

func (a *App) newFactory() *alert.Factory {
	priorities := make(map[string]alert.Priority, len(a.Config.Categories))
	for name, cat := range a.Config.Categories {
		if cat.Priority > 0 {
			priorities[name] = alert.Priority(cat.Priority)
		}
	}
	return alert.NewFactory(priorities)
}

func (a *App) newGate(dedup gate.DedupStore) *gate.Gate {
	policies := make(map[string]gate.CategoryPolicy, len(a.Config.Categories))
	for name, cat := range a.Config.Categories {
		policies[name] = gate.CategoryPolicy{Enabled: cat.Enabled, Cooldown: cat.Cooldown}
	}
	return gate.New(gate.Options{
		DedupWindow:    a.Config.Gating.DedupWindow,
		GlobalCooldown: a.Config.Gating.GlobalCooldown,
		Categories:     policies,
	}, dedup, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if !a.Config.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Telegram
	return notify.NewTelegram(cfg.BotToken, cfg.APIBase, a.destinations(), cfg.RequestTimeout, a.Logger)
}

func (a *App) destinations() []gate.Destination {
	dests := make([]gate.Destination, 0, len(a.Config.Telegram.Chats))
	for _, chat := range a.Config.Telegram.Chats {
		dests = append(dests, gate.Destination{
			ID:         chat.ChatID,
			Categories: chat.Categories,
			Paused:     chat.Paused,
		})
	}
	return dests
}

func (a *App) trendThresholds() map[string]trend.Thresholds {
	thresholds := make(map[string]trend.Thresholds, len(a.Config.Categories))
	for name, cat := range a.Config.Categories {
		th := cat.Thresholds
		if th.MinChangePct == 0 && th.MinAbsoluteValue == 0 && th.LookbackHours == 0 {
			continue
		}
		thresholds[name] = trend.Thresholds{
			MinChangePct:     th.MinChangePct,
			MinAbsoluteValue: th.MinAbsoluteValue,
			LookbackHours:    th.LookbackHours,
		}
	}
	return thresholds
}

func (a *App) newCollectors(dispatcher *event.Dispatcher) []scheduler.Job {
	var jobs []scheduler.Job
	cols := a.Config.Collectors

	if cols.Twitter.Enabled {
		tw := collector.NewTwitter(collector.TwitterOptions{
			BearerToken: cols.Twitter.BearerToken,
			BaseURL:     cols.Twitter.BaseURL,
			Query:       cols.Twitter.Query,
			Timeout:     cols.Twitter.RequestTimeout,
		}, dispatcher, a.Logger)
		jobs = append(jobs, scheduler.Job{Name: tw.Name(), Interval: cols.Twitter.Interval, Run: tw.Collect})
	}

	if cols.DefiLlama.Enabled {
		llama := collector.NewLlama(collector.LlamaOptions{
			BaseURL:   cols.DefiLlama.BaseURL,
			Protocols: cols.DefiLlama.Protocols,
			Timeout:   cols.DefiLlama.RequestTimeout,
		}, dispatcher, a.Logger)
		jobs = append(jobs, scheduler.Job{Name: llama.Name(), Interval: cols.DefiLlama.Interval, Run: llama.Collect})
	}

	if cols.Market.Enabled {
		market := collector.NewMarket(collector.MarketOptions{
			BaseURL:    cols.Market.BaseURL,
			Assets:     cols.Market.Assets,
			VsCurrency: cols.Market.VsCurrency,
			Timeout:    cols.Market.RequestTimeout,
			UserAgent:  cols.Market.UserAgent,
		}, dispatcher, a.Logger)
		jobs = append(jobs, scheduler.Job{Name: market.Name(), Interval: cols.Market.Interval, Run: market.Collect})
	}

	if cols.Chainlink.Enabled {
		onchain := collector.NewChainlink(collector.ChainlinkOptions{
			RPCURL:  cols.Chainlink.RPCURL,
			Feeds:   cols.Chainlink.Feeds,
			Timeout: cols.Chainlink.RequestTimeout,
		}, dispatcher, a.Logger)
		jobs = append(jobs, scheduler.Job{Name: onchain.Name(), Interval: cols.Chainlink.Interval, Run: onchain.Collect})
	}

	return jobs
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled, dedup in memory only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var dedup gate.DedupStore
	var alertStore storage.AlertStore
	var sampleStore storage.MetricSampleStore
	if store != nil {
		dedup = store
		alertStore = store
		sampleStore = store
	} else {
		dedup = gate.NewMemoryDedup(a.Config.Gating.DedupWindow)
	}

	dispatcher := event.NewDispatcher(a.Logger)
	pipeline := service.New(service.Options{
		Thresholds:  a.trendThresholds(),
		ShortWindow: a.Config.Trend.ShortWindow,
		LongWindow:  a.Config.Trend.LongWindow,
	}, a.newScorer(), a.newFactory(), a.newGate(dedup), alertStore, sampleStore, a.newNotifier(), a.Logger)
	pipeline.Register(dispatcher)

	jobs := a.newCollectors(dispatcher)
	if len(jobs) == 0 {
		return errors.New("no collectors enabled")
	}
	jobs = append(jobs, scheduler.Job{Name: "trend_sweep", Interval: trendSweepInterval, Run: pipeline.SweepTrends})

	if store != nil {
		stopCron, err := a.startMaintenance(ctx, store)
		if err != nil {
			return err
		}
		defer stopCron()
	}

	sched := scheduler.New(scheduler.Options{AlignToStart: true}, a.Logger)

	a.Logger.Info().Int("jobs", len(jobs)).Msg("starting monitoring service")
	err = sched.Run(ctx, jobs...)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// startMaintenance schedules the retention sweep.
func (a *App) startMaintenance(ctx context.Context, store *storage.Store) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(a.Config.Retention.Schedule, func() {
		now := time.Now().UTC()
		if err := store.DeleteDedupBefore(ctx, now.Add(-a.Config.Gating.DedupWindow)); err != nil {
			a.Logger.Error().Err(err).Msg("dedup retention sweep failed")
		}
		if err := store.DeleteAlertsBefore(ctx, now.Add(-a.Config.Retention.AlertMaxAge)); err != nil {
			a.Logger.Error().Err(err).Msg("alert retention sweep failed")
		}
	})
	if err != nil {
		return nil, errors.New("invalid retention.schedule: " + err.Error())
	}
	c.Start()
	return func() { c.Stop() }, nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a metric series.
type ExportOptions struct {
	Entity    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// BackfillOptions configure the TVL backfill job.
type BackfillOptions struct {
	Protocol string
	From     time.Time
	To       time.Time
	DryRun   bool
}

// SimulateOptions feed one synthetic post through the pipeline.
type SimulateOptions struct {
	Text    string
	Author  string
	Source  string
	Deliver bool
}
