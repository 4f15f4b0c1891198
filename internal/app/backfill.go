package app

import (
	"context"
	"errors"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/collector"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/storage"
)

// Backfill 将 DeFiLlama 历史 TVL 写入 metric_samples。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Protocol == "" {
		return errors.New("--protocol is required")
	}
	if !opts.From.Before(opts.To) {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	llama := collector.NewLlama(collector.LlamaOptions{
		BaseURL: a.Config.Collectors.DefiLlama.BaseURL,
		Timeout: a.Config.Collectors.DefiLlama.RequestTimeout,
	}, nil, a.Logger)

	history, err := llama.FetchHistory(ctx, opts.Protocol)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, snap := range history {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if snap.Timestamp.Before(opts.From) || !snap.Timestamp.Before(opts.To) {
			continue
		}
		if opts.DryRun {
			processed++
			continue
		}

		sample := storage.MetricSample{
			EntityID:   snap.EntityID,
			EntityName: snap.EntityName,
			Source:     snap.Source,
			Value:      snap.Value,
			ObservedAt: snap.Timestamp,
		}
		if err := store.UpsertMetricSample(ctx, sample); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("observed_at", snap.Timestamp).Msg("回填失败")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分样本回填失败，请检查日志")
	}
	return nil
}
