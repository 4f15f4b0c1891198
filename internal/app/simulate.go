package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/event"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/gate"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/notify"
)

// SimulateAlert 将一条合成文本跑完整个评分/准入流程并打印结果。
// Uses an in-memory dedup store so a simulation never poisons the real
// dedup history.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.Text == "" {
		return errors.New("--text is required")
	}

	source := opts.Source
	if source == "" {
		source = "simulated"
	}

	ev := event.TextEvent{
		Source:       source,
		ID:           "simulated",
		AuthorHandle: opts.Author,
		Body:         opts.Text,
		Timestamp:    time.Now().UTC(),
	}

	scorer := a.newScorer()
	results := scorer.Score(ev)
	if len(results) == 0 {
		fmt.Fprintln(os.Stdout, "no category matched")
		return nil
	}

	factory := a.newFactory()
	alertOut := factory.FromTextMatch(ev, results[0])

	g := a.newGate(gate.NewMemoryDedup(a.Config.Gating.DedupWindow))
	decision := g.Admit(ctx, alertOut)

	var notifier notify.Notifier
	if opts.Deliver && decision.Approved {
		if notifier = a.newNotifier(); notifier == nil {
			return errors.New("未配置任何告警通道")
		}
		if err := notifier.Notify(ctx, alertOut); err != nil {
			return err
		}
	}

	out := struct {
		Matches  interface{} `json:"matches"`
		Alert    interface{} `json:"alert"`
		Decision interface{} `json:"decision"`
	}{
		Matches:  results,
		Alert:    alertOut,
		Decision: decision,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
