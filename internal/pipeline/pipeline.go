// Package pipeline orchestrates the batch steps: generate the synthetic
// feed, load it into the store, score it, and render reports. Steps can
// run individually or as a full run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openrisk-labs/kestrel/internal/detection"
	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/generate"
	"github.com/openrisk-labs/kestrel/internal/metrics"
	"github.com/openrisk-labs/kestrel/internal/report"
	"github.com/openrisk-labs/kestrel/internal/rules"
)

// Step names accepted by Run.
const (
	StepGenerate = "generate"
	StepLoad     = "load"
	StepScore    = "score"
	StepReport   = "report"
)

// AllSteps is the full run in order.
var AllSteps = []string{StepGenerate, StepLoad, StepScore, StepReport}

// ParseSteps turns a comma list like "load,score" into an ordered step
// slice; "all" or empty means every step.
func ParseSteps(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return AllSteps, nil
	}

	valid := map[string]bool{StepGenerate: true, StepLoad: true, StepScore: true, StepReport: true}
	var steps []string
	for _, part := range strings.Split(s, ",") {
		step := strings.TrimSpace(part)
		if !valid[step] {
			return nil, fmt.Errorf("unknown step %q", step)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Runner wires the pipeline components together. bus and collector may
// be nil; alerts and metrics are then skipped.
type Runner struct {
	cfg       *domain.Config
	repo      domain.Repository
	engine    *rules.Engine
	bus       domain.EventBus
	cache     domain.Cache
	collector *metrics.Collector
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg *domain.Config, repo domain.Repository, engine *rules.Engine, eventBus domain.EventBus, cache domain.Cache, collector *metrics.Collector) *Runner {
	return &Runner{
		cfg:       cfg,
		repo:      repo,
		engine:    engine,
		bus:       eventBus,
		cache:     cache,
		collector: collector,
	}
}

// Run executes the given steps in order. The first failing step aborts
// the run.
func (r *Runner) Run(ctx context.Context, steps []string) error {
	for _, step := range steps {
		start := time.Now()
		var err error

		switch step {
		case StepGenerate:
			err = r.runGenerate(ctx)
		case StepLoad:
			err = r.runLoad(ctx)
		case StepScore:
			err = r.runScore(ctx)
		case StepReport:
			err = r.runReport(ctx)
		default:
			err = fmt.Errorf("unknown step %q", step)
		}

		elapsed := time.Since(start)
		if r.collector != nil {
			r.collector.RecordStep(step, elapsed)
		}

		if err != nil {
			if r.collector != nil {
				r.collector.RecordRun(false)
			}
			return fmt.Errorf("step %s: %w", step, err)
		}

		slog.Info("step completed", "step", step, "duration_ms", elapsed.Milliseconds())
	}

	if r.collector != nil {
		r.collector.RecordRun(true)
	}
	return nil
}

// runGenerate produces the synthetic feed CSV.
func (r *Runner) runGenerate(ctx context.Context) error {
	p := r.cfg.Pipeline
	g := generate.New(generate.Options{
		Records:    p.Records,
		Accounts:   p.Accounts,
		FraudRatio: p.FraudRatio,
		Seed:       p.Seed,
	})

	txs := g.Generate()
	if err := generate.WriteCSV(p.CSVPath, txs); err != nil {
		return err
	}

	slog.Info("synthetic feed written",
		"path", p.CSVPath,
		"records", len(txs),
		"fraud_ratio", p.FraudRatio,
	)
	return nil
}

// runLoad reads the feed CSV into the store, dropping invalid rows and
// duplicate IDs.
func (r *Runner) runLoad(ctx context.Context) error {
	txs, rejected, err := generate.ReadCSV(r.cfg.Pipeline.CSVPath)
	if err != nil {
		return err
	}
	if rejected > 0 {
		slog.Warn("rejected malformed rows", "count", rejected)
		if r.collector != nil {
			r.collector.RecordRejected(rejected)
		}
	}

	inserted, err := r.repo.SaveTransactions(ctx, txs)
	if err != nil {
		return err
	}

	slog.Info("transactions loaded",
		"read", len(txs),
		"inserted", inserted,
		"duplicates", len(txs)-inserted,
	)
	return nil
}

// runScore scores every stored transaction, rebuilds the risk_scores
// table, publishes alerts for flagged rows and invalidates the serve
// caches.
func (r *Runner) runScore(ctx context.Context) error {
	txs, err := r.repo.ListTransactions(ctx)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		// Nothing to score is a valid (empty) run.
		if err := r.repo.ReplaceScores(ctx, nil); err != nil {
			return err
		}
		r.invalidateCaches(ctx)
		slog.Info("scoring completed", "transactions", 0)
		return nil
	}

	scored, err := r.engine.ScoreAll(ctx, txs)
	if err != nil {
		return err
	}

	if err := r.repo.ReplaceScores(ctx, scored); err != nil {
		return err
	}

	alerts := r.publishAlerts(ctx, scored)
	r.invalidateCaches(ctx)

	if r.collector != nil {
		counts := make(map[domain.RiskLevel]int64)
		for _, s := range scored {
			r.collector.RecordScore(s.RiskScore)
			counts[s.RiskLevel]++
		}
		for _, level := range domain.Levels() {
			r.collector.SetLevelCount(string(level), counts[level])
		}
	}

	if r.bus != nil {
		ev := domain.RunCompletedEvent{
			Transactions: int64(len(scored)),
			Alerts:       alerts,
			CompletedAt:  time.Now().UTC(),
		}
		if payload, err := json.Marshal(ev); err == nil {
			if err := r.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
				slog.Warn("failed to publish run completion", "error", err)
			}
		}
	}

	slog.Info("scoring completed",
		"transactions", len(scored),
		"alerts", alerts,
	)
	return nil
}

// publishAlerts emits an AlertEvent for every flagged row. Publish
// failures are logged, not fatal; the scored rows are already durable.
func (r *Runner) publishAlerts(ctx context.Context, scored []*domain.ScoredTransaction) int64 {
	if r.bus == nil {
		return 0
	}

	var count int64
	for _, s := range scored {
		if !domain.Flagged(s.RiskLevel) {
			continue
		}

		ev := domain.AlertEvent{
			TransactionID: s.ID,
			AccountNumber: s.AccountNumber,
			RiskScore:     s.RiskScore,
			RiskLevel:     s.RiskLevel,
			Flags:         s.Flags,
			Timestamp:     s.Timestamp,
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := r.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "transaction_id", s.ID, "error", err)
			continue
		}
		count++
	}
	return count
}

func (r *Runner) invalidateCaches(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, key := range []string{domain.CacheKeySummary, domain.CacheKeyDetection, domain.CacheKeyTopRisk} {
		if err := r.cache.Delete(ctx, key); err != nil {
			slog.Warn("failed to invalidate cache", "key", key, "error", err)
		}
	}
}

// runReport exports the scored dataset and writes the markdown report.
// Rendering failures after a successful export are logged, not fatal.
func (r *Runner) runReport(ctx context.Context) error {
	total, err := r.repo.CountTransactions(ctx)
	if err != nil {
		return err
	}

	summaries, err := r.repo.LevelSummaries(ctx)
	if err != nil {
		return err
	}

	top, err := r.repo.TopRisk(ctx, r.cfg.Pipeline.TopN)
	if err != nil {
		return err
	}

	counts, err := r.repo.DetectionCounts(ctx)
	if err != nil {
		return err
	}

	// Full export ordered by score; TopRisk with the full count yields
	// exactly that ordering.
	all, err := r.repo.TopRisk(ctx, int(total))
	if err != nil {
		return err
	}
	if err := report.ExportCSV(r.cfg.Pipeline.ExportPath, all); err != nil {
		return err
	}

	data := &report.Data{
		GeneratedAt: time.Now().UTC(),
		Total:       total,
		Summaries:   summaries,
		Top:         top,
		Detection:   detection.Evaluate(*counts),
		Rules:       r.engine.Rules(),
	}
	path, err := report.WriteMarkdown(r.cfg.Pipeline.ReportDir, data)
	if err != nil {
		slog.Error("failed to write markdown report", "error", err)
	} else {
		slog.Info("report written", "path", path, "export", r.cfg.Pipeline.ExportPath)
	}
	return nil
}

// LoadCustomRules pulls stored custom rules into the engine. Called at
// startup and on reload requests.
func (r *Runner) LoadCustomRules(ctx context.Context) (int, error) {
	stored, err := r.repo.ListCustomRules(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.engine.Custom().Replace(stored); err != nil {
		return 0, err
	}

	n := 0
	for _, rule := range stored {
		if rule.Enabled {
			n++
		}
	}
	return n, nil
}
