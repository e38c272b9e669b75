package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openrisk-labs/kestrel/internal/bus"
	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/metrics"
	"github.com/openrisk-labs/kestrel/internal/repository"
	"github.com/openrisk-labs/kestrel/internal/rules"
)

func TestParseSteps(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", AllSteps, false},
		{"all", AllSteps, false},
		{"load,score", []string{StepLoad, StepScore}, false},
		{" generate , report ", []string{StepGenerate, StepReport}, false},
		{"score,publish", nil, true},
	}

	for _, tc := range cases {
		got, err := ParseSteps(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSteps(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSteps(%q) failed: %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("ParseSteps(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseSteps(%q)[%d] = %s, want %s", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func newTestRunner(t *testing.T) (*Runner, *domain.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.DefaultConfig()
	cfg.Pipeline.Records = 60
	cfg.Pipeline.Accounts = 10
	cfg.Pipeline.FraudRatio = 0.1
	cfg.Pipeline.Seed = 99
	cfg.Pipeline.CSVPath = filepath.Join(dir, "transactions.csv")
	cfg.Pipeline.ExportPath = filepath.Join(dir, "results.csv")
	cfg.Pipeline.ReportDir = filepath.Join(dir, "outputs")
	cfg.Repository.SQLitePath = filepath.Join(dir, "kestrel.db")

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(cfg.Risk)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	return NewRunner(cfg, repo, engine, eventBus, nil, metrics.NewCollector()), cfg
}

func TestRunFullPipeline(t *testing.T) {
	r, cfg := newTestRunner(t)
	ctx := context.Background()

	if err := r.Run(ctx, AllSteps); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Feed CSV and exports exist.
	if _, err := os.Stat(cfg.Pipeline.CSVPath); err != nil {
		t.Errorf("feed csv missing: %v", err)
	}
	if _, err := os.Stat(cfg.Pipeline.ExportPath); err != nil {
		t.Errorf("export csv missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Pipeline.ReportDir, "risk_report.md")); err != nil {
		t.Errorf("markdown report missing: %v", err)
	}

	count, err := r.repo.CountTransactions(ctx)
	if err != nil {
		t.Fatalf("CountTransactions failed: %v", err)
	}
	if count != 60 {
		t.Errorf("stored transactions = %d, want 60", count)
	}

	summaries, err := r.repo.LevelSummaries(ctx)
	if err != nil {
		t.Fatalf("LevelSummaries failed: %v", err)
	}
	var total int64
	for _, s := range summaries {
		total += s.Count
	}
	if total != 60 {
		t.Errorf("summary total = %d, want 60", total)
	}
}

func TestRunScoreEmptyStore(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	// An empty store scores successfully to an empty result set.
	if err := r.Run(ctx, []string{StepScore}); err != nil {
		t.Fatalf("scoring an empty store failed: %v", err)
	}

	summaries, err := r.repo.LevelSummaries(ctx)
	if err != nil {
		t.Fatalf("LevelSummaries failed: %v", err)
	}
	for _, s := range summaries {
		if s.Count != 0 {
			t.Errorf("expected zero-count summary for %s, got %d", s.Level, s.Count)
		}
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	if err := r.Run(ctx, AllSteps); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	first, err := r.repo.TopRisk(ctx, 60)
	if err != nil {
		t.Fatalf("TopRisk failed: %v", err)
	}

	// Re-loading the same feed inserts nothing new; re-scoring yields
	// identical rows.
	if err := r.Run(ctx, []string{StepLoad, StepScore}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	count, _ := r.repo.CountTransactions(ctx)
	if count != 60 {
		t.Errorf("count after reload = %d, want 60", count)
	}

	second, err := r.repo.TopRisk(ctx, 60)
	if err != nil {
		t.Fatalf("TopRisk failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("scored counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].RiskScore != second[i].RiskScore {
			t.Errorf("row %d differs across reruns: %s/%f vs %s/%f", i,
				first[i].ID, first[i].RiskScore, second[i].ID, second[i].RiskScore)
		}
	}
}

func TestLoadCustomRules(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	if err := r.repo.SaveCustomRule(ctx, &domain.CustomRule{
		ID:         "big-transfer",
		Name:       "big_transfer",
		Expression: `tx_type == "transfer" && amount > 1500.0`,
		Weight:     0.2,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("SaveCustomRule failed: %v", err)
	}
	if err := r.repo.SaveCustomRule(ctx, &domain.CustomRule{
		ID:         "disabled",
		Expression: `true`,
		Enabled:    false,
	}); err != nil {
		t.Fatalf("SaveCustomRule failed: %v", err)
	}

	n, err := r.LoadCustomRules(ctx)
	if err != nil {
		t.Fatalf("LoadCustomRules failed: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded = %d, want 1 (disabled rules skipped)", n)
	}
}
