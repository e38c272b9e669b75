package rules

import (
	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/stats"
	"github.com/openrisk-labs/kestrel/internal/velocity"
)

// Context is the dataset-wide statistical context every rule reads.
// It is computed once over the full batch before any row is scored and
// never mutated afterwards, so scoring order cannot change results.
type Context struct {
	// Per-type amount distributions for the high-amount rule.
	Amounts map[string]stats.AmountStats

	// Dataset-wide merchant category occurrence counts.
	CategorySupport map[string]int

	// Accounts with rapid-succession bursts.
	HighFrequency map[string]bool

	// Per-account daily activity baselines.
	Baselines map[string]velocity.DailyBaseline
}

// BuildContext computes the scoring context for a batch.
func BuildContext(txs []*domain.Transaction, cfg domain.RiskConfig) *Context {
	return &Context{
		Amounts:         stats.BuildAmountStats(txs),
		CategorySupport: stats.BuildCategorySupport(txs),
		HighFrequency:   velocity.HighFrequencyAccounts(txs, cfg.RapidWindow, cfg.MinBurst),
		Baselines:       velocity.DailyBaselines(txs),
	}
}
