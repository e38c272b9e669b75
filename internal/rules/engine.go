// Package rules implements the weighted risk scoring engine: five
// built-in rules plus optional operator-defined CEL rules.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// Engine scores transactions against the built-in rules and any loaded
// custom rules. Safe for concurrent use once constructed.
type Engine struct {
	cfg     domain.RiskConfig
	weights map[int]float64
	custom  *CustomEngine
}

// NewEngine creates a scoring engine from configuration. The rule set
// in cfg.Rules supplies the weights; a rule missing from it scores 0.
func NewEngine(cfg domain.RiskConfig) (*Engine, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = domain.DefaultRules()
	}

	weights := make(map[int]float64, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.Weight < 0 {
			return nil, fmt.Errorf("rule %s: negative weight %f", r.Name, r.Weight)
		}
		weights[r.ID] = r.Weight
	}

	custom, err := NewCustomEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create custom rule engine: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		weights: weights,
		custom:  custom,
	}, nil
}

// Rules returns the configured built-in rule definitions.
func (e *Engine) Rules() []domain.RiskRule {
	out := make([]domain.RiskRule, len(e.cfg.Rules))
	copy(out, e.cfg.Rules)
	return out
}

// Custom exposes the custom rule engine for rule management.
func (e *Engine) Custom() *CustomEngine {
	return e.custom
}

// Score evaluates one transaction against the built-in rules using the
// precomputed context. Pure: the same transaction and context always
// produce the same result.
func (e *Engine) Score(tx *domain.Transaction, rctx *Context) (domain.RuleFlags, float64) {
	var flags domain.RuleFlags
	var score float64

	// High amount: beyond mean + k*stddev for the transaction's type.
	// A type with fewer than two samples has no usable distribution.
	if s, ok := rctx.Amounts[tx.Type]; ok && s.Usable() {
		if tx.Amount > s.Threshold(e.cfg.StddevMultiplier) {
			flags.HighAmount = true
			score += e.weights[domain.RuleHighAmount]
		}
	}

	// Odd hours: inclusive UTC hour window.
	hour := tx.Timestamp.UTC().Hour()
	if hour >= e.cfg.OddHourStart && hour <= e.cfg.OddHourEnd {
		flags.OddHours = true
		score += e.weights[domain.RuleOddHours]
	}

	// High frequency: the account had a rapid-succession burst.
	if rctx.HighFrequency[tx.AccountNumber] {
		flags.HighFrequency = true
		score += e.weights[domain.RuleHighFrequency]
	}

	// Unusual merchant: rare category or the known-bad one. A row
	// without a category cannot trigger this.
	if tx.MerchantCategory.Valid {
		cat := tx.MerchantCategory.Value
		if rctx.CategorySupport[cat] < e.cfg.MerchantSupport || cat == domain.MerchantSentinel {
			flags.UnusualMerchant = true
			score += e.weights[domain.RuleUnusualMerchant]
		}
	}

	// Account velocity: today's count beyond the account's own daily
	// baseline. Single-active-day accounts have no baseline.
	if b, ok := rctx.Baselines[tx.AccountNumber]; ok {
		if b.Elevated(tx.Date(), e.cfg.StddevMultiplier) {
			flags.AccountVelocity = true
			score += e.weights[domain.RuleAccountVelocity]
		}
	}

	return flags, score
}

// ScoreAll scores a whole batch: builds the statistical context in one
// pass, then scores rows in parallel bounded by MaxWorkers. Output
// order matches input order.
func (e *Engine) ScoreAll(ctx context.Context, txs []*domain.Transaction) ([]*domain.ScoredTransaction, error) {
	rctx := BuildContext(txs, e.cfg)
	customRules := e.custom.Enabled()

	scored := make([]*domain.ScoredTransaction, len(txs))
	errs := make([]error, len(txs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.MaxWorkers)

	for i, tx := range txs {
		wg.Add(1)
		go func(idx int, tx *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}

			flags, score := e.Score(tx, rctx)

			var triggered []string
			for _, cr := range customRules {
				hit, err := e.custom.Evaluate(cr, tx)
				if err != nil {
					errs[idx] = fmt.Errorf("custom rule %s on %s: %w", cr.Rule.ID, tx.ID, err)
					return
				}
				if hit {
					score += cr.Rule.Weight
					triggered = append(triggered, cr.Rule.ID)
				}
			}

			scored[idx] = &domain.ScoredTransaction{
				Transaction:     *tx,
				RiskScore:       score,
				RiskLevel:       e.cfg.Thresholds.Classify(score),
				Flags:           flags,
				CustomTriggered: triggered,
			}
		}(i, tx)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return scored, nil
}
