package domain

import (
	"time"
)

// RiskLevel is the categorical bucket derived from a risk score.
type RiskLevel string

const (
	LevelVeryHigh RiskLevel = "Very High"
	LevelHigh     RiskLevel = "High"
	LevelMedium   RiskLevel = "Medium"
	LevelLow      RiskLevel = "Low"
)

// Levels lists all risk levels in reporting order, highest first.
// Summaries emit every level, including zero-count ones, in this order.
func Levels() []RiskLevel {
	return []RiskLevel{LevelVeryHigh, LevelHigh, LevelMedium, LevelLow}
}

// LevelThresholds maps score ranges to risk levels. Evaluated highest
// first; the first threshold at or below the score wins.
type LevelThresholds struct {
	VeryHigh float64 `json:"very_high"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
}

// DefaultThresholds returns the standard classification boundaries.
func DefaultThresholds() LevelThresholds {
	return LevelThresholds{VeryHigh: 0.8, High: 0.6, Medium: 0.3}
}

// Classify maps a risk score to a level. It is total: every score,
// including 0 and scores beyond the built-in maximum, gets a level.
func (t LevelThresholds) Classify(score float64) RiskLevel {
	switch {
	case score >= t.VeryHigh:
		return LevelVeryHigh
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Flagged reports whether a level counts as flagged for detection
// metrics: High or above.
func Flagged(level RiskLevel) bool {
	return level == LevelHigh || level == LevelVeryHigh
}

// ScoredTransaction is a Transaction with its computed risk score, level,
// and per-rule audit flags. Rebuilt from scratch on every scoring run.
type ScoredTransaction struct {
	Transaction

	RiskScore float64   `json:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level"`
	Flags     RuleFlags `json:"flags"`

	// IDs of custom rules that triggered, empty when none are loaded.
	CustomTriggered []string `json:"custom_triggered,omitempty"`
}

// LevelSummary aggregates scored transactions for one risk level.
type LevelSummary struct {
	Level       RiskLevel `json:"risk_level"`
	Count       int64     `json:"transaction_count"`
	AvgAmount   float64   `json:"avg_amount"`
	TotalAmount float64   `json:"total_amount"`
}

// DetectionCounts is the 2x2 confusion breakdown of flagged levels
// against the known_fraud ground truth. Labeled counts the rows that
// carried a ground-truth label at all.
type DetectionCounts struct {
	TruePositives  int64 `json:"true_positives"`
	FalsePositives int64 `json:"false_positives"`
	FalseNegatives int64 `json:"false_negatives"`
	TrueNegatives  int64 `json:"true_negatives"`
	Labeled        int64 `json:"labeled"`
}

// DetectionReport is the detection-quality summary derived from counts.
type DetectionReport struct {
	DetectionCounts

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Alert is a persisted record of a flagged transaction.
type Alert struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	AccountNumber string    `json:"account_number"`
	RiskScore     float64   `json:"risk_score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	CreatedAt     time.Time `json:"created_at"`
}
