// Package detection measures scoring quality against the known-fraud
// ground truth carried by synthetic data. Rows without a label are
// excluded from every count.
package detection

import "github.com/openrisk-labs/kestrel/internal/domain"

// Tally computes the confusion counts for a scored batch. A row is
// treated as flagged when its level is High or above.
func Tally(scored []*domain.ScoredTransaction) domain.DetectionCounts {
	var c domain.DetectionCounts
	for _, s := range scored {
		if !s.KnownFraud.Valid {
			continue
		}
		c.Labeled++

		flagged := domain.Flagged(s.RiskLevel)
		fraud := s.KnownFraud.Value
		switch {
		case flagged && fraud:
			c.TruePositives++
		case flagged && !fraud:
			c.FalsePositives++
		case !flagged && fraud:
			c.FalseNegatives++
		default:
			c.TrueNegatives++
		}
	}
	return c
}

// Evaluate derives precision, recall and F1 from confusion counts.
// Any zero denominator yields 0 rather than NaN, so an empty or
// unlabeled dataset reports all-zero metrics.
func Evaluate(c domain.DetectionCounts) *domain.DetectionReport {
	r := &domain.DetectionReport{DetectionCounts: c}

	if flagged := c.TruePositives + c.FalsePositives; flagged > 0 {
		r.Precision = float64(c.TruePositives) / float64(flagged)
	}
	if actual := c.TruePositives + c.FalseNegatives; actual > 0 {
		r.Recall = float64(c.TruePositives) / float64(actual)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}
