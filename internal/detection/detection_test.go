package detection

import (
	"math"
	"testing"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

func scoredRow(level domain.RiskLevel, fraud domain.OptBool) *domain.ScoredTransaction {
	return &domain.ScoredTransaction{
		Transaction: domain.Transaction{KnownFraud: fraud},
		RiskLevel:   level,
	}
}

func TestTally(t *testing.T) {
	yes := domain.SomeBool(true)
	no := domain.SomeBool(false)
	unlabeled := domain.OptBool{}

	scored := []*domain.ScoredTransaction{
		scoredRow(domain.LevelVeryHigh, yes), // TP
		scoredRow(domain.LevelHigh, yes),     // TP
		scoredRow(domain.LevelHigh, no),      // FP
		scoredRow(domain.LevelMedium, yes),   // FN: Medium is not flagged
		scoredRow(domain.LevelLow, no),       // TN
		scoredRow(domain.LevelMedium, no),    // TN
		scoredRow(domain.LevelVeryHigh, unlabeled),
		scoredRow(domain.LevelLow, unlabeled),
	}

	c := Tally(scored)
	if c.TruePositives != 2 || c.FalsePositives != 1 {
		t.Errorf("TP = %d FP = %d, want 2 and 1", c.TruePositives, c.FalsePositives)
	}
	if c.FalseNegatives != 1 || c.TrueNegatives != 2 {
		t.Errorf("FN = %d TN = %d, want 1 and 2", c.FalseNegatives, c.TrueNegatives)
	}
	if c.Labeled != 6 {
		t.Errorf("Labeled = %d, want 6 (unlabeled rows excluded)", c.Labeled)
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("TypicalCounts", func(t *testing.T) {
		r := Evaluate(domain.DetectionCounts{
			TruePositives:  2,
			FalsePositives: 1,
			FalseNegatives: 1,
			TrueNegatives:  6,
			Labeled:        10,
		})
		want := 2.0 / 3.0
		if math.Abs(r.Precision-want) > 1e-9 {
			t.Errorf("Precision = %f, want %f", r.Precision, want)
		}
		if math.Abs(r.Recall-want) > 1e-9 {
			t.Errorf("Recall = %f, want %f", r.Recall, want)
		}
		if math.Abs(r.F1-want) > 1e-9 {
			t.Errorf("F1 = %f, want %f", r.F1, want)
		}
	})

	t.Run("NothingFlagged", func(t *testing.T) {
		r := Evaluate(domain.DetectionCounts{FalseNegatives: 3, TrueNegatives: 7, Labeled: 10})
		if r.Precision != 0 || r.F1 != 0 {
			t.Errorf("Precision = %f F1 = %f, want 0", r.Precision, r.F1)
		}
		if r.Recall != 0 {
			t.Errorf("Recall = %f, want 0", r.Recall)
		}
	})

	t.Run("NoActualFraud", func(t *testing.T) {
		r := Evaluate(domain.DetectionCounts{FalsePositives: 2, TrueNegatives: 8, Labeled: 10})
		if r.Recall != 0 || r.Precision != 0 || r.F1 != 0 {
			t.Errorf("metrics = %f/%f/%f, want all 0", r.Precision, r.Recall, r.F1)
		}
	})

	t.Run("EmptyDataset", func(t *testing.T) {
		r := Evaluate(domain.DetectionCounts{})
		if r.Precision != 0 || r.Recall != 0 || r.F1 != 0 {
			t.Error("empty dataset must report all-zero metrics")
		}
		if math.IsNaN(r.Precision) || math.IsNaN(r.Recall) || math.IsNaN(r.F1) {
			t.Error("zero denominators leaked NaN")
		}
	})

	t.Run("PerfectDetection", func(t *testing.T) {
		r := Evaluate(domain.DetectionCounts{TruePositives: 5, TrueNegatives: 95, Labeled: 100})
		if r.Precision != 1 || r.Recall != 1 || r.F1 != 1 {
			t.Errorf("metrics = %f/%f/%f, want all 1", r.Precision, r.Recall, r.F1)
		}
	})
}
