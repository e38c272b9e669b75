// Package stats derives dataset-wide statistical context from a batch
// of transactions. All statistics are computed over the full dataset in
// one pass before any row is scored, so scoring a row never changes the
// context another row sees.
package stats

import (
	"math"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// AmountStats is the per-transaction-type amount distribution.
type AmountStats struct {
	Mean   float64
	Stddev float64
	Count  int
}

// Threshold returns mean + mult*stddev. Only meaningful when the group
// has at least two samples; callers must check Usable first.
func (s AmountStats) Threshold(mult float64) float64 {
	return s.Mean + mult*s.Stddev
}

// Usable reports whether the group has enough samples for a stddev
// threshold to mean anything. Groups of one never flag.
func (s AmountStats) Usable() bool {
	return s.Count >= 2
}

// BuildAmountStats computes per-type amount mean and sample standard
// deviation (n-1 denominator) over the whole batch.
func BuildAmountStats(txs []*domain.Transaction) map[string]AmountStats {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, tx := range txs {
		sums[tx.Type] += tx.Amount
		counts[tx.Type]++
	}

	means := make(map[string]float64, len(sums))
	for typ, sum := range sums {
		means[typ] = sum / float64(counts[typ])
	}

	sqDiffs := make(map[string]float64)
	for _, tx := range txs {
		d := tx.Amount - means[tx.Type]
		sqDiffs[tx.Type] += d * d
	}

	out := make(map[string]AmountStats, len(sums))
	for typ, count := range counts {
		s := AmountStats{Mean: means[typ], Count: count}
		if count >= 2 {
			s.Stddev = math.Sqrt(sqDiffs[typ] / float64(count-1))
		}
		out[typ] = s
	}
	return out
}

// BuildCategorySupport counts dataset-wide occurrences of each merchant
// category. Rows without a category contribute nothing.
func BuildCategorySupport(txs []*domain.Transaction) map[string]int {
	support := make(map[string]int)
	for _, tx := range txs {
		if tx.MerchantCategory.Valid {
			support[tx.MerchantCategory.Value]++
		}
	}
	return support
}
