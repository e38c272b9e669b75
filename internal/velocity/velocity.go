// Package velocity provides per-account activity analysis: rapid
// transaction bursts within a short window, and daily volumes measured
// against the account's own baseline.
package velocity

import (
	"math"
	"sort"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// HighFrequencyAccounts finds accounts with burst activity. Two
// same-account transactions closer than window form a close pair; an
// account whose transactions participating in close pairs number at
// least minBurst is high-frequency. A transaction with no close
// neighbor never counts, so an isolated transaction on an otherwise
// quiet account cannot trigger this by itself.
func HighFrequencyAccounts(txs []*domain.Transaction, window time.Duration, minBurst int) map[string]bool {
	byAccount := make(map[string][]time.Time)
	for _, tx := range txs {
		byAccount[tx.AccountNumber] = append(byAccount[tx.AccountNumber], tx.Timestamp)
	}

	out := make(map[string]bool)
	for account, times := range byAccount {
		if len(times) < 2 {
			continue
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		// A close pair marks both of its members. The gap must be
		// strictly below the window; exactly-at-window is not close.
		participant := make([]bool, len(times))
		for i := 1; i < len(times); i++ {
			if times[i].Sub(times[i-1]) < window {
				participant[i-1] = true
				participant[i] = true
			}
		}

		count := 0
		for _, p := range participant {
			if p {
				count++
			}
		}
		if count >= minBurst {
			out[account] = true
		}
	}
	return out
}

// DailyBaseline is an account's daily transaction-count distribution,
// computed over its active days only. Days the account was silent do
// not drag the mean down.
type DailyBaseline struct {
	Mean   float64
	Stddev float64
	Days   int

	// Counts maps UTC date (2006-01-02) to that day's transaction count.
	Counts map[string]int
}

// Elevated reports whether a day's count exceeds the account baseline
// by more than mult standard deviations. Accounts active on fewer than
// two days have no usable baseline and never report elevated.
func (b DailyBaseline) Elevated(day string, mult float64) bool {
	if b.Days < 2 {
		return false
	}
	return float64(b.Counts[day]) > b.Mean+mult*b.Stddev
}

// DailyBaselines computes the per-account daily baseline for the whole
// batch. Stddev uses the sample (n-1) denominator.
func DailyBaselines(txs []*domain.Transaction) map[string]DailyBaseline {
	counts := make(map[string]map[string]int)
	for _, tx := range txs {
		days, ok := counts[tx.AccountNumber]
		if !ok {
			days = make(map[string]int)
			counts[tx.AccountNumber] = days
		}
		days[tx.Date()]++
	}

	out := make(map[string]DailyBaseline, len(counts))
	for account, days := range counts {
		b := DailyBaseline{Days: len(days), Counts: days}

		var sum float64
		for _, c := range days {
			sum += float64(c)
		}
		b.Mean = sum / float64(len(days))

		if len(days) >= 2 {
			var sq float64
			for _, c := range days {
				d := float64(c) - b.Mean
				sq += d * d
			}
			b.Stddev = math.Sqrt(sq / float64(len(days)-1))
		}
		out[account] = b
	}
	return out
}
