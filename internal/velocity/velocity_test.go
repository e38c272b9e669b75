package velocity

import (
	"fmt"
	"testing"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

func tx(account string, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            fmt.Sprintf("%s-%d", account, ts.UnixNano()),
		Timestamp:     ts,
		AccountNumber: account,
		Type:          domain.TypeWithdrawal,
		Amount:        100,
	}
}

func TestHighFrequencyAccounts(t *testing.T) {
	base := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	t.Run("BurstOfThreeFlags", func(t *testing.T) {
		// Three transactions at t, t+5m, t+9m: both gaps are within
		// the window, so all three participate in close pairs.
		txs := []*domain.Transaction{
			tx("ACC-1", base),
			tx("ACC-1", base.Add(5*time.Minute)),
			tx("ACC-1", base.Add(9*time.Minute)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if !hf["ACC-1"] {
			t.Error("burst of three within window not flagged")
		}
	})

	t.Run("ExactWindowGapNotClose", func(t *testing.T) {
		// Gaps of exactly the window are not close pairs; only a gap
		// strictly below the window counts.
		txs := []*domain.Transaction{
			tx("ACC-8", base),
			tx("ACC-8", base.Add(10*time.Minute)),
			tx("ACC-8", base.Add(20*time.Minute)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if hf["ACC-8"] {
			t.Error("gaps of exactly the window must not flag")
		}
	})

	t.Run("SpreadOutNotFlagged", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("ACC-2", base),
			tx("ACC-2", base.Add(time.Hour)),
			tx("ACC-2", base.Add(2*time.Hour)),
			tx("ACC-2", base.Add(3*time.Hour)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if hf["ACC-2"] {
			t.Error("spread-out activity must not flag")
		}
	})

	t.Run("SinglePairBelowBurst", func(t *testing.T) {
		// One close pair marks two transactions; below a burst of 3.
		txs := []*domain.Transaction{
			tx("ACC-3", base),
			tx("ACC-3", base.Add(2*time.Minute)),
			tx("ACC-3", base.Add(5*time.Hour)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if hf["ACC-3"] {
			t.Error("a single close pair must not flag with minBurst 3")
		}
	})

	t.Run("IsolatedTransactionNeverCounts", func(t *testing.T) {
		txs := []*domain.Transaction{tx("ACC-4", base)}
		hf := HighFrequencyAccounts(txs, window, 1)
		if hf["ACC-4"] {
			t.Error("account with one transaction flagged")
		}
	})

	t.Run("AccountsIndependent", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("ACC-5", base),
			tx("ACC-5", base.Add(time.Minute)),
			tx("ACC-5", base.Add(2*time.Minute)),
			tx("ACC-6", base.Add(90*time.Second)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if !hf["ACC-5"] {
			t.Error("ACC-5 burst not flagged")
		}
		if hf["ACC-6"] {
			t.Error("other account's burst leaked onto ACC-6")
		}
	})

	t.Run("UnorderedInput", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("ACC-7", base.Add(9*time.Minute)),
			tx("ACC-7", base),
			tx("ACC-7", base.Add(5*time.Minute)),
		}
		hf := HighFrequencyAccounts(txs, window, 3)
		if !hf["ACC-7"] {
			t.Error("input order must not matter")
		}
	})
}

func TestDailyBaselines(t *testing.T) {
	day := func(d, hour int) time.Time {
		return time.Date(2025, 6, d, hour, 0, 0, 0, time.UTC)
	}

	t.Run("ElevatedDay", func(t *testing.T) {
		// ACC-1: 2, 2, 2, 10 transactions across four days.
		// Mean 4, sample stddev 4; threshold at 2 sigma is 12, so 10
		// is not elevated. With 1 sigma (threshold 8) it is.
		var txs []*domain.Transaction
		for d := 1; d <= 3; d++ {
			txs = append(txs, tx("ACC-1", day(d, 9)), tx("ACC-1", day(d, 15)))
		}
		for i := 0; i < 10; i++ {
			txs = append(txs, tx("ACC-1", day(4, 8).Add(time.Duration(i)*time.Hour)))
		}

		baselines := DailyBaselines(txs)
		b, ok := baselines["ACC-1"]
		if !ok {
			t.Fatal("no baseline for ACC-1")
		}
		if b.Days != 4 {
			t.Errorf("Days = %d, want 4", b.Days)
		}
		if b.Elevated("2025-06-04", 2) {
			t.Error("day within 2 sigma reported elevated")
		}
		if !b.Elevated("2025-06-04", 1) {
			t.Error("day beyond 1 sigma not reported elevated")
		}
		if b.Elevated("2025-06-01", 1) {
			t.Error("ordinary day reported elevated")
		}
	})

	t.Run("SingleDayNoBaseline", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("ACC-2", day(1, 9)),
			tx("ACC-2", day(1, 10)),
			tx("ACC-2", day(1, 11)),
		}
		baselines := DailyBaselines(txs)
		if baselines["ACC-2"].Elevated("2025-06-01", 2) {
			t.Error("single active day must never report elevated")
		}
	})

	t.Run("SilentDaysIgnored", func(t *testing.T) {
		// Active on days 1 and 20 only; the gap does not zero-pad the
		// baseline.
		txs := []*domain.Transaction{
			tx("ACC-3", day(1, 9)),
			tx("ACC-3", day(20, 9)),
		}
		b := DailyBaselines(txs)["ACC-3"]
		if b.Days != 2 {
			t.Errorf("Days = %d, want 2", b.Days)
		}
		if b.Mean != 1 {
			t.Errorf("Mean = %f, want 1", b.Mean)
		}
	})
}
