package rules

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

func TestCustomEngineCompile(t *testing.T) {
	c, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	t.Run("ValidRule", func(t *testing.T) {
		err := c.Validate(&domain.CustomRule{
			ID:         "r1",
			Expression: `amount > 1000.0 && tx_type == "withdrawal"`,
		})
		if err != nil {
			t.Errorf("valid rule rejected: %v", err)
		}
	})

	t.Run("SyntaxError", func(t *testing.T) {
		err := c.Validate(&domain.CustomRule{ID: "r2", Expression: `amount >`})
		if err == nil {
			t.Error("malformed expression accepted")
		}
	})

	t.Run("NonBoolOutput", func(t *testing.T) {
		err := c.Validate(&domain.CustomRule{ID: "r3", Expression: `amount * 2.0`})
		if err == nil {
			t.Error("non-boolean expression accepted")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		err := c.Validate(&domain.CustomRule{ID: "r4", Expression: `balance > 0.0`})
		if err == nil {
			t.Error("expression with unknown variable accepted")
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		err := c.Validate(&domain.CustomRule{Expression: `true`})
		if err == nil {
			t.Error("rule without ID accepted")
		}
	})
}

func TestCustomEngineEvaluate(t *testing.T) {
	c, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	rule := &domain.CustomRule{
		ID:         "night-withdrawal",
		Expression: `tx_type == "withdrawal" && hour >= 22`,
		Weight:     0.25,
		Enabled:    true,
	}
	if err := c.Load(rule); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	compiled := c.Enabled()
	if len(compiled) != 1 {
		t.Fatalf("len(Enabled) = %d, want 1", len(compiled))
	}

	hit, err := c.Evaluate(compiled[0], &domain.Transaction{
		ID:            "t1",
		Timestamp:     time.Date(2025, 6, 1, 23, 15, 0, 0, time.UTC),
		AccountNumber: "ACC-1",
		Type:          domain.TypeWithdrawal,
		Amount:        400,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !hit {
		t.Error("late-night withdrawal did not trigger")
	}

	miss, err := c.Evaluate(compiled[0], &domain.Transaction{
		ID:            "t2",
		Timestamp:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		AccountNumber: "ACC-1",
		Type:          domain.TypeWithdrawal,
		Amount:        400,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if miss {
		t.Error("daytime withdrawal triggered")
	}
}

func TestCustomEngineMerchantPresence(t *testing.T) {
	c, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	rule := &domain.CustomRule{
		ID:         "no-merchant-payment",
		Expression: `!merchant_present && tx_type == "payment"`,
		Enabled:    true,
	}
	if err := c.Load(rule); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cr := c.Enabled()[0]

	withMerchant := &domain.Transaction{
		ID: "t1", Timestamp: time.Now().UTC(), AccountNumber: "A",
		Type: domain.TypePayment, Amount: 10,
		MerchantCategory: domain.SomeString("retail"),
	}
	without := &domain.Transaction{
		ID: "t2", Timestamp: time.Now().UTC(), AccountNumber: "A",
		Type: domain.TypePayment, Amount: 10,
	}

	if hit, _ := c.Evaluate(cr, withMerchant); hit {
		t.Error("triggered despite merchant present")
	}
	if hit, _ := c.Evaluate(cr, without); !hit {
		t.Error("did not trigger on absent merchant")
	}
}

func TestCustomEngineReplace(t *testing.T) {
	c, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	if err := c.Load(&domain.CustomRule{ID: "old", Expression: `true`, Enabled: true}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// A failing replacement must leave the previous set active.
	err = c.Replace([]*domain.CustomRule{
		{ID: "new", Expression: `broken ==`, Enabled: true},
	})
	if err == nil {
		t.Fatal("replace with broken rule did not fail")
	}
	if len(c.Enabled()) != 1 || c.Enabled()[0].Rule.ID != "old" {
		t.Error("failed replace mutated the active set")
	}

	// Disabled rules are skipped.
	err = c.Replace([]*domain.CustomRule{
		{ID: "a", Expression: `amount > 10.0`, Enabled: true},
		{ID: "b", Expression: `true`, Enabled: false},
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if len(c.Enabled()) != 1 || c.Enabled()[0].Rule.ID != "a" {
		t.Errorf("unexpected active set after replace: %d rules", len(c.Enabled()))
	}
}

func TestCustomRuleAddsWeight(t *testing.T) {
	e := newTestEngine(t)

	err := e.Custom().Load(&domain.CustomRule{
		ID:         "round-grand",
		Expression: `amount == 2000.0`,
		Weight:     0.2,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	target := quietTx("round", "ACC-R", 2000, base.Add(time.Hour))
	txs := append(background(60, base), target)

	scored, err := e.ScoreAll(context.Background(), txs)
	if err != nil {
		t.Fatalf("ScoreAll failed: %v", err)
	}

	last := scored[len(scored)-1]
	if len(last.CustomTriggered) != 1 || last.CustomTriggered[0] != "round-grand" {
		t.Fatalf("CustomTriggered = %v, want [round-grand]", last.CustomTriggered)
	}
	// 2000 against the background distribution is a high-amount hit
	// (0.6) plus the custom weight.
	if math.Abs(last.RiskScore-0.8) > 1e-9 {
		t.Errorf("score = %f, want 0.8", last.RiskScore)
	}

	first := scored[0]
	if len(first.CustomTriggered) != 0 {
		t.Errorf("background row triggered custom rule: %v", first.CustomTriggered)
	}
}

func TestCustomEngineEnabledOrder(t *testing.T) {
	c, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	rules := []*domain.CustomRule{
		{ID: "charlie", Expression: "amount > 3.0", Weight: 0.1, Enabled: true},
		{ID: "alpha", Expression: "amount > 1.0", Weight: 0.1, Enabled: true},
		{ID: "bravo", Expression: "amount > 2.0", Weight: 0.1, Enabled: true},
	}
	if err := c.Replace(rules); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	// Rerun determinism depends on a stable evaluation order.
	want := []string{"alpha", "bravo", "charlie"}
	for run := 0; run < 5; run++ {
		enabled := c.Enabled()
		if len(enabled) != len(want) {
			t.Fatalf("len(Enabled()) = %d, want %d", len(enabled), len(want))
		}
		for i, cr := range enabled {
			if cr.Rule.ID != want[i] {
				t.Fatalf("Enabled()[%d] = %s, want %s", i, cr.Rule.ID, want[i])
			}
		}
	}
}
