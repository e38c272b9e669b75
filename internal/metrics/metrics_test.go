package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.RecordScore(0.9)
	c.RecordScore(0.0)
	c.RecordRejected(3)
	c.RecordAlert()
	c.RecordStep("score", 120*time.Millisecond)
	c.RecordRun(true)
	c.RecordRun(false)
	c.SetLevelCount("Very High", 2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		"kestrel_transactions_scored_total 2",
		"kestrel_records_rejected_total 3",
		"kestrel_alerts_total 1",
		"kestrel_runs_completed_total 1",
		"kestrel_runs_failed_total 1",
		`kestrel_step_duration_seconds_count{step="score"} 1`,
		`kestrel_risk_level_transactions{level="Very High"} 2`,
		"kestrel_risk_score_distribution_count 2",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two collectors must not collide on metric registration.
	a := NewCollector()
	b := NewCollector()
	a.RecordScore(1.0)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "kestrel_transactions_scored_total 1") {
		t.Error("collectors share state")
	}
}
