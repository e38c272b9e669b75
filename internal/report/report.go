// Package report renders pipeline output for humans and downstream
// tools: a CSV export of the scored dataset and a markdown summary.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// exportHeader mirrors the risk_scores table column order. Downstream
// chart tooling keys on these names.
var exportHeader = []string{
	"transaction_id", "timestamp", "account_number", "transaction_type",
	"amount", "merchant_name", "merchant_category", "recipient_account",
	"known_fraud",
	"high_amount_flag", "odd_hours_flag", "high_frequency_flag",
	"unusual_merchant_flag", "account_velocity_flag",
	"risk_score", "risk_level",
}

// ExportCSV writes the scored dataset to path ordered by risk score
// descending, transaction ID ascending on ties.
func ExportCSV(path string, scored []*domain.ScoredTransaction) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	ordered := make([]*domain.ScoredTransaction, len(scored))
	copy(ordered, scored)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].RiskScore != ordered[j].RiskScore {
			return ordered[i].RiskScore > ordered[j].RiskScore
		}
		return ordered[i].ID < ordered[j].ID
	})

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, s := range ordered {
		record := []string{
			s.ID,
			s.Timestamp.UTC().Format(time.RFC3339),
			s.AccountNumber,
			s.Type,
			strconv.FormatFloat(s.Amount, 'f', 2, 64),
			optCell(s.MerchantName),
			optCell(s.MerchantCategory),
			optCell(s.RecipientAccount),
			boolCell(s.KnownFraud),
			flagCell(s.Flags.HighAmount),
			flagCell(s.Flags.OddHours),
			flagCell(s.Flags.HighFrequency),
			flagCell(s.Flags.UnusualMerchant),
			flagCell(s.Flags.AccountVelocity),
			strconv.FormatFloat(s.RiskScore, 'f', -1, 64),
			string(s.RiskLevel),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", s.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

// Data is everything a rendered report needs, gathered by the pipeline.
type Data struct {
	GeneratedAt time.Time
	Total       int64
	Summaries   []domain.LevelSummary
	Top         []*domain.ScoredTransaction
	Detection   *domain.DetectionReport
	Rules       []domain.RiskRule
}

// WriteMarkdown renders the risk report into dir and returns the file
// path.
func WriteMarkdown(dir string, data *Data) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, "risk_report.md")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("# Fraud Risk Assessment Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", data.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Transactions analyzed: %d\n\n", data.Total)

	b.WriteString("## Risk Level Summary\n\n")
	b.WriteString("| Risk Level | Transactions | Avg Amount | Total Amount |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, s := range data.Summaries {
		fmt.Fprintf(&b, "| %s | %d | %.2f | %.2f |\n", s.Level, s.Count, s.AvgAmount, s.TotalAmount)
	}
	b.WriteString("\n")

	b.WriteString("## Highest Risk Transactions\n\n")
	if len(data.Top) == 0 {
		b.WriteString("None.\n\n")
	} else {
		b.WriteString("| Transaction | Account | Type | Amount | Score | Level |\n")
		b.WriteString("|---|---|---|---:|---:|---|\n")
		for _, s := range data.Top {
			fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %.2f | %s |\n",
				s.ID, s.AccountNumber, s.Type, s.Amount, s.RiskScore, s.RiskLevel)
		}
		b.WriteString("\n")
	}

	if data.Detection != nil {
		d := data.Detection
		b.WriteString("## Detection Quality\n\n")
		fmt.Fprintf(&b, "Labeled rows: %d\n\n", d.Labeled)
		b.WriteString("| Metric | Value |\n|---|---:|\n")
		fmt.Fprintf(&b, "| True positives | %d |\n", d.TruePositives)
		fmt.Fprintf(&b, "| False positives | %d |\n", d.FalsePositives)
		fmt.Fprintf(&b, "| False negatives | %d |\n", d.FalseNegatives)
		fmt.Fprintf(&b, "| True negatives | %d |\n", d.TrueNegatives)
		fmt.Fprintf(&b, "| Precision | %.3f |\n", d.Precision)
		fmt.Fprintf(&b, "| Recall | %.3f |\n", d.Recall)
		fmt.Fprintf(&b, "| F1 | %.3f |\n", d.F1)
		b.WriteString("\n")
	}

	if len(data.Rules) > 0 {
		b.WriteString("## Rules Applied\n\n")
		b.WriteString("| Rule | Description | Weight |\n|---|---|---:|\n")
		for _, r := range data.Rules {
			fmt.Fprintf(&b, "| %s | %s | %.1f |\n", r.Name, r.Description, r.Weight)
		}
		b.WriteString("\n")
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func optCell(o domain.OptString) string {
	if !o.Valid {
		return ""
	}
	return o.Value
}

func boolCell(o domain.OptBool) string {
	if !o.Valid {
		return ""
	}
	return strconv.FormatBool(o.Value)
}

func flagCell(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
