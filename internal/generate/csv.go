package generate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// csvHeader is the on-disk column order. Optional columns hold the
// empty string when absent; that is distinct from any legal value since
// no generated field is empty.
var csvHeader = []string{
	"transaction_id", "timestamp", "account_number", "transaction_type",
	"amount", "merchant_name", "merchant_category", "recipient_account",
	"known_fraud",
}

// WriteCSV writes a batch to path, creating parent directories.
func WriteCSV(path string, txs []*domain.Transaction) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, tx := range txs {
		record := []string{
			tx.ID,
			tx.Timestamp.UTC().Format(time.RFC3339),
			tx.AccountNumber,
			tx.Type,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			optCell(tx.MerchantName),
			optCell(tx.MerchantCategory),
			optCell(tx.RecipientAccount),
			boolCell(tx.KnownFraud),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", tx.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// ReadCSV loads transactions from path. Rows that fail validation are
// skipped, not repaired; the second return value is the rejected-row
// count. A malformed header is an error for the whole file.
func ReadCSV(path string) ([]*domain.Transaction, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, 0, fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], col)
		}
	}

	var txs []*domain.Transaction
	rejected := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Wrong field count or bare quote: drop the row.
			rejected++
			continue
		}

		tx, err := parseRow(record)
		if err != nil {
			rejected++
			continue
		}
		txs = append(txs, tx)
	}
	return txs, rejected, nil
}

func parseRow(record []string) (*domain.Transaction, error) {
	ts, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", record[1], err)
	}

	amount, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", record[4], err)
	}

	tx := &domain.Transaction{
		ID:            record[0],
		Timestamp:     ts.UTC(),
		AccountNumber: record[2],
		Type:          record[3],
		Amount:        amount,
	}

	if record[5] != "" {
		tx.MerchantName = domain.SomeString(record[5])
	}
	if record[6] != "" {
		tx.MerchantCategory = domain.SomeString(record[6])
	}
	if record[7] != "" {
		tx.RecipientAccount = domain.SomeString(record[7])
	}
	if record[8] != "" {
		b, err := strconv.ParseBool(record[8])
		if err != nil {
			return nil, fmt.Errorf("bad known_fraud %q: %w", record[8], err)
		}
		tx.KnownFraud = domain.SomeBool(b)
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
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
