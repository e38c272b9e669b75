// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransactions inserts a batch of validated transactions. Rows whose
// ID is already stored are skipped, so re-loading the same CSV never
// mutates existing rows. Returns the number of rows actually inserted.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			transaction_id, timestamp, account_number, transaction_type,
			amount, merchant_name, merchant_category, recipient_account,
			known_fraud, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return inserted, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		res, err := stmt.ExecContext(ctx,
			tx.ID, tx.Timestamp.UTC(), tx.AccountNumber, tx.Type,
			tx.Amount, optStr(tx.MerchantName), optStr(tx.MerchantCategory),
			optStr(tx.RecipientAccount), optBool(tx.KnownFraud), now,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := r.rebind(`
		SELECT transaction_id, timestamp, account_number, transaction_type,
			   amount, merchant_name, merchant_category, recipient_account,
			   known_fraud
		FROM transactions
		WHERE transaction_id = ?
	`)

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns all stored transactions ordered by timestamp.
func (r *SQLRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, timestamp, account_number, transaction_type,
			   amount, merchant_name, merchant_category, recipient_account,
			   known_fraud
		FROM transactions
		ORDER BY timestamp ASC, transaction_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// CountTransactions returns the total number of stored transactions.
func (r *SQLRepository) CountTransactions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// ReplaceScores drops the previous run's scored rows and writes the new
// set atomically. A failed write leaves the old rows in place.
func (r *SQLRepository) ReplaceScores(ctx context.Context, scored []*domain.ScoredTransaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM risk_scores`); err != nil {
		return fmt.Errorf("failed to clear risk scores: %w", err)
	}

	query := r.rebind(`
		INSERT INTO risk_scores (
			transaction_id, timestamp, account_number, transaction_type,
			amount, merchant_name, merchant_category, recipient_account,
			known_fraud,
			high_amount_flag, odd_hours_flag, high_frequency_flag,
			unusual_merchant_flag, account_velocity_flag,
			custom_triggered, risk_score, risk_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scored {
		var custom any
		if len(s.CustomTriggered) > 0 {
			b, err := json.Marshal(s.CustomTriggered)
			if err != nil {
				return fmt.Errorf("failed to encode custom rule IDs: %w", err)
			}
			custom = string(b)
		}

		_, err := stmt.ExecContext(ctx,
			s.ID, s.Timestamp.UTC(), s.AccountNumber, s.Type,
			s.Amount, optStr(s.MerchantName), optStr(s.MerchantCategory),
			optStr(s.RecipientAccount), optBool(s.KnownFraud),
			boolToInt(s.Flags.HighAmount), boolToInt(s.Flags.OddHours),
			boolToInt(s.Flags.HighFrequency), boolToInt(s.Flags.UnusualMerchant),
			boolToInt(s.Flags.AccountVelocity),
			custom, s.RiskScore, string(s.RiskLevel),
		)
		if err != nil {
			return fmt.Errorf("failed to insert score for %s: %w", s.ID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

const scoredColumns = `
	transaction_id, timestamp, account_number, transaction_type,
	amount, merchant_name, merchant_category, recipient_account,
	known_fraud,
	high_amount_flag, odd_hours_flag, high_frequency_flag,
	unusual_merchant_flag, account_velocity_flag,
	custom_triggered, risk_score, risk_level
`

// GetScored retrieves one scored transaction by ID.
func (r *SQLRepository) GetScored(ctx context.Context, txID string) (*domain.ScoredTransaction, error) {
	query := r.rebind(`SELECT ` + scoredColumns + ` FROM risk_scores WHERE transaction_id = ?`)

	s, err := scanScored(r.db.QueryRowContext(ctx, query, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LevelSummaries aggregates scored transactions by risk level. Every
// level appears in the result, zero-count levels included, ordered from
// Very High down to Low.
func (r *SQLRepository) LevelSummaries(ctx context.Context) ([]domain.LevelSummary, error) {
	query := `
		SELECT risk_level, COUNT(*), AVG(amount), SUM(amount)
		FROM risk_scores
		GROUP BY risk_level
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query level summaries: %w", err)
	}
	defer rows.Close()

	byLevel := make(map[domain.RiskLevel]domain.LevelSummary)
	for rows.Next() {
		var s domain.LevelSummary
		var level string
		if err := rows.Scan(&level, &s.Count, &s.AvgAmount, &s.TotalAmount); err != nil {
			return nil, err
		}
		s.Level = domain.RiskLevel(level)
		byLevel[s.Level] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]domain.LevelSummary, 0, len(domain.Levels()))
	for _, level := range domain.Levels() {
		s, ok := byLevel[level]
		if !ok {
			s = domain.LevelSummary{Level: level}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// TopRisk returns the highest-scored transactions. Ties are broken by
// transaction ID so repeated calls return the same ordering.
func (r *SQLRepository) TopRisk(ctx context.Context, limit int) ([]*domain.ScoredTransaction, error) {
	if limit <= 0 {
		limit = 10
	}

	query := r.rebind(`
		SELECT ` + scoredColumns + `
		FROM risk_scores
		ORDER BY risk_score DESC, transaction_id ASC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top risk: %w", err)
	}
	defer rows.Close()

	var scored []*domain.ScoredTransaction
	for rows.Next() {
		s, err := scanScored(rows)
		if err != nil {
			return nil, err
		}
		scored = append(scored, s)
	}
	return scored, rows.Err()
}

// DetectionCounts computes the confusion breakdown of flagged levels
// against the known_fraud label. Unlabeled rows contribute nothing.
func (r *SQLRepository) DetectionCounts(ctx context.Context) (*domain.DetectionCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN known_fraud = 1 AND risk_level IN ('High', 'Very High') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN known_fraud = 0 AND risk_level IN ('High', 'Very High') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN known_fraud = 1 AND risk_level NOT IN ('High', 'Very High') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN known_fraud = 0 AND risk_level NOT IN ('High', 'Very High') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN known_fraud IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM risk_scores
	`

	var c domain.DetectionCounts
	err := r.db.QueryRowContext(ctx, query).Scan(
		&c.TruePositives, &c.FalsePositives,
		&c.FalseNegatives, &c.TrueNegatives,
		&c.Labeled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection counts: %w", err)
	}
	return &c, nil
}

// SaveCustomRule inserts or updates a custom rule definition.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := r.rebind(`
		INSERT INTO custom_rules (id, name, description, expression, weight, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Weight, boolToInt(rule.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save custom rule: %w", err)
	}
	return nil
}

// GetCustomRule retrieves a custom rule by ID.
func (r *SQLRepository) GetCustomRule(ctx context.Context, ruleID string) (*domain.CustomRule, error) {
	query := r.rebind(`
		SELECT id, name, description, expression, weight, enabled
		FROM custom_rules
		WHERE id = ?
	`)

	var rule domain.CustomRule
	err := r.db.QueryRowContext(ctx, query, ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Weight, &rule.Enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListCustomRules returns all custom rules, enabled or not.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, weight, enabled
		FROM custom_rules
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Weight, &rule.Enabled); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// SaveAlert persists an alert raised for a flagged transaction.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	query := r.rebind(`
		INSERT INTO alerts (id, transaction_id, account_number, risk_score, risk_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.TransactionID, alert.AccountNumber,
		alert.RiskScore, string(alert.RiskLevel), alert.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alerts.
func (r *SQLRepository) ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.rebind(`
		SELECT id, transaction_id, account_number, risk_score, risk_level, created_at
		FROM alerts
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var level string
		if err := rows.Scan(&a.ID, &a.TransactionID, &a.AccountNumber,
			&a.RiskScore, &level, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RiskLevel = domain.RiskLevel(level)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var merchantName, merchantCategory, recipient sql.NullString
	var knownFraud sql.NullBool

	err := row.Scan(
		&tx.ID, &tx.Timestamp, &tx.AccountNumber, &tx.Type,
		&tx.Amount, &merchantName, &merchantCategory, &recipient,
		&knownFraud,
	)
	if err != nil {
		return nil, err
	}

	tx.Timestamp = tx.Timestamp.UTC()
	tx.MerchantName = fromNullString(merchantName)
	tx.MerchantCategory = fromNullString(merchantCategory)
	tx.RecipientAccount = fromNullString(recipient)
	tx.KnownFraud = fromNullBool(knownFraud)
	return &tx, nil
}

func scanScored(row rowScanner) (*domain.ScoredTransaction, error) {
	var s domain.ScoredTransaction
	var merchantName, merchantCategory, recipient, custom sql.NullString
	var knownFraud sql.NullBool
	var level string

	err := row.Scan(
		&s.ID, &s.Timestamp, &s.AccountNumber, &s.Type,
		&s.Amount, &merchantName, &merchantCategory, &recipient,
		&knownFraud,
		&s.Flags.HighAmount, &s.Flags.OddHours, &s.Flags.HighFrequency,
		&s.Flags.UnusualMerchant, &s.Flags.AccountVelocity,
		&custom, &s.RiskScore, &level,
	)
	if err != nil {
		return nil, err
	}

	s.Timestamp = s.Timestamp.UTC()
	s.MerchantName = fromNullString(merchantName)
	s.MerchantCategory = fromNullString(merchantCategory)
	s.RecipientAccount = fromNullString(recipient)
	s.KnownFraud = fromNullBool(knownFraud)
	s.RiskLevel = domain.RiskLevel(level)

	if custom.Valid && custom.String != "" {
		if err := json.Unmarshal([]byte(custom.String), &s.CustomTriggered); err != nil {
			return nil, fmt.Errorf("failed to decode custom rule IDs: %w", err)
		}
	}
	return &s, nil
}

func optStr(o domain.OptString) any {
	if !o.Valid {
		return nil
	}
	return o.Value
}

// Bools are stored as INTEGER 0/1. Postgres rejects bool parameters
// against integer columns, so writes convert explicitly.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optBool(o domain.OptBool) any {
	if !o.Valid {
		return nil
	}
	return boolToInt(o.Value)
}

func fromNullString(n sql.NullString) domain.OptString {
	if !n.Valid {
		return domain.OptString{}
	}
	return domain.SomeString(n.String)
}

func fromNullBool(n sql.NullBool) domain.OptBool {
	if !n.Valid {
		return domain.OptBool{}
	}
	return domain.SomeBool(n.Bool)
}
