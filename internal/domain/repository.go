package domain

import (
	"context"
	"time"
)

// Repository is the analytic store: raw transactions in, scored rows and
// summaries out. Scored rows follow drop-and-rebuild semantics; there is
// no incremental update path.
type Repository interface {
	// Transaction operations. SaveTransactions inserts a batch and
	// skips duplicates of already-stored IDs (first write wins); it
	// returns the number of rows actually inserted.
	SaveTransactions(ctx context.Context, txs []*Transaction) (int, error)
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context) ([]*Transaction, error)
	CountTransactions(ctx context.Context) (int64, error)

	// Scored rows. ReplaceScores clears the previous run's rows and
	// writes the new set in a single transaction.
	ReplaceScores(ctx context.Context, scored []*ScoredTransaction) error
	GetScored(ctx context.Context, txID string) (*ScoredTransaction, error)

	// Summary queries over risk_scores.
	LevelSummaries(ctx context.Context) ([]LevelSummary, error)
	TopRisk(ctx context.Context, limit int) ([]*ScoredTransaction, error)
	DetectionCounts(ctx context.Context) (*DetectionCounts, error)

	// Custom rule configuration.
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	GetCustomRule(ctx context.Context, ruleID string) (*CustomRule, error)
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)

	// Alerts raised for flagged transactions.
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, limit int) ([]*Alert, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
