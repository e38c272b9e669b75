package repository

// Schema definitions for the Kestrel analytic store.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    account_number TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    amount REAL NOT NULL,
    merchant_name TEXT,
    merchant_category TEXT,
    recipient_account TEXT,
    known_fraud INTEGER,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_number);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(transaction_type);
`

// risk_scores carries the full scored dataset plus one audit flag per
// built-in rule. Column names are load-bearing; report and chart
// consumers key on them.
const schemaRiskScores = `
CREATE TABLE IF NOT EXISTS risk_scores (
    transaction_id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    account_number TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    amount REAL NOT NULL,
    merchant_name TEXT,
    merchant_category TEXT,
    recipient_account TEXT,
    known_fraud INTEGER,
    high_amount_flag INTEGER NOT NULL DEFAULT 0,
    odd_hours_flag INTEGER NOT NULL DEFAULT 0,
    high_frequency_flag INTEGER NOT NULL DEFAULT 0,
    unusual_merchant_flag INTEGER NOT NULL DEFAULT 0,
    account_velocity_flag INTEGER NOT NULL DEFAULT 0,
    custom_triggered TEXT,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_scores_level ON risk_scores(risk_level);
CREATE INDEX IF NOT EXISTS idx_risk_scores_score ON risk_scores(risk_score);
CREATE INDEX IF NOT EXISTS idx_risk_scores_account ON risk_scores(account_number);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(enabled);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    account_number TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_tx ON alerts(transaction_id);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRiskScores,
		schemaCustomRules,
		schemaAlerts,
	}
}
