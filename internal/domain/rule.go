package domain

// Built-in rule identifiers. These match the rule_id column of the
// risk_rules table and the *_flag columns of risk_scores.
const (
	RuleHighAmount      = 1
	RuleOddHours        = 2
	RuleHighFrequency   = 3
	RuleUnusualMerchant = 4
	RuleAccountVelocity = 5
)

// RiskRule is a static rule definition: a name, a description, and the
// weight added to the risk score when the rule triggers.
type RiskRule struct {
	ID          int     `json:"rule_id"`
	Name        string  `json:"rule_name"`
	Description string  `json:"rule_description"`
	Weight      float64 `json:"risk_weight"`
}

// DefaultRules returns the five built-in rules with their default weights.
func DefaultRules() []RiskRule {
	return []RiskRule{
		{ID: RuleHighAmount, Name: "high_amount", Description: "Unusually high transaction amount", Weight: 0.6},
		{ID: RuleOddHours, Name: "odd_hours", Description: "Transaction during unusual hours (1AM-5AM)", Weight: 0.4},
		{ID: RuleHighFrequency, Name: "high_frequency", Description: "Multiple transactions in short time period", Weight: 0.5},
		{ID: RuleUnusualMerchant, Name: "unusual_merchant", Description: "Transaction with unusual merchant category", Weight: 0.3},
		{ID: RuleAccountVelocity, Name: "account_velocity", Description: "Sudden increase in account activity", Weight: 0.4},
	}
}

// CustomRule is an operator-defined rule evaluated as a CEL expression
// over per-transaction variables. When the expression evaluates to true
// the rule's weight is added to the risk score on top of the built-ins.
type CustomRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// RuleFlags records which built-in rules triggered for a transaction.
// Field tags match the risk_scores audit columns verbatim; downstream
// chart and report consumers key on these names.
type RuleFlags struct {
	HighAmount      bool `json:"high_amount_flag"`
	OddHours        bool `json:"odd_hours_flag"`
	HighFrequency   bool `json:"high_frequency_flag"`
	UnusualMerchant bool `json:"unusual_merchant_flag"`
	AccountVelocity bool `json:"account_velocity_flag"`
}
