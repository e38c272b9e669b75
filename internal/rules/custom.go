package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openrisk-labs/kestrel/internal/domain"
)

// CustomEngine compiles and evaluates operator-defined CEL rules. A
// rule is a boolean expression over per-transaction variables; when it
// evaluates true its weight is added on top of the built-in score.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program with its definition.
type CompiledRule struct {
	Rule    *domain.CustomRule
	Program cel.Program
}

// NewCustomEngine creates the CEL environment with the transaction
// variables custom rules can reference.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("account_number", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("merchant_present", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// Validate compiles an expression without loading it. Rejects
// expressions that do not produce a boolean.
func (c *CustomEngine) Validate(rule *domain.CustomRule) error {
	_, err := c.compile(rule)
	return err
}

// Load compiles a rule and makes it active for subsequent scoring runs.
func (c *CustomEngine) Load(rule *domain.CustomRule) error {
	compiled, err := c.compile(rule)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiled[rule.ID] = compiled
	return nil
}

// Replace swaps the full rule set atomically. Disabled rules are
// skipped; a compile failure leaves the previous set active.
func (c *CustomEngine) Replace(rules []*domain.CustomRule) error {
	next := make(map[string]*CompiledRule, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := c.compile(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiled = next
	return nil
}

// Enabled returns the currently loaded rules ordered by rule ID, so
// scoring runs evaluate and record them in a stable order.
func (c *CustomEngine) Enabled() []*CompiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*CompiledRule, 0, len(c.compiled))
	for _, cr := range c.compiled {
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rule.ID < out[j].Rule.ID })
	return out
}

// Evaluate runs one compiled rule against a transaction. An absent
// merchant category appears as the empty string with merchant_present
// false, so expressions can distinguish absent from empty.
func (c *CustomEngine) Evaluate(cr *CompiledRule, tx *domain.Transaction) (bool, error) {
	activation := map[string]any{
		"amount":            tx.Amount,
		"tx_type":           tx.Type,
		"hour":              int64(tx.Timestamp.UTC().Hour()),
		"account_number":    tx.AccountNumber,
		"merchant_category": tx.MerchantCategory.Value,
		"merchant_present":  tx.MerchantCategory.Valid,
	}

	out, _, err := cr.Program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return bool(b), nil
}

func (c *CustomEngine) compile(rule *domain.CustomRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}
	if rule.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", rule.ID)
	}

	ast, issues := c.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}
