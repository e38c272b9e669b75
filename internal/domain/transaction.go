package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transaction types commonly produced by the feed. The engine treats the
// type as an open categorical; these constants only name the usual set.
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypeTransfer   = "transfer"
	TypePayment    = "payment"
	TypeRefund     = "refund"
)

// MerchantSentinel is the category value that always counts as unusual.
const MerchantSentinel = "suspicious"

// Transaction is an immutable input record for a single pipeline run.
type Transaction struct {
	ID            string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
	AccountNumber string    `json:"account_number"`
	Type          string    `json:"transaction_type"`
	Amount        float64   `json:"amount"`

	// Present only for merchant-facing types (payment, refund).
	MerchantName     OptString `json:"merchant_name,omitempty"`
	MerchantCategory OptString `json:"merchant_category,omitempty"`

	// Present only for transfers.
	RecipientAccount OptString `json:"recipient_account,omitempty"`

	// Ground-truth label used for detection metrics only. The rule
	// engine never reads it.
	KnownFraud OptBool `json:"known_fraud,omitempty"`
}

// Validate checks the required fields of an input record. Optional fields
// are never coerced; a record missing a required field is rejected whole.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidRecord)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required (transaction %s)", ErrInvalidRecord, t.ID)
	}
	if t.AccountNumber == "" {
		return fmt.Errorf("%w: account_number is required (transaction %s)", ErrInvalidRecord, t.ID)
	}
	if t.Type == "" {
		return fmt.Errorf("%w: transaction_type is required (transaction %s)", ErrInvalidRecord, t.ID)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative (transaction %s)", ErrInvalidRecord, t.ID)
	}
	return nil
}

// Date returns the UTC calendar date of the transaction, used as the
// grouping key for the daily-velocity baseline.
func (t *Transaction) Date() string {
	return t.Timestamp.UTC().Format("2006-01-02")
}

// OptString is a string field that is explicitly present or absent.
// Absent values marshal as JSON null so every rule's null-handling is a
// visible branch rather than an empty-string fallthrough.
type OptString struct {
	Value string
	Valid bool
}

// SomeString returns a present OptString.
func SomeString(s string) OptString {
	return OptString{Value: s, Valid: true}
}

func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = SomeString(s)
	return nil
}

// OptBool is a bool field that is explicitly present or absent.
type OptBool struct {
	Value bool
	Valid bool
}

// SomeBool returns a present OptBool.
func SomeBool(b bool) OptBool {
	return OptBool{Value: b, Valid: true}
}

func (o OptBool) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptBool) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptBool{}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*o = SomeBool(b)
	return nil
}
