package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Acquirer is a card-payment processor sending settlement statements. Money it
// settles lands in exactly one bank account.
type Acquirer struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	BankAccountID string `json:"bank_account_id" yaml:"bank_account_id"`
}

type BankAccount struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type MovementKind string

const (
	MovementCredit MovementKind = "credit"
	MovementDebit  MovementKind = "debit"
)

// BankMovement is the audit row of every balance change made by the engine.
type BankMovement struct {
	ID            string          `json:"id"`
	BankAccountID string          `json:"bank_account_id"`
	ValidationID  string          `json:"validation_id"`
	Kind          MovementKind    `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}
