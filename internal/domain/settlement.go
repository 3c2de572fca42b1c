package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementImport is one ingested acquirer statement file.
type StatementImport struct {
	ID               string    `json:"id"`
	AcquirerID       string    `json:"acquirer_id"`
	TemplateID       string    `json:"template_id"`
	TemplateVersion  string    `json:"template_version"`
	FileName         string    `json:"file_name,omitempty"`
	FileHash         string    `json:"file_hash"`
	TransactionCount int       `json:"transaction_count"`
	ImportedAt       time.Time `json:"imported_at"`
}

// SettlementTransaction is one line of an acquirer statement.
type SettlementTransaction struct {
	ID                string          `json:"id"`
	ImportID          string          `json:"import_id"`
	AcquirerID        string          `json:"acquirer_id"`
	NSU               string          `json:"nsu"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	InstallmentNumber int             `json:"installment_number"`
	InstallmentTotal  int             `json:"installment_total"`
	Brand             string          `json:"brand"`
	ExpectedDate      time.Time       `json:"expected_date"`
	// Line is the 1-based position in the source file.
	Line int `json:"line"`
}

// Key returns the matching key of the line.
func (t SettlementTransaction) Key() MatchKey {
	return MatchKey{NSU: t.NSU, Installment: t.InstallmentNumber}
}

// MatchKey joins a settlement line to a ledger installment. All installments of
// one card sale share the sale's NSU, so the installment number is part of it.
type MatchKey struct {
	NSU         string
	Installment int
}
