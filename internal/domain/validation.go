package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

type ValidationStatus string

const (
	ValidationPendingReview ValidationStatus = "pending_review"
	ValidationApproved      ValidationStatus = "approved"
	ValidationDivergent     ValidationStatus = "divergent"
	ValidationProcessed     ValidationStatus = "processed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ValidationStatus) IsTerminal() bool {
	return s == ValidationProcessed || s == ValidationDivergent
}

// Window is an inclusive range of calendar days.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewWindow truncates both ends to UTC days.
func NewWindow(from, to time.Time) Window {
	return Window{From: day(from), To: day(to)}
}

// Contains reports whether t falls on a day within the window.
func (w Window) Contains(t time.Time) bool {
	d := day(t)
	return !d.Before(w.From) && !d.After(w.To)
}

// End returns the first instant after the window.
func (w Window) End() time.Time {
	return w.To.AddDate(0, 0, 1)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MatchedPair links one settlement line to one ledger installment.
type MatchedPair struct {
	ValidationID      string          `json:"validation_id,omitempty"`
	SettlementID      string          `json:"settlement_id"`
	NSU               string          `json:"nsu"`
	SaleID            string          `json:"sale_id"`
	InstallmentNumber int             `json:"installment_number"`
	SettlementAmount  decimal.Decimal `json:"settlement_amount"`
	ExpectedAmount    decimal.Decimal `json:"expected_amount"`
}

// InstallmentID returns the natural key of the matched installment.
func (p MatchedPair) InstallmentID() string {
	return InstallmentID(p.SaleID, p.InstallmentNumber)
}

// ValidationRecord is the auditable outcome of one match-and-score run.
type ValidationRecord struct {
	ID              string           `json:"id"`
	AcquirerID      string           `json:"acquirer_id"`
	BankAccountID   string           `json:"bank_account_id"`
	Window          Window           `json:"window"`
	TotalSettlement decimal.Decimal  `json:"total_settlement"`
	TotalLedger     decimal.Decimal  `json:"total_ledger"`
	DivergenceAbs   decimal.Decimal  `json:"divergence_abs"`
	DivergencePct   decimal.Decimal  `json:"divergence_pct"`
	Tier            Tier             `json:"tier"`
	MatchedCount    int              `json:"matched_count"`
	UnmatchedNSUs   int              `json:"unmatched_nsu_count"`
	AwaitingCount   int              `json:"awaiting_count"`
	Status          ValidationStatus `json:"status"`
	Alerts          []Alert          `json:"alerts"`
	CreatedAt       time.Time        `json:"created_at"`
	Confirmed       bool             `json:"confirmed"`
	Justification   string           `json:"justification,omitempty"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	ProcessedAmount decimal.Decimal  `json:"processed_amount"`
	ReversedAt      *time.Time       `json:"reversed_at,omitempty"`
	ReversalReason  string           `json:"reversal_reason,omitempty"`
}

// Reversed reports whether the processing run of the record was undone.
func (v *ValidationRecord) Reversed() bool {
	return v.ReversedAt != nil
}

// Decision carries the human input that authorizes processing.
type Decision struct {
	Confirmed     bool   `json:"confirmed"`
	Justification string `json:"justification"`
}

// HasJustification reports whether a non-blank justification was given.
func (d Decision) HasJustification() bool {
	return strings.TrimSpace(d.Justification) != ""
}

// ProcessingResult is returned by a successful process call.
type ProcessingResult struct {
	ValidationID   string          `json:"validation_id"`
	ProcessedCount int             `json:"processed_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ProcessedAt    time.Time       `json:"processed_at"`
	Confirmed      bool            `json:"confirmed"`
	Justification  string          `json:"justification,omitempty"`
}

// ReversalResult is returned by a successful revert call.
type ReversalResult struct {
	ValidationID  string          `json:"validation_id"`
	RevertedCount int             `json:"reverted_count"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	ReversedAt    time.Time       `json:"reversed_at"`
}
