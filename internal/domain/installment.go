package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentAwaitingNSU        InstallmentStatus = "awaiting_nsu"
	InstallmentAwaitingSettlement InstallmentStatus = "awaiting_settlement"
	InstallmentReceived           InstallmentStatus = "received"
	InstallmentReversed           InstallmentStatus = "reversed"
)

// IsValid reports whether s is a known lifecycle status.
func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentAwaitingNSU, InstallmentAwaitingSettlement, InstallmentReceived, InstallmentReversed:
		return true
	}
	return false
}

// IsOpen reports whether the installment can still be settled.
func (s InstallmentStatus) IsOpen() bool {
	return s == InstallmentAwaitingNSU || s == InstallmentAwaitingSettlement
}

// LedgerInstallment is one expected receivable tranche of an internal card sale.
type LedgerInstallment struct {
	SaleID            string            `json:"sale_id"`
	InstallmentNumber int               `json:"installment_number"`
	InstallmentTotal  int               `json:"installment_total"`
	ExpectedAmount    decimal.Decimal   `json:"expected_amount"`
	ExpectedDate      time.Time         `json:"expected_date"`
	NSU               string            `json:"nsu,omitempty"`
	AcquirerID        string            `json:"acquirer_id"`
	Status            InstallmentStatus `json:"status"`
	ReceivedAt        *time.Time        `json:"received_at,omitempty"`
	ProcessedBy       string            `json:"processed_by,omitempty"`
}

// ID renders the installment's natural key, e.g. "SALE-42#2".
func (i LedgerInstallment) ID() string {
	return InstallmentID(i.SaleID, i.InstallmentNumber)
}

func InstallmentID(saleID string, number int) string {
	return fmt.Sprintf("%s#%d", saleID, number)
}
