package domain

import "github.com/shopspring/decimal"

type AlertKind string

const (
	// AlertDuplicateNSU: one NSU is carried by installments of more than one sale.
	AlertDuplicateNSU AlertKind = "duplicate_nsu"
	// AlertOrphanSettlement: money reported with no ledger counterpart.
	AlertOrphanSettlement AlertKind = "orphan_settlement"
	// AlertDuplicateSettlement: the same NSU and installment reported twice in one import.
	AlertDuplicateSettlement AlertKind = "duplicate_settlement"
	// AlertInstallmentClosed: the settlement targets an installment already received or reversed.
	AlertInstallmentClosed AlertKind = "installment_closed"
)

// Alert is a data-quality finding attached to a ValidationRecord. Alerts are
// not errors; they are shown to the operator and drive the confidence tier.
type Alert struct {
	Kind           AlertKind        `json:"kind"`
	NSU            string           `json:"nsu,omitempty"`
	SaleIDs        []string         `json:"sale_ids,omitempty"`
	InstallmentIDs []string         `json:"installment_ids,omitempty"`
	SettlementIDs  []string         `json:"settlement_ids,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Message        string           `json:"message"`
}

// CountAlerts returns how many alerts of the given kind are present.
func CountAlerts(alerts []Alert, kind AlertKind) int {
	n := 0
	for _, a := range alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
