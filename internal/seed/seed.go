// Package seed loads reference data (bank accounts, acquirers and the ledger
// installments of internal card sales) into an empty database.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
)

// Dataset is the on-disk seed format.
type Dataset struct {
	BankAccounts []domain.BankAccount `json:"bank_accounts"`
	Acquirers    []domain.Acquirer    `json:"acquirers"`
	Installments []Installment        `json:"installments"`
}

// Installment is a ledger installment with a plain "2006-01-02" date.
type Installment struct {
	SaleID            string          `json:"sale_id"`
	InstallmentNumber int             `json:"installment_number"`
	InstallmentTotal  int             `json:"installment_total"`
	ExpectedAmount    decimal.Decimal `json:"expected_amount"`
	ExpectedDate      string          `json:"expected_date"`
	NSU               string          `json:"nsu,omitempty"`
	AcquirerID        string          `json:"acquirer_id"`
}

func (i Installment) ledger() (domain.LedgerInstallment, error) {
	d, err := time.Parse("2006-01-02", i.ExpectedDate)
	if err != nil {
		return domain.LedgerInstallment{}, fmt.Errorf("installment %s: expected_date: %w",
			domain.InstallmentID(i.SaleID, i.InstallmentNumber), err)
	}
	return domain.LedgerInstallment{
		SaleID:            i.SaleID,
		InstallmentNumber: i.InstallmentNumber,
		InstallmentTotal:  i.InstallmentTotal,
		ExpectedAmount:    i.ExpectedAmount,
		ExpectedDate:      d,
		NSU:               i.NSU,
		AcquirerID:        i.AcquirerID,
	}, nil
}

// Load reads a JSON dataset.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal seed: %w", err)
	}
	return &ds, nil
}

// Summary counts what Apply wrote.
type Summary struct {
	BankAccounts int `json:"bank_accounts"`
	Acquirers    int `json:"acquirers"`
	Installments int `json:"installments"`
}

// Apply upserts the dataset. Existing balances and the status of installments
// already received or reversed are left alone.
func Apply(ctx context.Context, accounts *repository.AccountRepo, installments *repository.InstallmentRepo, ds *Dataset) (Summary, error) {
	var sum Summary
	for _, a := range ds.BankAccounts {
		if err := accounts.UpsertBankAccount(ctx, a); err != nil {
			return sum, err
		}
		sum.BankAccounts++
	}
	for _, a := range ds.Acquirers {
		if err := accounts.UpsertAcquirer(ctx, a); err != nil {
			return sum, err
		}
		sum.Acquirers++
	}

	items := make([]domain.LedgerInstallment, 0, len(ds.Installments))
	for _, i := range ds.Installments {
		li, err := i.ledger()
		if err != nil {
			return sum, err
		}
		items = append(items, li)
	}
	if len(items) > 0 {
		n, err := installments.BulkUpsert(ctx, items)
		if err != nil {
			return sum, err
		}
		sum.Installments = n
	}
	return sum, nil
}
