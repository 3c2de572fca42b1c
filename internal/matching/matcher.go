// Package matching pairs acquirer settlement lines with ledger installments.
// It is a pure computation over two read-only sets and never mutates either.
package matching

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// Result partitions one matching run.
type Result struct {
	// Pairs are settlement lines joined to an open installment.
	Pairs []domain.MatchedPair
	// Orphans are settlement lines with no ledger counterpart: money received
	// without an internal record.
	Orphans []domain.SettlementTransaction
	// Awaiting are open installments nobody paid yet. Not an error.
	Awaiting []domain.LedgerInstallment
	// Conflicted are settlement lines whose NSU collides across sales; they
	// are held out of matching and of the totals.
	Conflicted []domain.SettlementTransaction
	// Closed are settlement lines pointing at an installment that was already
	// received or reversed.
	Closed []domain.SettlementTransaction
	Alerts []domain.Alert
}

// DuplicateNSUCount returns the number of duplicate_nsu alerts.
func (r Result) DuplicateNSUCount() int {
	return domain.CountAlerts(r.Alerts, domain.AlertDuplicateNSU)
}

// Match runs the matching algorithm. settlements must be ordered by import,
// oldest first: a line from a later import supersedes the line with the same
// NSU and installment from an earlier one.
func Match(settlements []domain.SettlementTransaction, installments []domain.LedgerInstallment) Result {
	var res Result

	lines, duplicates := dedupe(settlements)

	// NSU collisions across sales.
	salesByNSU := make(map[string]map[string]struct{})
	for _, inst := range installments {
		if inst.NSU == "" {
			continue
		}
		if salesByNSU[inst.NSU] == nil {
			salesByNSU[inst.NSU] = make(map[string]struct{})
		}
		salesByNSU[inst.NSU][inst.SaleID] = struct{}{}
	}
	collisions := make(map[string]*domain.Alert)
	for nsu, sales := range salesByNSU {
		if len(sales) < 2 {
			continue
		}
		collisions[nsu] = &domain.Alert{
			Kind:    domain.AlertDuplicateNSU,
			NSU:     nsu,
			SaleIDs: sortedKeys(sales),
			Message: fmt.Sprintf("NSU %s is linked to %d different sales", nsu, len(sales)),
		}
	}

	byKey := make(map[domain.MatchKey]domain.LedgerInstallment)
	for _, inst := range installments {
		if inst.NSU == "" {
			continue
		}
		if a, ok := collisions[inst.NSU]; ok {
			a.InstallmentIDs = append(a.InstallmentIDs, inst.ID())
			continue
		}
		byKey[domain.MatchKey{NSU: inst.NSU, Installment: inst.InstallmentNumber}] = inst
	}

	matched := make(map[string]struct{})
	for _, s := range lines {
		if a, ok := collisions[s.NSU]; ok {
			a.SettlementIDs = append(a.SettlementIDs, s.ID)
			res.Conflicted = append(res.Conflicted, s)
			continue
		}
		inst, ok := byKey[s.Key()]
		if !ok {
			res.Orphans = append(res.Orphans, s)
			res.Alerts = append(res.Alerts, orphanAlert(s))
			continue
		}
		if !inst.Status.IsOpen() {
			res.Closed = append(res.Closed, s)
			amount := s.GrossAmount
			res.Alerts = append(res.Alerts, domain.Alert{
				Kind:           domain.AlertInstallmentClosed,
				NSU:            s.NSU,
				SaleIDs:        []string{inst.SaleID},
				InstallmentIDs: []string{inst.ID()},
				SettlementIDs:  []string{s.ID},
				Amount:         &amount,
				Message:        fmt.Sprintf("installment %s is already %s", inst.ID(), inst.Status),
			})
			continue
		}
		matched[inst.ID()] = struct{}{}
		res.Pairs = append(res.Pairs, domain.MatchedPair{
			SettlementID:      s.ID,
			NSU:               s.NSU,
			SaleID:            inst.SaleID,
			InstallmentNumber: inst.InstallmentNumber,
			SettlementAmount:  s.GrossAmount,
			ExpectedAmount:    inst.ExpectedAmount,
		})
	}

	for _, s := range duplicates {
		amount := s.GrossAmount
		res.Orphans = append(res.Orphans, s)
		res.Alerts = append(res.Alerts, domain.Alert{
			Kind:          domain.AlertDuplicateSettlement,
			NSU:           s.NSU,
			SettlementIDs: []string{s.ID},
			Amount:        &amount,
			Message: fmt.Sprintf("NSU %s installment %d reported more than once in import %s",
				s.NSU, s.InstallmentNumber, s.ImportID),
		})
	}

	for _, inst := range installments {
		if !inst.Status.IsOpen() {
			continue
		}
		if _, ok := collisions[inst.NSU]; ok && inst.NSU != "" {
			continue
		}
		if _, ok := matched[inst.ID()]; ok {
			continue
		}
		res.Awaiting = append(res.Awaiting, inst)
	}

	for _, a := range collisions {
		sort.Strings(a.InstallmentIDs)
		sort.Strings(a.SettlementIDs)
		res.Alerts = append(res.Alerts, *a)
	}

	sortResult(&res)
	return res
}

// dedupe keeps the most recent line per key. A repeated key inside a single
// import is not a supersede: the extra lines are returned separately.
func dedupe(settlements []domain.SettlementTransaction) (kept, duplicates []domain.SettlementTransaction) {
	pos := make(map[domain.MatchKey]int)
	for _, s := range settlements {
		k := s.Key()
		i, seen := pos[k]
		if !seen {
			pos[k] = len(kept)
			kept = append(kept, s)
			continue
		}
		if kept[i].ImportID == s.ImportID {
			duplicates = append(duplicates, s)
			continue
		}
		kept[i] = s
	}
	return kept, duplicates
}

func orphanAlert(s domain.SettlementTransaction) domain.Alert {
	amount := s.GrossAmount
	return domain.Alert{
		Kind:          domain.AlertOrphanSettlement,
		NSU:           s.NSU,
		SettlementIDs: []string{s.ID},
		Amount:        &amount,
		Message: fmt.Sprintf("settlement NSU %s installment %d (%s) has no ledger installment",
			s.NSU, s.InstallmentNumber, s.GrossAmount.StringFixed(2)),
	}
}

func sortResult(r *Result) {
	sort.SliceStable(r.Pairs, func(i, j int) bool {
		if r.Pairs[i].NSU != r.Pairs[j].NSU {
			return r.Pairs[i].NSU < r.Pairs[j].NSU
		}
		return r.Pairs[i].InstallmentNumber < r.Pairs[j].InstallmentNumber
	})
	for _, lines := range [][]domain.SettlementTransaction{r.Orphans, r.Conflicted, r.Closed} {
		sortLines(lines)
	}
	sort.SliceStable(r.Awaiting, func(i, j int) bool {
		a, b := r.Awaiting[i], r.Awaiting[j]
		if !a.ExpectedDate.Equal(b.ExpectedDate) {
			return a.ExpectedDate.Before(b.ExpectedDate)
		}
		if a.SaleID != b.SaleID {
			return a.SaleID < b.SaleID
		}
		return a.InstallmentNumber < b.InstallmentNumber
	})
	sort.SliceStable(r.Alerts, func(i, j int) bool {
		if r.Alerts[i].Kind != r.Alerts[j].Kind {
			return r.Alerts[i].Kind < r.Alerts[j].Kind
		}
		return r.Alerts[i].NSU < r.Alerts[j].NSU
	})
}

func sortLines(lines []domain.SettlementTransaction) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].NSU != lines[j].NSU {
			return lines[i].NSU < lines[j].NSU
		}
		if lines[i].InstallmentNumber != lines[j].InstallmentNumber {
			return lines[i].InstallmentNumber < lines[j].InstallmentNumber
		}
		return lines[i].ID < lines[j].ID
	})
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettlementTotal sums the matched settlement amounts and the orphans.
func (r Result) SettlementTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Pairs {
		total = total.Add(p.SettlementAmount)
	}
	for _, o := range r.Orphans {
		total = total.Add(o.GrossAmount)
	}
	return domain.Cents(total)
}

// LedgerTotal sums the expected amounts of matched installments.
func (r Result) LedgerTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Pairs {
		total = total.Add(p.ExpectedAmount)
	}
	return domain.Cents(total)
}
