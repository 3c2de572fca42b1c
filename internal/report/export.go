// Package report renders validation records for auditors.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// BuildValidationPDF renders a one-document summary of a validation record,
// its matched pairs and its alerts.
func BuildValidationPDF(rec *domain.ValidationRecord, pairs []domain.MatchedPair) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Card Settlement Validation")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, kv := range summary(rec) {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %s", kv[0], kv[1]))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "NSU", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Installment", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Settled", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Expected", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Difference", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, p := range pairs {
		pdf.CellFormat(35, 6, p.NSU, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, p.InstallmentID(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, p.SettlementAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, p.ExpectedAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, p.SettlementAmount.Sub(p.ExpectedAmount).StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(rec.Alerts) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Alerts")
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, a := range rec.Alerts {
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", a.Kind, a.Message), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildValidationXLSX renders the record on a summary sheet, matched pairs on
// a matches sheet and alerts on an alerts sheet.
func BuildValidationXLSX(rec *domain.ValidationRecord, pairs []domain.MatchedPair) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	matchesSheet := "matches"
	alertsSheet := "alerts"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(matchesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(alertsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Card Settlement Validation")
	for i, kv := range summary(rec) {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1])
	}

	for col, h := range []string{"NSU", "Sale", "Installment", "Settlement ID", "Settled", "Expected", "Difference"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(matchesSheet, cell, h)
	}
	for i, p := range pairs {
		row := i + 2
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("A%d", row), p.NSU)
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("B%d", row), p.SaleID)
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("C%d", row), p.InstallmentNumber)
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("D%d", row), p.SettlementID)
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("E%d", row), p.SettlementAmount.InexactFloat64())
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("F%d", row), p.ExpectedAmount.InexactFloat64())
		_ = f.SetCellValue(matchesSheet, fmt.Sprintf("G%d", row), p.SettlementAmount.Sub(p.ExpectedAmount).InexactFloat64())
	}

	for col, h := range []string{"Kind", "NSU", "Sales", "Installments", "Settlements", "Amount", "Message"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(alertsSheet, cell, h)
	}
	for i, a := range rec.Alerts {
		row := i + 2
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("A%d", row), string(a.Kind))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("B%d", row), a.NSU)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("C%d", row), strings.Join(a.SaleIDs, ", "))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("D%d", row), strings.Join(a.InstallmentIDs, ", "))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("E%d", row), strings.Join(a.SettlementIDs, ", "))
		if a.Amount != nil {
			_ = f.SetCellValue(alertsSheet, fmt.Sprintf("F%d", row), a.Amount.InexactFloat64())
		}
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("G%d", row), a.Message)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summary(rec *domain.ValidationRecord) [][2]string {
	rows := [][2]string{
		{"Validation", rec.ID},
		{"Acquirer", rec.AcquirerID},
		{"Bank account", rec.BankAccountID},
		{"Window", rec.Window.From.Format("2006-01-02") + " to " + rec.Window.To.Format("2006-01-02")},
		{"Status", string(rec.Status)},
		{"Confidence", string(rec.Tier)},
		{"Total settlement", rec.TotalSettlement.StringFixed(2)},
		{"Total ledger", rec.TotalLedger.StringFixed(2)},
		{"Divergence", rec.DivergenceAbs.StringFixed(2)},
		{"Divergence %", rec.DivergencePct.StringFixed(4)},
		{"Matched installments", fmt.Sprint(rec.MatchedCount)},
		{"Unmatched NSUs", fmt.Sprint(rec.UnmatchedNSUs)},
		{"Awaiting settlement", fmt.Sprint(rec.AwaitingCount)},
		{"Created", rec.CreatedAt.Format(time.RFC3339)},
	}
	if rec.DecidedAt != nil {
		rows = append(rows, [2]string{"Decided", rec.DecidedAt.Format(time.RFC3339)})
	}
	if rec.Justification != "" {
		rows = append(rows, [2]string{"Justification", rec.Justification})
	}
	if rec.RejectionReason != "" {
		rows = append(rows, [2]string{"Rejection reason", rec.RejectionReason})
	}
	if rec.ProcessedAt != nil {
		rows = append(rows,
			[2]string{"Processed", rec.ProcessedAt.Format(time.RFC3339)},
			[2]string{"Processed amount", rec.ProcessedAmount.StringFixed(2)})
	}
	if rec.ReversedAt != nil {
		rows = append(rows,
			[2]string{"Reversed", rec.ReversedAt.Format(time.RFC3339)},
			[2]string{"Reversal reason", rec.ReversalReason})
	}
	return rows
}
