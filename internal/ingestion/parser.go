package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// ParsedLine is one statement row mapped through a template. IDs and the
// owning import are assigned by the service.
type ParsedLine struct {
	NSU               string
	GrossAmount       decimal.Decimal
	InstallmentNumber int
	InstallmentTotal  int
	Brand             string
	ExpectedDate      time.Time
	Line              int
}

// record is one raw row with its 1-based position in the source file.
type record struct {
	line  int
	cells []string
}

// Parse dispatches on the template format.
func Parse(t Template, data []byte) ([]ParsedLine, error) {
	var rows []record
	var err error
	switch t.Format {
	case FormatXLSX:
		rows, err = readXLSX(t, data)
	default:
		rows, err = readCSV(t, data)
	}
	if err != nil {
		return nil, err
	}
	return mapRows(t, rows)
}

// columnIndex resolves the header positions of every mapped column.
type columnIndex struct {
	nsu, amount, installment, installmentTotal, brand, date int
}

func resolveHeader(t Template, header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	var missing []string
	find := func(name string) int {
		if name == "" {
			return -1
		}
		i, ok := pos[normalizeHeader(name)]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	idx := columnIndex{
		nsu:              find(t.Columns.NSU),
		amount:           find(t.Columns.Amount),
		installment:      find(t.Columns.Installment),
		installmentTotal: find(t.Columns.InstallmentTotal),
		brand:            find(t.Columns.Brand),
		date:             find(t.Columns.Date),
	}
	if len(missing) > 0 {
		return idx, domain.NewError(domain.KindTemplateMismatch,
			fmt.Sprintf("statement is missing columns required by template %s", t.ID), missing...)
	}
	return idx, nil
}

func mapRows(t Template, rows []record) ([]ParsedLine, error) {
	if len(rows) == 0 {
		return nil, domain.NewError(domain.KindTemplateMismatch, "statement is empty", t.ID)
	}
	idx, err := resolveHeader(t, rows[0].cells)
	if err != nil {
		return nil, err
	}

	var lines []ParsedLine
	for _, row := range rows[1:] {
		lineNum := row.line
		if blankRow(row.cells) {
			continue
		}
		line, err := mapRow(t, idx, row.cells, lineNum)
		if err != nil {
			return nil, domain.NewError(domain.KindTemplateMismatch,
				fmt.Sprintf("line %d: %v", lineNum, err), strconv.Itoa(lineNum))
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func mapRow(t Template, idx columnIndex, row []string, lineNum int) (ParsedLine, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	l := ParsedLine{Line: lineNum, Brand: strings.ToUpper(cell(idx.brand))}

	l.NSU = strings.TrimLeft(cell(idx.nsu), "'")
	if l.NSU == "" {
		return l, fmt.Errorf("empty NSU")
	}

	amount, err := parseAmount(cell(idx.amount), t.DecimalComma)
	if err != nil {
		return l, fmt.Errorf("amount: %w", err)
	}
	l.GrossAmount = amount

	l.InstallmentNumber, l.InstallmentTotal, err = parseInstallment(cell(idx.installment))
	if err != nil {
		return l, fmt.Errorf("installment: %w", err)
	}
	if idx.installmentTotal >= 0 {
		total, err := strconv.Atoi(cell(idx.installmentTotal))
		if err != nil {
			return l, fmt.Errorf("installment total: %w", err)
		}
		l.InstallmentTotal = total
	}
	if l.InstallmentTotal > 0 && l.InstallmentNumber > l.InstallmentTotal {
		return l, fmt.Errorf("installment %d exceeds total %d", l.InstallmentNumber, l.InstallmentTotal)
	}

	l.ExpectedDate, err = parseDate(cell(idx.date), t.DateLayout)
	if err != nil {
		return l, fmt.Errorf("date: %w", err)
	}
	return l, nil
}

// parseAmount accepts "1.234,56" with decimal_comma and "1,234.56" without.
// A currency prefix such as "R$" is ignored.
func parseAmount(s string, decimalComma bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	if decimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

// parseInstallment reads "2" or "2/3". total is 0 when not given.
func parseInstallment(s string) (number, total int, err error) {
	num, tot, found := strings.Cut(s, "/")
	number, err = strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, 0, err
	}
	if number < 1 {
		return 0, 0, fmt.Errorf("must be at least 1, got %d", number)
	}
	if found {
		total, err = strconv.Atoi(strings.TrimSpace(tot))
		if err != nil {
			return 0, 0, err
		}
	}
	return number, total, nil
}

func parseDate(s, layout string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}
	for _, l := range []string{layout, "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(l, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match layout %q", s, layout)
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
