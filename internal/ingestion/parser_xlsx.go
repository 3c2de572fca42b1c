package ingestion

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// readXLSX returns the rows of the template sheet (first sheet by default).
// Numeric cells are read raw: date serials are rendered with the template
// date layout and amounts with the template decimal separator, so the row
// mapper treats CSV and XLSX alike.
func readXLSX(t Template, data []byte) ([]record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewError(domain.KindTemplateMismatch, fmt.Sprintf("open workbook: %v", err), t.ID)
	}
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, domain.NewError(domain.KindTemplateMismatch, "workbook has no sheets", t.ID)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, domain.NewError(domain.KindTemplateMismatch, fmt.Sprintf("read sheet %q: %v", sheet, err), t.ID)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx, err := resolveHeader(t, rows[0])
	if err != nil {
		return nil, err
	}
	for _, row := range rows[1:] {
		if idx.date < len(row) {
			if serial, err := strconv.ParseFloat(row[idx.date], 64); err == nil {
				if d, err := excelize.ExcelDateToTime(serial, false); err == nil {
					row[idx.date] = d.Format(t.DateLayout)
				}
			}
		}
		if t.DecimalComma && idx.amount < len(row) {
			if _, err := strconv.ParseFloat(row[idx.amount], 64); err == nil {
				row[idx.amount] = strings.Replace(row[idx.amount], ".", ",", 1)
			}
		}
	}
	out := make([]record, len(rows))
	for i, row := range rows {
		out[i] = record{line: i + 1, cells: row}
	}
	return out, nil
}

// WriteXLSX renders rows into a single-sheet workbook. Used to build sample
// statements and in tests.
func WriteXLSX(sheet string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, err
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
