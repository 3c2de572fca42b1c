package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// readCSV returns every record of a delimited statement, header included.
// Empty lines are skipped by the reader but line numbers stay file-accurate.
func readCSV(t Template, data []byte) ([]record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = []rune(t.Delimiter)[0]
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows []record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.NewError(domain.KindTemplateMismatch, fmt.Sprintf("read statement: %v", err), t.ID)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record{line: line, cells: row})
	}
	return rows, nil
}
