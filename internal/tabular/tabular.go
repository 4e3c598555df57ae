// Package tabular decodes and encodes delimited text datasets.
//
// Decoding is deliberately forgiving: the upstream agent emits CSV that may
// contain quoted delimiters, doubled quotes, embedded newlines, ragged rows,
// and stray blank lines. Decode never fails; malformed records are skipped
// the way the original ingestion path skipped bad lines.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// Decode parses delimited text into a TabularDataset. The first non-blank
// record is the header; every later record is zipped positionally against
// it. Short rows are padded with empty strings, extra fields are dropped,
// and blank lines vanish entirely. Empty input yields an empty dataset.
func Decode(text string) domain.TabularDataset {
	ds := domain.TabularDataset{Columns: []string{}, Rows: []map[string]string{}}
	if strings.TrimSpace(text) == "" {
		return ds
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unparsable record: skip it, keep going.
			continue
		}
		if isBlank(record) {
			continue
		}
		if len(ds.Columns) == 0 {
			ds.Columns = uniqueColumns(record)
			continue
		}
		ds.Rows = append(ds.Rows, zipRow(ds.Columns, record))
	}
	return ds
}

// Encode renders a dataset back to CSV text in column order. Fields with
// embedded delimiters, quotes, or newlines are quoted per RFC 4180.
func Encode(ds domain.TabularDataset) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write(ds.Columns)
	row := make([]string, len(ds.Columns))
	for _, rec := range ds.Rows {
		for i, col := range ds.Columns {
			row[i] = rec[col]
		}
		w.Write(row)
	}
	w.Flush()
	return sb.String()
}

// isBlank reports whether a record is an empty physical line. Records with
// multiple fields are never blank even when every field is empty, since a
// line like ",," carries positional meaning.
func isBlank(record []string) bool {
	return len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "")
}

// uniqueColumns trims header cells and disambiguates duplicates by suffixing
// an ordinal, preserving order.
func uniqueColumns(record []string) []string {
	cols := make([]string, 0, len(record))
	seen := make(map[string]int, len(record))
	for _, raw := range record {
		name := strings.TrimSpace(raw)
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 1
		}
		cols = append(cols, name)
	}
	return cols
}

// zipRow pairs fields against columns by position.
func zipRow(columns, record []string) map[string]string {
	row := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}
