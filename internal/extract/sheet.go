package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// truncationMarker is appended when a spreadsheet exceeds the character limit.
const truncationMarker = "\n[truncated: spreadsheet text limit reached]"

// extractExcel iterates every sheet and converts each row to a tab-separated
// line. Total output is hard-capped at charLimit characters; past the cap a
// truncation marker is appended and extraction stops. This bounds the damage a
// pathological spreadsheet can do.
func extractExcel(content []byte, charLimit int) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	chars := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.Join(row, "\t")
			buf.WriteString(line)
			buf.WriteByte('\n')
			// The cap is a character limit, so count runes, not bytes.
			chars += utf8.RuneCountInString(line) + 1
			if chars >= charLimit {
				buf.WriteString(truncationMarker)
				return buf.String(), nil
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// extractCSV converts CSV or TSV bytes to tab-separated lines with the same
// character cap as extractExcel.
func extractCSV(content []byte, ext string, charLimit int) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	if ext == ".tsv" {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var buf strings.Builder
	chars := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv: %w", err)
		}
		line := strings.Join(record, "\t")
		buf.WriteString(line)
		buf.WriteByte('\n')
		chars += utf8.RuneCountInString(line) + 1
		if chars >= charLimit {
			buf.WriteString(truncationMarker)
			return buf.String(), nil
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
