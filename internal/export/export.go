// Package export renders transaction listings as CSV or XLSX downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fintraka/internal/core"
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

const sheetName = "Transactions"

var header = []string{"ID", "Date", "Type", "Category", "Amount", "Description", "Created At"}

// ParseFormat accepts csv or xlsx, case-insensitively; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	default:
		return "", fmt.Errorf("must be one of csv, xlsx")
	}
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the attachment name for an export produced at now.
func (f Format) Filename(now time.Time) string {
	return fmt.Sprintf("transactions_%s.%s", now.Format("20060102"), f)
}

func Write(w io.Writer, f Format, txs []core.Transaction) error {
	if f == XLSX {
		return WriteXLSX(w, txs)
	}
	return WriteCSV(w, txs)
}

// cellText neutralizes user text a spreadsheet would otherwise evaluate as a
// formula by prefixing it with a quote.
func cellText(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func record(t core.Transaction) []string {
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.Date.String(),
		t.Type.String(),
		cellText(t.CategoryName),
		t.Amount.String(),
		cellText(t.Description),
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes a header row and one row per transaction. Amounts keep
// their exact two-decimal text.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		if err := cw.Write(record(t)); err != nil {
			return fmt.Errorf("write csv row %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with numeric amount cells.
func WriteXLSX(w io.Writer, txs []core.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, t := range txs {
		row := i + 2
		values := []interface{}{
			t.ID,
			t.Date.String(),
			t.Type.String(),
			cellText(t.CategoryName),
			t.Amount.Decimal().InexactFloat64(),
			cellText(t.Description),
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", t.ID, err)
			}
		}
	}

	if len(txs) > 0 {
		style, err := f.NewStyle(&excelize.Style{NumFmt: 2})
		if err != nil {
			return fmt.Errorf("create amount style: %w", err)
		}
		if err := f.SetCellStyle(sheetName, "E2", fmt.Sprintf("E%d", len(txs)+1), style); err != nil {
			return fmt.Errorf("apply amount style: %w", err)
		}
	}

	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "C", 12)
	f.SetColWidth(sheetName, "D", "D", 18)
	f.SetColWidth(sheetName, "E", "E", 12)
	f.SetColWidth(sheetName, "F", "F", 40)
	f.SetColWidth(sheetName, "G", "G", 22)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
