package google

import (
	"fmt"
	"strconv"
	"strings"

	"fintraka/internal/sheets"

	gsheet "google.golang.org/api/sheets/v4"
)

// findRowByID returns the 1-based sheet row whose first column holds id,
// or 0 when no row does. values is column A as returned by the API.
func findRowByID(values [][]interface{}, id int64) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if got, ok := parseID(row[0]); ok && got == id {
			return i + 1
		}
	}
	return 0
}

// parseID accepts the forms the API returns for an id cell: a number when
// read unformatted, a string otherwise.
func parseID(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), x > 0 && x == float64(int64(x))
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}

func rowValues(r sheets.Row) []interface{} {
	return []interface{}{r.TransactionID, r.OwnerID, r.Date, r.Type, r.Amount, r.CategoryName, r.Description}
}

func headerValues() []interface{} {
	out := make([]interface{}, len(sheets.Header))
	for i, h := range sheets.Header {
		out[i] = h
	}
	return out
}

// sheetIDByTitle resolves the numeric sheet id needed by structural
// requests such as row deletion.
func sheetIDByTitle(ss *gsheet.Spreadsheet, title string) (int64, error) {
	if ss != nil {
		for _, s := range ss.Sheets {
			if s.Properties != nil && strings.EqualFold(strings.TrimSpace(s.Properties.Title), strings.TrimSpace(title)) {
				return s.Properties.SheetId, nil
			}
		}
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

// rowRange returns the A1 range covering every mirrored column of row n.
func rowRange(sheet string, n int) string {
	last := 'A' + rune(len(sheets.Header)) - 1
	return fmt.Sprintf("%s!A%d:%c%d", sheet, n, last, n)
}
