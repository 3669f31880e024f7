package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"fintraka/internal/core"
)

func sample() []core.Transaction {
	cat := int64(1)
	created := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)
	return []core.Transaction{
		{ID: 2, Type: core.Expense, Amount: core.Money{Cents: 20050}, CategoryID: &cat, CategoryName: "Rent", Date: core.NewDate(2024, 5, 15), Description: "May, rent", CreatedAt: created},
		{ID: 1, Type: core.Income, Amount: core.Money{Cents: 100000}, Date: core.NewDate(2024, 5, 1), CreatedAt: created},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": CSV, "csv": CSV, "XLSX": XLSX, " xlsx ": XLSX}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("expected error for pdf")
	}
	if got := XLSX.Filename(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)); got != "transactions_20240520.xlsx" {
		t.Fatalf("unexpected filename %s", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][4] != "200.50" || rows[1][5] != "May, rent" || rows[1][3] != "Rent" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][3] != "" || rows[2][2] != "INCOME" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}

func TestCellText(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"rent":        "rent",
		"=SUM(A1:A9)": "'=SUM(A1:A9)",
		"+1":          "'+1",
		"-cmd":        "'-cmd",
		"@foo":        "'@foo",
		"\t=1":        "'\t=1",
		"a=b":         "a=b",
	}
	for in, want := range cases {
		if got := cellText(in); got != want {
			t.Errorf("cellText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportNeutralizesFormulas(t *testing.T) {
	txs := sample()
	txs[0].Description = `=HYPERLINK("http://evil","x")`
	txs[0].CategoryName = "@Rent"

	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, txs); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&csvBuf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rows[1][5] != `'=HYPERLINK("http://evil","x")` || rows[1][3] != "'@Rent" {
		t.Fatalf("csv cells not neutralized: %v", rows[1])
	}

	var xlsxBuf bytes.Buffer
	if err := WriteXLSX(&xlsxBuf, txs); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&xlsxBuf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue(sheetName, "F2"); got != `'=HYPERLINK("http://evil","x")` {
		t.Fatalf("xlsx description not neutralized: %q", got)
	}
	if formula, _ := f.GetCellFormula(sheetName, "F2"); formula != "" {
		t.Fatalf("description stored as formula %q", formula)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "ID" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][1] != "2024-05-15" || rows[1][3] != "Rent" {
		t.Fatalf("unexpected first data row %v", rows[1])
	}
	raw, err := f.GetCellValue(sheetName, "E2", excelize.Options{RawCellValue: true})
	if err != nil || raw != "200.5" {
		t.Fatalf("expected numeric amount 200.5, got %q (err=%v)", raw, err)
	}
}
