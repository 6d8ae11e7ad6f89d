package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
)

func sampleTransaction(id int64, kind core.Kind, cents int64) core.Transaction {
	return core.Transaction{
		Kind: kind,
		MoneyRecord: core.MoneyRecord{
			ID:         id,
			Title:      "sample",
			Amount:     core.Money{Cents: cents},
			Category:   "Food",
			OccurredOn: core.NewDate(2026, 8, 10),
			CreatedAt:  time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteTransactionsCSV(t *testing.T) {
	var buf bytes.Buffer
	txs := []core.Transaction{
		sampleTransaction(2, core.KindIncome, 100000),
		sampleTransaction(1, core.KindExpense, 1999),
	}

	if err := WriteTransactionsCSV(&buf, txs); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(Header, ",") {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"income", "2", "sample", "1000.00", "Food", "2026-08-10", "", "2026-08-10T12:00:00Z"}
	for i, col := range want {
		if rows[1][i] != col {
			t.Errorf("row 1 col %d = %q, want %q", i, rows[1][i], col)
		}
	}
	if rows[2][0] != "expense" || rows[2][3] != "19.99" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestWriteTransactionsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTransactionsCSV(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty export should contain only the header, got %d rows", len(rows))
	}
}

func TestWriteTransactionsCSVQuoting(t *testing.T) {
	var buf bytes.Buffer
	tx := sampleTransaction(1, core.KindExpense, 500)
	tx.Title = `dinner, "La Pergola"`
	tx.Description = "line one\nline two"

	if err := WriteTransactionsCSV(&buf, []core.Transaction{tx}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if rows[1][2] != tx.Title {
		t.Errorf("title round trip = %q", rows[1][2])
	}
	if rows[1][6] != tx.Description {
		t.Errorf("description round trip = %q", rows[1][6])
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	recs := []core.MoneyRecord{sampleTransaction(7, core.KindExpense, 250).MoneyRecord}

	if err := WriteRecordsCSV(&buf, core.KindExpense, recs); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if rows[1][0] != "expense" || rows[1][1] != "7" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)
	if got := Filename("transactions", now); got != "transactions-2026-08-28.csv" {
		t.Errorf("Filename = %q", got)
	}
}
