package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"fintrack/internal/core"
)

// Header is the column layout of every CSV export.
var Header = []string{"Type", "ID", "Title", "Amount", "Category", "Date", "Description", "Created At"}

// WriteTransactionsCSV streams the given transactions to w in their given
// order. Amounts are formatted with two decimal places and no currency sign.
func WriteTransactionsCSV(w io.Writer, transactions []core.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range transactions {
		if err := cw.Write(row(tx.Kind, tx.MoneyRecord)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteRecordsCSV streams a single-kind record set, for the per-collection
// export endpoints.
func WriteRecordsCSV(w io.Writer, kind core.Kind, records []core.MoneyRecord) error {
	transactions := make([]core.Transaction, 0, len(records))
	for _, rec := range records {
		transactions = append(transactions, core.Transaction{MoneyRecord: rec, Kind: kind})
	}
	return WriteTransactionsCSV(w, transactions)
}

func row(kind core.Kind, rec core.MoneyRecord) []string {
	return []string{
		string(kind),
		fmt.Sprintf("%d", rec.ID),
		rec.Title,
		rec.Amount.String(),
		rec.Category,
		rec.OccurredOn.String(),
		rec.Description,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Filename builds a download name like "transactions-2026-08-28.csv".
func Filename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", prefix, now.UTC().Format("2006-01-02"))
}
