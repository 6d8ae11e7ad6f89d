// Package ledger derives balances, monthly statistics, and merged
// transaction feeds from a user's expense and income record sets.
//
// Every consumer of aggregated numbers (balance endpoint, monthly stats,
// recent windows, CSV export) goes through this package, so rounding and
// ordering behavior cannot diverge between views. All functions are pure:
// they perform no I/O, hold no state, and assume their inputs are already
// validated and scoped to a single user.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"fintrack/internal/core"
)

// ValidWindows is the enumerated set of trailing-window sizes, in days,
// accepted by ComputeRecentWindow.
var ValidWindows = []int{7, 30, 90, 180, 365}

// ErrInvalidWindow is returned when a window size is outside ValidWindows.
// Callers are expected to validate before calling; the engine still checks.
var ErrInvalidWindow = errors.New("invalid window: days must be one of 7, 30, 90, 180, 365")

type (
	// BalanceSummary is the all-time totals view.
	BalanceSummary struct {
		TotalIncome  core.Money
		TotalExpense core.Money
		Balance      core.Money
	}

	// MonthlyStats is the month-to-date totals and per-category breakdown.
	// Category keys are exact strings; no case or whitespace normalization
	// is applied ("Food" and "food" are distinct categories).
	MonthlyStats struct {
		Month             string
		Year              int
		TotalIncome       core.Money
		TotalExpense      core.Money
		MonthlyBalance    core.Money
		IncomeByCategory  map[string]core.Money
		ExpenseByCategory map[string]core.Money
	}

	// WindowSummary is a BalanceSummary restricted to a trailing window,
	// with a human-readable period label.
	WindowSummary struct {
		TotalIncome  core.Money
		TotalExpense core.Money
		Balance      core.Money
		Period       string
	}

	// RecentWindow pairs the merged feed of a trailing window with its
	// summary.
	RecentWindow struct {
		Transactions []core.Transaction
		Summary      WindowSummary
	}
)

// ComputeBalance sums the two record sets independently and returns the net
// balance. Sums are plain integer-cent additions: deterministic,
// order-independent, and exact to the minor unit. Empty inputs yield zeroes.
func ComputeBalance(expenses, incomes []core.MoneyRecord) BalanceSummary {
	totalExpense := SumAmounts(expenses)
	totalIncome := SumAmounts(incomes)
	return BalanceSummary{
		TotalIncome:  totalIncome,
		TotalExpense: totalExpense,
		Balance:      totalIncome.Sub(totalExpense),
	}
}

// ComputeMonthlyStats filters both sets to the month-to-date window of ref
// (occurredOn >= first day of ref's month, no upper bound) and returns
// totals plus per-category sums for each side.
func ComputeMonthlyStats(expenses, incomes []core.MoneyRecord, ref time.Time) MonthlyStats {
	y, m, _ := ref.UTC().Date()
	firstOfMonth := core.NewDate(y, int(m), 1)

	monthExpenses := filterSince(expenses, firstOfMonth)
	monthIncomes := filterSince(incomes, firstOfMonth)

	totalExpense := SumAmounts(monthExpenses)
	totalIncome := SumAmounts(monthIncomes)

	return MonthlyStats{
		Month:             m.String(),
		Year:              y,
		TotalIncome:       totalIncome,
		TotalExpense:      totalExpense,
		MonthlyBalance:    totalIncome.Sub(totalExpense),
		IncomeByCategory:  sumByCategory(monthIncomes),
		ExpenseByCategory: sumByCategory(monthExpenses),
	}
}

// ComputeRecentWindow filters both sets to the trailing window of the given
// size, merges them into a single feed, and returns the feed with its
// summary. The cutoff is computed at calendar-day granularity: a record
// dated exactly now-days is included, one day earlier is excluded.
func ComputeRecentWindow(expenses, incomes []core.MoneyRecord, days int, now time.Time) (RecentWindow, error) {
	if !IsValidWindow(days) {
		return RecentWindow{}, ErrInvalidWindow
	}

	cutoff := WindowCutoff(days, now)
	windowExpenses := filterSince(expenses, cutoff)
	windowIncomes := filterSince(incomes, cutoff)

	totalExpense := SumAmounts(windowExpenses)
	totalIncome := SumAmounts(windowIncomes)

	return RecentWindow{
		Transactions: MergeTransactions(windowExpenses, windowIncomes),
		Summary: WindowSummary{
			TotalIncome:  totalIncome,
			TotalExpense: totalExpense,
			Balance:      totalIncome.Sub(totalExpense),
			Period:       PeriodLabel(days),
		},
	}, nil
}

// MergeTransactions combines the two sets into one feed, tagging each record
// with its kind, sorted by (occurredOn desc, id desc, kind). The kind
// tie-break matters: expense and income IDs come from separate sequences and
// can collide on the same date. The sort key is a total order, so the same
// input always produces the same output.
func MergeTransactions(expenses, incomes []core.MoneyRecord) []core.Transaction {
	merged := make([]core.Transaction, 0, len(expenses)+len(incomes))
	for _, r := range expenses {
		merged = append(merged, core.Transaction{MoneyRecord: r, Kind: core.KindExpense})
	}
	for _, r := range incomes {
		merged = append(merged, core.Transaction{MoneyRecord: r, Kind: core.KindIncome})
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].OccurredOn.Equal(merged[j].OccurredOn.Time) {
			return merged[j].OccurredOn.Before(merged[i].OccurredOn)
		}
		if merged[i].ID != merged[j].ID {
			return merged[i].ID > merged[j].ID
		}
		return merged[i].Kind < merged[j].Kind
	})
	return merged
}

// PeriodLabel names a trailing window, e.g. "Last 30 days".
func PeriodLabel(days int) string {
	return fmt.Sprintf("Last %d days", days)
}

// IsValidWindow reports whether days is one of the enumerated window sizes.
func IsValidWindow(days int) bool {
	for _, d := range ValidWindows {
		if d == days {
			return true
		}
	}
	return false
}

// SumAmounts totals a record set's amounts in integer cents. Every consumer
// of a summed amount goes through here or one of the Compute functions.
func SumAmounts(records []core.MoneyRecord) core.Money {
	var total core.Money
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// WindowCutoff is the inclusive lower bound of a trailing window of the
// given size ending at now, at calendar-day granularity.
func WindowCutoff(days int, now time.Time) core.Date {
	return core.DateOf(now.AddDate(0, 0, -days))
}

func sumByCategory(records []core.MoneyRecord) map[string]core.Money {
	out := make(map[string]core.Money, len(records))
	for _, r := range records {
		out[r.Category] = out[r.Category].Add(r.Amount)
	}
	return out
}

// filterSince keeps records whose occurredOn is on or after cutoff.
func filterSince(records []core.MoneyRecord, cutoff core.Date) []core.MoneyRecord {
	out := make([]core.MoneyRecord, 0, len(records))
	for _, r := range records {
		if !r.OccurredOn.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
