package http

import (
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/ledger"
)

type transactionResponse struct {
	recordResponse
	Type string `json:"type"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Count        int                   `json:"count"`
}

type balanceResponse struct {
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	Balance      string `json:"balance"`
}

type monthlyStatsResponse struct {
	Month             string            `json:"month"`
	Year              int               `json:"year"`
	TotalIncome       string            `json:"total_income"`
	TotalExpense      string            `json:"total_expense"`
	MonthlyBalance    string            `json:"monthly_balance"`
	IncomeByCategory  map[string]string `json:"income_by_category"`
	ExpenseByCategory map[string]string `json:"expense_by_category"`
}

type windowSummaryResponse struct {
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	Balance      string `json:"balance"`
	Period       string `json:"period"`
}

type recentWindowResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Summary      windowSummaryResponse `json:"summary"`
}

func toTransactionResponses(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			recordResponse: toRecordResponse(tx.MoneyRecord),
			Type:           string(tx.Kind),
		})
	}
	return out
}

func toCategoryAmounts(m map[string]core.Money) map[string]string {
	out := make(map[string]string, len(m))
	for category, amount := range m {
		out[category] = amount.String()
	}
	return out
}

// loadRecordSets fetches both collections for the authenticated user,
// answering with a 500 itself on failure.
func (s *Server) loadRecordSets(w http.ResponseWriter, r *http.Request) (expenses, incomes []core.MoneyRecord, ok bool) {
	userID := claimsFrom(r.Context()).UserID

	expenses, incomes, err := s.records.ListRecordSets(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load record sets", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return nil, nil, false
	}
	return expenses, incomes, true
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	expenses, incomes, ok := s.loadRecordSets(w, r)
	if !ok {
		return
	}

	merged := ledger.MergeTransactions(expenses, incomes)
	writeJSON(w, http.StatusOK, transactionListResponse{
		Transactions: toTransactionResponses(merged),
		Count:        len(merged),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	expenses, incomes, ok := s.loadRecordSets(w, r)
	if !ok {
		return
	}

	summary := ledger.ComputeBalance(expenses, incomes)
	writeJSON(w, http.StatusOK, balanceResponse{
		TotalIncome:  summary.TotalIncome.String(),
		TotalExpense: summary.TotalExpense.String(),
		Balance:      summary.Balance.String(),
	})
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	expenses, incomes, ok := s.loadRecordSets(w, r)
	if !ok {
		return
	}

	stats := ledger.ComputeMonthlyStats(expenses, incomes, time.Now())
	writeJSON(w, http.StatusOK, monthlyStatsResponse{
		Month:             stats.Month,
		Year:              stats.Year,
		TotalIncome:       stats.TotalIncome.String(),
		TotalExpense:      stats.TotalExpense.String(),
		MonthlyBalance:    stats.MonthlyBalance.String(),
		IncomeByCategory:  toCategoryAmounts(stats.IncomeByCategory),
		ExpenseByCategory: toCategoryAmounts(stats.ExpenseByCategory),
	})
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	days, err := parsePathID(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ledger.IsValidWindow(int(days)) {
		writeError(w, http.StatusBadRequest, ledger.ErrInvalidWindow.Error())
		return
	}

	expenses, incomes, ok := s.loadRecordSets(w, r)
	if !ok {
		return
	}

	window, err := ledger.ComputeRecentWindow(expenses, incomes, int(days), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, recentWindowResponse{
		Transactions: toTransactionResponses(window.Transactions),
		Summary: windowSummaryResponse{
			TotalIncome:  window.Summary.TotalIncome.String(),
			TotalExpense: window.Summary.TotalExpense.String(),
			Balance:      window.Summary.Balance.String(),
			Period:       window.Summary.Period,
		},
	})
}

func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	expenses, incomes, ok := s.loadRecordSets(w, r)
	if !ok {
		return
	}

	merged := ledger.MergeTransactions(expenses, incomes)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename("transactions", time.Now())+`"`)
	if err := export.WriteTransactionsCSV(w, merged); err != nil {
		slog.ErrorContext(r.Context(), "Failed to stream CSV", "error", err)
	}
}
