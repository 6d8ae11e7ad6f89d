package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/ledger"
	"fintrack/internal/storage"
)

// recordHandlers serves one record collection. The expense and income
// surfaces are identical except for the kind.
type recordHandlers struct {
	server     *Server
	kind       core.Kind
	exportName string
}

// amountField accepts either a JSON number or a decimal string.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or numeric string")
	}
	*a = amountField(n.String())
	return nil
}

type recordRequest struct {
	Title       string      `json:"title"`
	Amount      amountField `json:"amount"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
}

type recordResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type recordListResponse struct {
	Records []recordResponse `json:"records"`
	Count   int              `json:"count"`
}

type recordWindowResponse struct {
	Records []recordResponse `json:"records"`
	Total   string           `json:"total"`
	Period  string           `json:"period"`
}

func toRecordResponse(rec core.MoneyRecord) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		Title:       rec.Title,
		Amount:      rec.Amount.String(),
		Category:    rec.Category,
		Date:        rec.OccurredOn.String(),
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toRecordResponses(recs []core.MoneyRecord) []recordResponse {
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// parseRecordRequest validates the payload into a MoneyRecord owned by the
// authenticated user.
func (h *recordHandlers) parseRecordRequest(r *http.Request) (core.MoneyRecord, error) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.MoneyRecord{}, err
	}

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.MoneyRecord{}, err
	}
	occurredOn, err := core.ParseDate(req.Date)
	if err != nil {
		return core.MoneyRecord{}, err
	}

	rec := core.MoneyRecord{
		UserID:      claimsFrom(r.Context()).UserID,
		Title:       sanitizeInput(req.Title),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		OccurredOn:  occurredOn,
		Description: sanitizeInput(req.Description),
	}
	if err := rec.Validate(); err != nil {
		return core.MoneyRecord{}, err
	}
	return rec, nil
}

func (h *recordHandlers) list(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).UserID

	records, err := h.server.records.ListRecords(r.Context(), h.kind, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list records", "kind", h.kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, recordListResponse{
		Records: toRecordResponses(records),
		Count:   len(records),
	})
}

func (h *recordHandlers) create(w http.ResponseWriter, r *http.Request) {
	rec, err := h.parseRecordRequest(r)
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	created, err := h.server.records.CreateRecord(r.Context(), h.kind, rec)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create record", "kind", h.kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}

	writeJSON(w, http.StatusCreated, toRecordResponse(created))
}

func (h *recordHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := claimsFrom(r.Context()).UserID

	rec, err := h.server.records.GetRecord(r.Context(), h.kind, id, userID)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// update applies a partial update: any field omitted from the payload keeps
// its stored value.
func (h *recordHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := claimsFrom(r.Context()).UserID

	existing, err := h.server.records.GetRecord(r.Context(), h.kind, id, userID)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}

	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.mergeRecordRequest(existing, req)
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	updated, err := h.server.records.UpdateRecord(r.Context(), h.kind, rec)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(updated))
}

// mergeRecordRequest overlays the provided fields on the stored record.
// Empty fields keep their previous values.
func (h *recordHandlers) mergeRecordRequest(existing core.MoneyRecord, req recordRequest) (core.MoneyRecord, error) {
	rec := existing
	if title := sanitizeInput(req.Title); title != "" {
		rec.Title = title
	}
	if string(req.Amount) != "" {
		amount, err := core.ParseAmount(string(req.Amount))
		if err != nil {
			return core.MoneyRecord{}, err
		}
		rec.Amount = amount
	}
	if category := sanitizeInput(req.Category); category != "" {
		rec.Category = category
	}
	if req.Date != "" {
		occurredOn, err := core.ParseDate(req.Date)
		if err != nil {
			return core.MoneyRecord{}, err
		}
		rec.OccurredOn = occurredOn
	}
	if description := sanitizeInput(req.Description); description != "" {
		rec.Description = description
	}
	if err := rec.Validate(); err != nil {
		return core.MoneyRecord{}, err
	}
	return rec, nil
}

func (h *recordHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := claimsFrom(r.Context()).UserID

	if err := h.server.records.DeleteRecord(r.Context(), h.kind, id, userID); err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *recordHandlers) recent(w http.ResponseWriter, r *http.Request) {
	days, err := parsePathID(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ledger.IsValidWindow(int(days)) {
		writeError(w, http.StatusBadRequest, ledger.ErrInvalidWindow.Error())
		return
	}
	userID := claimsFrom(r.Context()).UserID

	cutoff := ledger.WindowCutoff(int(days), time.Now())
	records, err := h.server.records.ListRecordsSince(r.Context(), h.kind, userID, cutoff)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list recent records", "kind", h.kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	writeJSON(w, http.StatusOK, recordWindowResponse{
		Records: toRecordResponses(records),
		Total:   ledger.SumAmounts(records).String(),
		Period:  ledger.PeriodLabel(int(days)),
	})
}

func (h *recordHandlers) export(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).UserID

	records, err := h.server.records.ListRecords(r.Context(), h.kind, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to export records", "kind", h.kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export records")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(h.exportName, time.Now())+`"`)
	if err := export.WriteRecordsCSV(w, h.kind, records); err != nil {
		// Headers are gone; the truncated body is all we can signal with.
		slog.ErrorContext(r.Context(), "Failed to stream CSV", "kind", h.kind, "error", err)
	}
}

func (h *recordHandlers) writeParseError(w http.ResponseWriter, err error) {
	if isValidationError(err) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeLookupError maps storage errors for a single-record operation.
// Another user's record is indistinguishable from a missing one.
func (h *recordHandlers) writeLookupError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	slog.ErrorContext(r.Context(), "Record operation failed", "kind", h.kind, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "operation failed")
}
