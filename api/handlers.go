/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Settlements:
    GET    /api/settlements                List (filter + paginate)
    GET    /api/settlements/{id}           Detail with items
    POST   /api/settlements/generate       Run monthly generation
    PATCH  /api/settlements/{id}/complete  Mark paid
    PATCH  /api/settlements/{id}/cancel    Reopen a completed settlement
    PATCH  /api/settlements/{id}/processing Mark in progress
    PATCH  /api/settlements/{id}           Update admin note
    DELETE /api/settlements/{id}           Delete (non-completed only)
    GET    /api/settlements/{id}/statement HTML payout statement

  Items and rates:
    PATCH  /api/settlements/items/{itemID} Manual amount override
    PATCH  /api/videos/{id}/rate           Video rate override

  Configuration:
    GET    /api/settlements/config         Generation settings
    PATCH  /api/settlements/config         Batch setting update

  Creators:
    GET    /api/stars                      List creators
    GET    /api/stars/{id}/settlements     Earnings history

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario
    POST   /api/scenarios/reset            Wipe all data

ERROR HANDLING:
  Domain errors are mapped onto HTTP statuses and stable codes:
  - 400 INVALID_REQUEST:  Malformed body, bad period, negative amount
  - 404 NOT_FOUND:        Missing settlement/item/star/video
  - 409 STATE_CONFLICT:   Guarded transition, completed-immutable
  - 500 INTERNAL:         Everything else
  Guard messages are passed through verbatim so the admin UI can show
  "cannot delete completed settlement" directly.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public; deploy behind the platform gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starworks/settlement-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     settlement.Store
	Generator *settlement.Generator
	Lifecycle *settlement.Lifecycle

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the given store.
func NewHandler(store settlement.Store) *Handler {
	return &Handler{
		Store:     store,
		Generator: settlement.NewGenerator(store),
		Lifecycle: settlement.NewLifecycle(store),
	}
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ListSettlements returns a filtered, paginated settlement page.
// GET /api/settlements?year&month&status&starId&page&pageSize
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := settlement.SettlementFilter{
		Year:     atoiOrZero(q.Get("year")),
		Month:    atoiOrZero(q.Get("month")),
		StarID:   q.Get("starId"),
		Page:     atoiOrZero(q.Get("page")),
		PageSize: atoiOrZero(q.Get("pageSize")),
	}
	if status := q.Get("status"); status != "" {
		st := settlement.SettlementStatus(status)
		if !settlement.ValidStatus(st) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown status: "+status)
			return
		}
		filter.Status = st
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	settlements, total, err := h.Store.ListSettlements(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeList(w, toSettlementDTOs(settlements), total, filter.Page, filter.PageSize)
}

// GetSettlement returns one settlement with its items.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", settlement.ErrSettlementNotFound.Error())
		return
	}
	writeData(w, http.StatusOK, toSettlementDTO(*s))
}

// Generate runs settlement generation for a target month.
// POST /api/settlements/generate {year, month}
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.Generator.Generate(r.Context(), req.Year, req.Month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementsGenerated.Add(float64(len(result.Settlements)))
	for range result.Warnings.Skipped {
		settlementsSkipped.WithLabelValues("no_rate").Inc()
	}
	for range result.Warnings.Completed {
		settlementsSkipped.WithLabelValues("completed").Inc()
	}
	for range result.Warnings.Failed {
		settlementsSkipped.WithLabelValues("failed").Inc()
	}
	writeData(w, http.StatusOK, toGenerateResultDTO(result))
}

// Complete marks a settlement as paid.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, settlement.ActionComplete, h.Lifecycle.Complete)
}

// Cancel reopens a completed settlement back to PENDING.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, settlement.ActionCancel, h.Lifecycle.Cancel)
}

// MarkProcessing flags a pending settlement as in progress.
func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, settlement.ActionProcess, h.Lifecycle.MarkProcessing)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action settlement.Action,
	fn func(ctx context.Context, id string) (*settlement.Settlement, error)) {
	id := chi.URLParam(r, "id")
	s, err := fn(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	settlementTransitions.WithLabelValues(string(action)).Inc()
	writeData(w, http.StatusOK, toSettlementDTO(*s))
}

// DeleteSettlement removes a non-completed settlement and its items.
func (h *Handler) DeleteSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Lifecycle.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	settlementTransitions.WithLabelValues(string(settlement.ActionDelete)).Inc()
	writeData(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// UpdateNote sets the admin note on a non-completed settlement.
// PATCH /api/settlements/{id} {note}
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	s, err := h.Lifecycle.UpdateNote(r.Context(), id, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toSettlementDTO(*s))
}

// UpdateItemAmount sets or clears the manual override on a line item.
// PATCH /api/settlements/items/{itemID} {adjustedAmount}
func (h *Handler) UpdateItemAmount(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	var req UpdateItemAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	s, err := h.Lifecycle.UpdateItemAmount(r.Context(), itemID, req.AdjustedAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toSettlementDTO(*s))
}

// SetVideoRate sets or clears a video-level rate override, updating
// open settlement items generated from the video.
// PATCH /api/videos/{id}/rate {customRate}
func (h *Handler) SetVideoRate(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	var req SetVideoRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	video, err := h.Lifecycle.SetVideoRate(r.Context(), videoID, req.CustomRate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, toVideoDTO(*video))
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetConfig returns all generation settings.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.ListSettings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SettingDTO, 0, len(settings))
	for _, s := range settings {
		dtos = append(dtos, toSettingDTO(s))
	}
	writeData(w, http.StatusOK, dtos)
}

// UpdateConfig applies a batch of setting updates.
// PATCH /api/settlements/config {"settings": {key: value, ...}}
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if len(req.Settings) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "no settings provided")
		return
	}

	ctx := r.Context()
	err := h.Store.WithTx(ctx, func(tx settlement.Store) error {
		for key, value := range req.Settings {
			if err := tx.SaveSetting(ctx, settlement.SystemSetting{Key: key, Value: value}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	settings, err := h.Store.ListSettings(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SettingDTO, 0, len(settings))
	for _, s := range settings {
		dtos = append(dtos, toSettingDTO(s))
	}
	writeData(w, http.StatusOK, dtos)
}

// =============================================================================
// CREATOR HANDLERS
// =============================================================================

// ListStars returns all creators.
func (h *Handler) ListStars(w http.ResponseWriter, r *http.Request) {
	stars, err := h.Store.ListStars(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]StarDTO, 0, len(stars))
	for _, s := range stars {
		dtos = append(dtos, toStarDTO(s))
	}
	writeData(w, http.StatusOK, dtos)
}

// ListStarSettlements returns the earnings history of one creator.
// GET /api/stars/{id}/settlements
func (h *Handler) ListStarSettlements(w http.ResponseWriter, r *http.Request) {
	starID := chi.URLParam(r, "id")
	star, err := h.Store.GetStar(r.Context(), starID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if star == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", settlement.ErrStarNotFound.Error())
		return
	}

	q := r.URL.Query()
	filter := settlement.SettlementFilter{
		StarID:   starID,
		Year:     atoiOrZero(q.Get("year")),
		Page:     atoiOrZero(q.Get("page")),
		PageSize: atoiOrZero(q.Get("pageSize")),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	settlements, total, err := h.Store.ListSettlements(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeList(w, toSettlementDTOs(settlements), total, filter.Page, filter.PageSize)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeList writes a paginated list envelope.
func writeList(w http.ResponseWriter, data any, total, page, pageSize int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ListResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// writeError writes an error envelope with a stable machine code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeDomainError maps domain errors onto HTTP statuses. Guard
// messages pass through verbatim so the admin UI can show them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case settlement.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case settlement.IsStateGuard(err):
		writeError(w, http.StatusConflict, "STATE_CONFLICT", err.Error())
	case settlement.IsClientError(err):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case settlement.IsRetryable(err):
		writeError(w, http.StatusConflict, "CONFLICT_RETRY", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
