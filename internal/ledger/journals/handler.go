package journals

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type postLineRequest struct {
	AccountID int64 `json:"account_id"`
	Debit     int64 `json:"debit"`
	Credit    int64 `json:"credit"`
}

type postRequest struct {
	Date       string            `json:"date"`
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Memo       string            `json:"memo"`
	Lines      []postLineRequest `json:"lines"`
}

type lineResponse struct {
	AccountID int64 `json:"account_id"`
	Debit     int64 `json:"debit"`
	Credit    int64 `json:"credit"`
}

type entryResponse struct {
	ID         int64          `json:"id"`
	Number     int64          `json:"number"`
	Date       string         `json:"date"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	Memo       string         `json:"memo,omitempty"`
	Status     string         `json:"status"`
	Lines      []lineResponse `json:"lines,omitempty"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	resp := entryResponse{
		ID:         e.ID,
		Number:     e.Number,
		Date:       e.Date.Format("2006-01-02"),
		SourceType: e.SourceType,
		SourceID:   e.SourceID.String(),
		Memo:       e.Memo,
		Status:     string(e.Status),
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	return resp
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "source_id must be a UUID")
		return
	}
	lines := make([]PostingLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, PostingLineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		FirmID:     actor.FirmID,
		Date:       date,
		SourceType: req.SourceType,
		SourceID:   sourceID,
		Memo:       req.Memo,
		PostedBy:   actor.ID,
		Lines:      lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	entry, err := h.service.Void(r.Context(), VoidInput{
		FirmID:  actor.FirmID,
		EntryID: id,
		ActorID: actor.ID,
		Reason:  body.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	filter := ListFilter{SourceType: r.URL.Query().Get("source_type")}
	if raw := r.URL.Query().Get("source_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "source_id must be a UUID")
			return
		}
		filter.SourceID = &parsed
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account_id")
			return
		}
		filter.AccountID = id
	}
	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := r.URL.Query().Get(param); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", param+" must be YYYY-MM-DD")
				return
			}
			*dst = &parsed
		}
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	entries, pagination, err := h.service.List(r.Context(), actor.FirmID, filter, page, perPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), actor.FirmID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnbalanced), errors.Is(err, shared.ErrTooFewLines):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Entry", err.Error())
	case errors.Is(err, shared.ErrPeriodClosed), errors.Is(err, shared.ErrPeriodNotFound):
		httpx.Problem(w, http.StatusConflict, "Period Closed", "cannot record transaction: accounting period closed")
	case errors.Is(err, shared.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Locked", "cannot record transaction: accounting period locked")
	case errors.Is(err, shared.ErrAlreadyPosted):
		httpx.Problem(w, http.StatusConflict, "Already Posted", err.Error())
	case errors.Is(err, shared.ErrAccountNotFound), errors.Is(err, shared.ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrAccountInactive), errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("journals handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
