package periods

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type createYearRequest struct {
	Year       int `json:"year" validate:"required,min=1900,max=9999"`
	StartMonth int `json:"start_month" validate:"required,min=1,max=12"`
}

type periodResponse struct {
	ID         int64  `json:"id"`
	FiscalYear int    `json:"fiscal_year"`
	Sequence   int    `json:"sequence"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Status     string `json:"status"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:         p.ID,
		FiscalYear: p.FiscalYear,
		Sequence:   p.Sequence,
		StartDate:  p.StartDate.Format("2006-01-02"),
		EndDate:    p.EndDate.Format("2006-01-02"),
		Status:     string(p.Status),
	}
}

func (h *Handler) CreateYear(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createYearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateFiscalYear(r.Context(), CreateFiscalYearInput{
		FirmID:     actor.FirmID,
		Year:       req.Year,
		StartMonth: time.Month(req.StartMonth),
		ActorID:    actor.ID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(created))
	for _, p := range created {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"periods": out})
}

func (h *Handler) ListYear(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid year")
		return
	}
	list, err := h.service.ListYear(r.Context(), actor.FirmID, year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) CanPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}
	allowed, period, err := h.service.CanPost(r.Context(), actor.FirmID, date)
	if err != nil {
		if errors.Is(err, shared.ErrPeriodNotFound) {
			httpx.JSON(w, http.StatusOK, map[string]any{"allowed": false})
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": allowed, "period": toPeriodResponse(period)})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(firm, id, actor int64) (Period, error)) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := fn(actor.FirmID, id, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(firm, id, actor int64) (Period, error) {
		return h.service.Close(r.Context(), firm, id, actor)
	})
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(firm, id, actor int64) (Period, error) {
		return h.service.Reopen(r.Context(), firm, id, actor)
	})
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(firm, id, actor int64) (Period, error) {
		return h.service.Lock(r.Context(), firm, id, actor)
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrYearExists):
		httpx.Problem(w, http.StatusConflict, "Year Exists", err.Error())
	case errors.Is(err, shared.ErrOutOfOrderClose):
		httpx.Problem(w, http.StatusConflict, "Out Of Order Close", err.Error())
	case errors.Is(err, shared.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, shared.ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("periods handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
