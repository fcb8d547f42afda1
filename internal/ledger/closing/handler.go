package closing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

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

func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/year-end-close", h.YearEndClose)
}

func (h *Handler) YearEndClose(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req struct {
		Year int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Year == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "year required")
		return
	}
	result, err := h.service.YearEndClose(r.Context(), actor.FirmID, req.Year, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrPeriodNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no fiscal periods for year")
		case errors.Is(err, shared.ErrOutOfOrderClose):
			httpx.Problem(w, http.StatusConflict, "Out Of Order Close", err.Error())
		case errors.Is(err, shared.ErrMappingNotFound):
			httpx.Problem(w, http.StatusConflict, "Missing Mapping", "retained earnings account not mapped")
		default:
			h.logger.Error("year-end close", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entry_posted":  result.EntryPosted,
		"entry_id":      result.ClosingEntry.ID,
		"net_income":    result.NetIncome,
		"periods_closed": result.PeriodsClosed,
	})
}
