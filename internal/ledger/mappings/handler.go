package mappings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type Handler struct {
	repo      Repository
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{repo: repo, logger: logger, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/", h.Upsert)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	list, err := h.repo.List(r.Context(), actor.FirmID)
	if err != nil {
		h.logger.Error("mappings list", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": list})
}

type upsertRequest struct {
	Key       string `json:"key" validate:"required"`
	AccountID int64  `json:"account_id" validate:"required"`
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.repo.Upsert(r.Context(), AccountMapping{
		FirmID:    actor.FirmID,
		Key:       req.Key,
		AccountID: req.AccountID,
	})
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("mappings upsert", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
