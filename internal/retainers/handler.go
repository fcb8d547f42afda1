package retainers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	ledgerShared "github.com/gavelworks/gavelworks/internal/ledger/shared"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
	format    func(int64) string
}

func NewHandler(logger *slog.Logger, service *Service, format func(int64) string) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), format: format}
}

type retainerResponse struct {
	Retainer
	BalanceDisplay string `json:"balance_display,omitempty"`
}

func (h *Handler) toResponse(ret Retainer) retainerResponse {
	resp := retainerResponse{Retainer: ret}
	if h.format != nil {
		resp.BalanceDisplay = h.format(ret.Balance)
	}
	return resp
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	list, err := h.service.List(r.Context(), actor.FirmID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]retainerResponse, 0, len(list))
	for _, ret := range list {
		out = append(out, h.toResponse(ret))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"retainers": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid client id")
		return
	}
	ret, err := h.service.Get(r.Context(), actor.FirmID, clientID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(ret))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req DepositInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.Deposit(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(ret))
}

func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req ConsumeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.Consume(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(ret))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid client id")
		return
	}
	ret, err := h.service.Close(r.Context(), actor, clientID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(ret))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", err.Error())
	case errors.Is(err, ErrClosed):
		httpx.Problem(w, http.StatusConflict, "Retainer Closed", err.Error())
	case errors.Is(err, ErrBalanceRemaining):
		httpx.Problem(w, http.StatusConflict, "Balance Remaining", err.Error())
	case errors.Is(err, ledgerShared.ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", "cannot record transaction: accounting period closed")
	case errors.Is(err, ledgerShared.ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Locked", "cannot record transaction: accounting period locked")
	case errors.Is(err, ledgerShared.ErrMappingNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Mapping Missing", err.Error())
	default:
		h.logger.Error("retainers handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
