package accounts

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
	format    func(int64) string
}

// NewHandler constructs the accounts HTTP handler. format renders minor-unit
// amounts for display fields.
func NewHandler(logger *slog.Logger, service *Service, format func(int64) string) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), format: format}
}

type createRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	Subtype  string `json:"subtype"`
	ParentID *int64 `json:"parent_id"`
}

type accountResponse struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Subtype        string `json:"subtype,omitempty"`
	ParentID       *int64 `json:"parent_id,omitempty"`
	IsActive       bool   `json:"is_active"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display,omitempty"`
}

func (h *Handler) toResponse(a Account) accountResponse {
	resp := accountResponse{
		ID:       a.ID,
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		Subtype:  a.Subtype,
		ParentID: a.ParentID,
		IsActive: a.IsActive,
		Balance:  a.CurrentBalance,
	}
	if h.format != nil {
		resp.BalanceDisplay = h.format(a.CurrentBalance)
	}
	return resp
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		FirmID:   actor.FirmID,
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		Subtype:  req.Subtype,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.toResponse(account))
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
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, h.toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = &parsed
	}
	balance, err := h.service.Balance(r.Context(), actor.FirmID, id, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := map[string]any{"account_id": id, "balance": balance}
	if h.format != nil {
		resp["balance_display"] = h.format(balance)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), actor.FirmID, id, actor.ID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, shared.ErrAccountInUse):
		httpx.Problem(w, http.StatusConflict, "Account In Use", err.Error())
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("accounts handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
