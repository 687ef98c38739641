package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/finbook/internal/auth"
	"github.com/yourorg/finbook/internal/domain"
	"github.com/yourorg/finbook/internal/settlement"
)

// UserStore is the identity surface the handlers need; both the Postgres
// user repo and the memory store satisfy it.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, passwordHash string) error
}

type Handlers struct {
	users  UserStore
	svc    *settlement.Service
	jwtSvc *auth.JWTService
	logger *slog.Logger
}

func NewHandlers(users UserStore, svc *settlement.Service, jwtSvc *auth.JWTService, logger *slog.Logger) *Handlers {
	return &Handlers{
		users:  users,
		svc:    svc,
		jwtSvc: jwtSvc,
		logger: logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &domain.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateMeRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	name := user.Name
	if req.Name != nil {
		name = *req.Name
	}
	hash := user.PasswordHash
	if req.Password != nil {
		raw, err := bcrypt.GenerateFromPassword([]byte(*req.Password), 12)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hash = string(raw)
	}
	if err := h.users.UpdateProfile(r.Context(), userID, name, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	user.Name = name
	writeJSON(w, http.StatusOK, user)
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	balance, err := h.svc.Deposit(r.Context(), auth.UserIDFromCtx(r.Context()), req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"cash_balance": balance})
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	balance, err := h.svc.Withdraw(r.Context(), auth.UserIDFromCtx(r.Context()), req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"cash_balance": balance})
}

// tradeRequest is the create/buy payload. Price and cost are always
// computed server-side.
type tradeRequest struct {
	Title     string  `json:"title"`
	AssetName string  `json:"asset_name"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
}

func (h *Handlers) decodeTrade(r *http.Request) (settlement.TradeRequest, error) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return settlement.TradeRequest{}, &domain.ValidationError{Field: "body", Message: "invalid request body"}
	}
	class, err := domain.ParseAssetClass(req.Type)
	if err != nil {
		return settlement.TradeRequest{}, &domain.ValidationError{Field: "type", Message: err.Error()}
	}
	return settlement.TradeRequest{
		Title:      req.Title,
		AssetClass: class,
		Identifier: req.AssetName,
		Quantity:   req.Quantity,
	}, nil
}

func (h *Handlers) ListInvestments(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.List(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch investments")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *Handlers) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTrade(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	pos, err := h.svc.Create(r.Context(), auth.UserIDFromCtx(r.Context()), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

func (h *Handlers) Buy(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTrade(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	pos, err := h.svc.Buy(r.Context(), auth.UserIDFromCtx(r.Context()), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

func (h *Handlers) GetInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	pos, err := h.svc.Get(r.Context(), auth.UserIDFromCtx(r.Context()), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// updateInvestmentRequest deliberately carries only the mutable fields;
// type, asset_name and both prices are dropped on decode, so PUT and PATCH
// both degrade to the same partial update.
type updateInvestmentRequest struct {
	Title    *string  `json:"title"`
	Quantity *float64 `json:"quantity"`
}

func (h *Handlers) UpdateInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req updateInvestmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pos, err := h.svc.Update(r.Context(), auth.UserIDFromCtx(r.Context()), id,
		settlement.UpdateRequest{Title: req.Title, Quantity: req.Quantity})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *Handlers) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if _, err := h.svc.Close(r.Context(), auth.UserIDFromCtx(r.Context()), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Transactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Transactions(r.Context(), auth.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch transactions")
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeDomainError maps the settlement error taxonomy onto HTTP statuses.
// Cross-user access surfaces as 404, never 403.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var perr *domain.PriceLookupError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{verr.Field: verr.Message})
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &perr):
		writeError(w, http.StatusBadRequest, perr.Error())
	default:
		h.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
