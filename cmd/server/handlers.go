package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"trade-ledger-go/internal/auth"
	"trade-ledger-go/internal/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type sessionKey struct{}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log       *zap.Logger
	engine    *engine.Engine
	sessions  *auth.Manager
	refresher *engine.Refresher
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, exec *engine.Engine, sessions *auth.Manager, refresher *engine.Refresher) *APIHandler {
	return &APIHandler{log: log, engine: exec, sessions: sessions, refresher: refresher}
}

// Router builds the HTTP routes.
func (h *APIHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/signup", h.signup)
	r.Post("/api/login", h.login)
	r.Post("/api/verify-pin", h.verifyPIN)
	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/api/deposit", h.deposit)
		r.Post("/api/buy", h.buy)
		r.Post("/api/sell", h.sell)
		r.Post("/api/logout", h.logout)
		r.Get("/api/portfolio", h.getPortfolio)
		r.Get("/api/portfolio/live", h.livePortfolio)
		r.Get("/api/trades", h.listTrades)
	})

	return r
}

// requireSession resolves the bearer token into a verified session and puts
// it on the request context. Engine calls always use the session's user ID.
func (h *APIHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		session, err := h.sessions.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *auth.Session {
	return r.Context().Value(sessionKey{}).(*auth.Session)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

func (h *APIHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.sessions.Signup(r.Context(), req.Email, req.Password, req.PIN)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": session.Token})
}

func (h *APIHandler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": session.Token})
}

func (h *APIHandler) verifyPIN(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		PIN   string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.sessions.VerifyPIN(r.Context(), req.Token, req.PIN); err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *APIHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(sessionFrom(r).Token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, engine.ErrInvalidAmount)
		return
	}

	balance, err := h.engine.Deposit(r.Context(), sessionFrom(r).UserID, amount)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

type orderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

func (h *APIHandler) buy(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.engine.Buy(r.Context(), sessionFrom(r).UserID, req.Symbol, req.Quantity)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) sell(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.engine.Sell(r.Context(), sessionFrom(r).UserID, req.Symbol, req.Quantity)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := sessionFrom(r).UserID

	holdings, err := h.engine.GetPortfolio(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	balance, err := h.engine.Balance(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"funds":    balance.StringFixed(2),
		"holdings": holdings,
	})
}

// livePortfolio returns live quotes for the symbols the caller currently
// holds, served from the refresher's snapshot when possible and fetched
// directly when a held symbol is missing from it.
func (h *APIHandler) livePortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.engine.GetPortfolio(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if len(holdings) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	snapshot := h.refresher.Snapshot()
	live := make(map[string]any, len(holdings))
	var missing []string
	for symbol := range holdings {
		if quote, ok := snapshot[symbol]; ok {
			live[symbol] = quote
		} else {
			missing = append(missing, symbol)
		}
	}

	if len(missing) > 0 {
		quotes, err := h.engine.RefreshLiveValuation(r.Context(), missing)
		if err != nil {
			h.log.Warn("Live quote fetch failed", zap.Strings("symbols", missing), zap.Error(err))
		} else {
			for symbol, quote := range quotes {
				live[symbol] = quote
			}
		}
	}

	writeJSON(w, http.StatusOK, live)
}

func (h *APIHandler) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.engine.ListTrades(r.Context(), sessionFrom(r).UserID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps the engine's error taxonomy to HTTP statuses. Any
// error outside the taxonomy is a persistence-level failure and must not be
// presented as a client mistake.
func (h *APIHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, engine.ErrSymbolNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrNotOwned),
		errors.Is(err, engine.ErrInsufficientHoldings):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.log.Error("Order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (h *APIHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidPIN),
		errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	default:
		h.log.Error("Auth failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
