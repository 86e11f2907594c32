// Package walletserver is an in-memory implementation of the central wallet
// API. It backs local development and end-to-end tests of the wallet client.
package walletserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Status codes returned besides domain.WalletSuccess.
const (
	StatusBadRequest       = 4000
	StatusUnauthorized     = 4010
	StatusInsufficient     = 4020
	StatusUnknownReference = 4040
)

// Client is one set of wallet client credentials.
type Client struct {
	ID     string
	Secret string
}

// Wallet holds balances per play id and the amount applied per transaction id.
// A transaction id is applied at most once; a replay returns the current credit.
type Wallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	applied  map[string]decimal.Decimal
	opening  decimal.Decimal
	clients  []Client
	logger   *slog.Logger
}

// New creates a wallet where unknown players start with opening credit.
// With no clients configured every caller is accepted.
func New(opening decimal.Decimal, clients []Client, logger *slog.Logger) *Wallet {
	return &Wallet{
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]decimal.Decimal),
		opening:  opening,
		clients:  clients,
		logger:   logger,
	}
}

// SetBalance overrides the credit of playID.
func (wl *Wallet) SetBalance(playID string, credit decimal.Decimal) {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.balances[playID] = credit
}

// Balance returns the credit of playID.
func (wl *Wallet) Balance(playID string) decimal.Decimal {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return wl.credit(playID)
}

// NewRouter builds the wallet chi.Router.
func NewRouter(wl *Wallet) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wl.logger.Info("wallet request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(wl.authenticate)
		r.Post("/balance", wl.handleBalance)
		r.Post("/wager", wl.handleWager)
		r.Post("/payout", wl.handlePayout)
		r.Post("/wager-and-payout", wl.handleWagerAndPayout)
		r.Post("/resettle", wl.handleResettle)
		r.Post("/cancel", wl.handleCancel)
	})
	return r
}

func (wl *Wallet) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(wl.clients) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		id, secret := r.Header.Get("X-Client-Id"), r.Header.Get("X-Client-Secret")
		for _, c := range wl.clients {
			if c.ID == id && c.Secret == secret {
				next.ServeHTTP(w, r)
				return
			}
		}
		wl.logger.Warn("wallet client rejected", "client_id", id)
		reply(w, StatusUnauthorized, nil, nil)
	})
}

func (wl *Wallet) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayID string `json:"play_id"`
	}
	if !decode(w, r, &req) || req.PlayID == "" {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	credit := wl.Balance(req.PlayID)
	reply(w, domain.WalletSuccess, &credit, nil)
}

func (wl *Wallet) handleWager(w http.ResponseWriter, r *http.Request) {
	var req domain.WagerRequest
	if !decode(w, r, &req) || !valid(req.PlayID, req.TransactionID, req.Amount) {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	wl.apply(w, req.PlayID, req.TransactionID, req.Amount, req.Amount.Neg())
}

func (wl *Wallet) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req domain.WagerRequest
	if !decode(w, r, &req) || !valid(req.PlayID, req.TransactionID, req.Amount) {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	wl.apply(w, req.PlayID, req.TransactionID, req.Amount, req.Amount)
}

func (wl *Wallet) handleWagerAndPayout(w http.ResponseWriter, r *http.Request) {
	var req domain.WagerAndPayoutRequest
	if !decode(w, r, &req) || !valid(req.PlayID, req.TransactionID, req.WagerAmount) || req.PayoutAmount.IsNegative() {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	wl.apply(w, req.PlayID, req.TransactionID, req.WagerAmount, req.PayoutAmount.Sub(req.WagerAmount))
}

// handleResettle replaces the payout recorded under SettledTransactionID.
func (wl *Wallet) handleResettle(w http.ResponseWriter, r *http.Request) {
	var req domain.ResettleRequest
	if !decode(w, r, &req) || !valid(req.PlayID, req.TransactionID, req.Amount) || req.SettledTransactionID == "" {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	wl.mu.Lock()
	prev, ok := wl.applied[req.SettledTransactionID]
	wl.mu.Unlock()
	if !ok {
		reply(w, StatusUnknownReference, nil, nil)
		return
	}
	wl.apply(w, req.PlayID, req.TransactionID, req.Amount, req.Amount.Sub(prev))
}

// handleCancel refunds the wager recorded under TransactionIDToCancel.
func (wl *Wallet) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelRequest
	if !decode(w, r, &req) || !valid(req.PlayID, req.TransactionID, req.Amount) || req.TransactionIDToCancel == "" {
		reply(w, StatusBadRequest, nil, nil)
		return
	}
	wl.mu.Lock()
	_, ok := wl.applied[req.TransactionIDToCancel]
	wl.mu.Unlock()
	if !ok {
		reply(w, StatusUnknownReference, nil, nil)
		return
	}
	wl.apply(w, req.PlayID, req.TransactionID, req.Amount, req.Amount)
}

func (wl *Wallet) apply(w http.ResponseWriter, playID, trxID string, amount, delta decimal.Decimal) {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	credit := wl.credit(playID)
	if _, done := wl.applied[trxID]; done {
		reply(w, domain.WalletSuccess, nil, &credit)
		return
	}
	next := credit.Add(delta)
	if next.IsNegative() {
		reply(w, StatusInsufficient, nil, &credit)
		return
	}
	wl.balances[playID] = next
	wl.applied[trxID] = amount
	reply(w, domain.WalletSuccess, nil, &next)
}

func (wl *Wallet) credit(playID string) decimal.Decimal {
	if c, ok := wl.balances[playID]; ok {
		return c
	}
	wl.balances[playID] = wl.opening
	return wl.opening
}

func valid(playID, trxID string, amount decimal.Decimal) bool {
	return playID != "" && trxID != "" && !amount.IsNegative()
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst) == nil
}

func reply(w http.ResponseWriter, code int, credit, creditAfter *decimal.Decimal) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(domain.WalletResponse{StatusCode: code, Credit: credit, CreditAfter: creditAfter})
}
