package settlementtest

import (
	"context"
	"sync"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Call is one recorded wallet invocation.
type Call struct {
	Op            string
	TransactionID string
	Amount        decimal.Decimal
	Request       any
}

// FakeWallet keeps balances in memory and deduplicates mutations by
// transaction id the way the central wallet does.
type FakeWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	applied  map[string]decimal.Decimal
	calls    []Call

	// Status overrides the status code returned for an operation.
	Status map[string]int
	// Err makes an operation fail at the transport level.
	Err map[string]error
	// OmitCredit drops credit/credit_after from successful responses.
	OmitCredit bool
}

// NewFakeWallet returns a wallet with no players.
func NewFakeWallet() *FakeWallet {
	return &FakeWallet{
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]decimal.Decimal),
		Status:   make(map[string]int),
		Err:      make(map[string]error),
	}
}

// SetBalance seeds a player's credit in wallet units.
func (w *FakeWallet) SetBalance(playID string, credit decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[playID] = credit
}

// BalanceOf returns the player's credit.
func (w *FakeWallet) BalanceOf(playID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[playID]
}

// Calls returns every invocation, balance queries included.
func (w *FakeWallet) Calls() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Call(nil), w.calls...)
}

// Mutations returns every invocation except balance queries.
func (w *FakeWallet) Mutations() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Call
	for _, c := range w.calls {
		if c.Op != "balance" {
			out = append(out, c)
		}
	}
	return out
}

func (w *FakeWallet) fail(op string) (*domain.WalletResponse, bool, error) {
	if err, ok := w.Err[op]; ok {
		return nil, true, err
	}
	if code, ok := w.Status[op]; ok {
		return &domain.WalletResponse{StatusCode: code}, true, nil
	}
	return nil, false, nil
}

func (w *FakeWallet) ok(playID string, balanceQuery bool) *domain.WalletResponse {
	resp := &domain.WalletResponse{StatusCode: domain.WalletSuccess}
	if w.OmitCredit {
		return resp
	}
	credit := w.balances[playID]
	if balanceQuery {
		resp.Credit = &credit
	} else {
		resp.CreditAfter = &credit
	}
	return resp
}

// mutate applies delta once per transaction id.
func (w *FakeWallet) mutate(op, playID, trxID string, amount, delta decimal.Decimal, req any) (*domain.WalletResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: op, TransactionID: trxID, Amount: amount, Request: req})
	if resp, failed, err := w.fail(op); failed {
		return resp, err
	}
	if _, seen := w.applied[trxID]; !seen {
		w.balances[playID] = w.balances[playID].Add(delta)
		w.applied[trxID] = amount
	}
	return w.ok(playID, false), nil
}

func (w *FakeWallet) Balance(_ context.Context, _ domain.Credentials, playID string) (*domain.WalletResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: "balance"})
	if resp, failed, err := w.fail("balance"); failed {
		return resp, err
	}
	return w.ok(playID, true), nil
}

func (w *FakeWallet) Wager(_ context.Context, _ domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error) {
	return w.mutate("wager", req.PlayID, req.TransactionID, req.Amount, req.Amount.Neg(), req)
}

func (w *FakeWallet) Payout(_ context.Context, _ domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error) {
	return w.mutate("payout", req.PlayID, req.TransactionID, req.Amount, req.Amount, req)
}

func (w *FakeWallet) WagerAndPayout(_ context.Context, _ domain.Credentials, req domain.WagerAndPayoutRequest) (*domain.WalletResponse, error) {
	delta := req.PayoutAmount.Sub(req.WagerAmount)
	return w.mutate("wagerAndPayout", req.PlayID, req.TransactionID, req.WagerAmount, delta, req)
}

// Resettle credits the new amount net of the payout it replaces.
func (w *FakeWallet) Resettle(_ context.Context, _ domain.Credentials, req domain.ResettleRequest) (*domain.WalletResponse, error) {
	w.mu.Lock()
	previous := w.applied[req.SettledTransactionID]
	w.mu.Unlock()
	return w.mutate("resettle", req.PlayID, req.TransactionID, req.Amount, req.Amount.Sub(previous), req)
}

func (w *FakeWallet) Cancel(_ context.Context, _ domain.Credentials, req domain.CancelRequest) (*domain.WalletResponse, error) {
	return w.mutate("cancel", req.PlayID, req.TransactionID, req.Amount, req.Amount, req)
}
