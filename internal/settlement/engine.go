// Package settlement implements the provider settlement state machine: bet,
// settle, resettle, rollback, cancel and balance against the central wallet.
//
// Each mutating operation runs in a fixed order: player lookup, credentials,
// per-reference lock, transaction state check, wallet call, local persistence.
// At most one wallet mutation is issued per request and a row is only written
// after the wallet confirmed the mutation.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// BetInput is a normalized wager request in provider units.
type BetInput struct {
	PlayID     string
	ExternalID string
	Amount     decimal.Decimal
	GameCode   string
	BetTime    time.Time
	// AllowIncrease lets a larger bet on a running reference replace the wager
	// and acknowledges a replay of the current amount.
	AllowIncrease bool
	Details       map[string]any
}

// SettleInput is a normalized payout request in provider units.
type SettleInput struct {
	PlayID     string
	ExternalID string
	WinLoss    decimal.Decimal
	SettleTime time.Time
	Details    map[string]any
}

// RollbackInput reopens a settled transaction for resettlement.
type RollbackInput struct {
	PlayID     string
	ExternalID string
}

// CancelInput refunds a running wager.
type CancelInput struct {
	PlayID     string
	ExternalID string
}

// Result is the player's balance in provider units after an operation.
type Result struct {
	Balance  decimal.Decimal
	Currency string
}

// Engine runs the settlement flows for one provider.
type Engine struct {
	policy   ProviderPolicy
	repo     Repository
	wallet   WalletClient
	creds    CredentialResolver
	locker   Locker
	reports  ReportBuilder
	tokens   TokenVerifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithReportBuilder replaces DefaultReportBuilder.
func WithReportBuilder(b ReportBuilder) Option { return func(e *Engine) { e.reports = b } }

// WithTokenVerifier enables launch token checks in Authenticate.
func WithTokenVerifier(v TokenVerifier) Option { return func(e *Engine) { e.tokens = v } }

// WithRecorder reports every operation outcome to r.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates a settlement engine for the given provider policy.
func NewEngine(
	policy ProviderPolicy,
	repo Repository,
	wallet WalletClient,
	creds CredentialResolver,
	locker Locker,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		policy:  policy,
		repo:    repo,
		wallet:  wallet,
		creds:   creds,
		locker:  locker,
		reports: DefaultReportBuilder{},
		logger:  logger.With("provider", policy.Name()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the policy name this engine settles for.
func (e *Engine) Provider() string { return e.policy.Name() }

// Ref returns the local transaction reference for an external id.
func (e *Engine) Ref(externalID string) string { return e.policy.TransactionRef(externalID) }

// Lookup returns the player and the credentials of the player's currency.
// Adapters use it to check request credentials before running an operation.
func (e *Engine) Lookup(ctx context.Context, playID string) (*domain.Player, domain.Credentials, error) {
	if err := domain.ValidatePlayID(playID); err != nil {
		return nil, domain.Credentials{}, domain.ErrValidation(err.Error())
	}
	return e.resolve(ctx, playID)
}

// resolve loads the player and the credentials for the player's currency.
func (e *Engine) resolve(ctx context.Context, playID string) (*domain.Player, domain.Credentials, error) {
	player, err := e.repo.GetPlayerByID(ctx, playID)
	if err != nil {
		return nil, domain.Credentials{}, domain.ErrInternal("load player", err)
	}
	if player == nil {
		return nil, domain.Credentials{}, domain.ErrPlayerNotFound(playID)
	}

	creds, ok := e.creds.Resolve(e.policy.Name(), player.Currency)
	if !ok {
		e.logger.Error("credentials not configured", "currency", player.Currency)
		return nil, domain.Credentials{}, domain.ErrCredentialsNotFound(e.policy.Name(), player.Currency)
	}
	return player, creds, nil
}

func (e *Engine) lock(ctx context.Context, ref string) (func(), error) {
	return e.locker.Acquire(ctx, e.policy.Name()+":"+ref)
}

// loadTransaction returns the active row for ref if it belongs to player.
// A row of another player is reported as missing.
func (e *Engine) loadTransaction(ctx context.Context, player *domain.Player, ref string) (*domain.Transaction, error) {
	tx, err := e.repo.GetTransactionByID(ctx, e.policy.Name(), ref)
	if err != nil {
		return nil, domain.ErrInternal("load transaction", err)
	}
	if tx != nil && tx.PlayID != player.PlayID {
		e.logger.Warn("transaction belongs to another player", "ref", ref, "play_id", player.PlayID, "owner", tx.PlayID)
		return nil, nil
	}
	return tx, nil
}

// walletResult classifies a mutation response and returns credit_after.
func (e *Engine) walletResult(op string, ref string, resp *domain.WalletResponse, err error) (decimal.Decimal, error) {
	if err != nil {
		e.logger.Warn("wallet call failed", "op", op, "ref", ref, "error", err)
		if domain.HasCode(err, domain.CodeWalletError) {
			return decimal.Zero, err
		}
		return decimal.Zero, domain.ErrWallet(op+" failed", err)
	}
	if !resp.OK() {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		e.logger.Warn("wallet rejected call", "op", op, "ref", ref, "status_code", code)
		return decimal.Zero, domain.ErrWallet(fmt.Sprintf("%s returned status %d", op, code), nil)
	}
	if resp.CreditAfter == nil {
		e.logger.Warn("wallet response missing credit_after", "op", op, "ref", ref)
		return decimal.Zero, domain.ErrWallet(op+" response missing credit_after", nil)
	}
	return *resp.CreditAfter, nil
}

// balance fetches the current wallet credit in wallet units.
func (e *Engine) balance(ctx context.Context, creds domain.Credentials, playID string) (decimal.Decimal, error) {
	resp, err := e.wallet.Balance(ctx, creds, playID)
	if err != nil {
		e.logger.Warn("wallet balance failed", "play_id", playID, "error", err)
		if domain.HasCode(err, domain.CodeWalletError) {
			return decimal.Zero, err
		}
		return decimal.Zero, domain.ErrWallet("balance failed", err)
	}
	if !resp.OK() {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		return decimal.Zero, domain.ErrWallet(fmt.Sprintf("balance returned status %d", code), nil)
	}
	if resp.Credit == nil {
		return decimal.Zero, domain.ErrWallet("balance response missing credit", nil)
	}
	return *resp.Credit, nil
}

// drift logs a wallet mutation that could not be recorded locally.
func (e *Engine) drift(op string, player *domain.Player, ref, walletTrxID string, amount decimal.Decimal, err error) error {
	e.logger.Error("ledger drift: wallet mutation not persisted",
		"op", op,
		"play_id", player.PlayID,
		"currency", player.Currency,
		"ref", ref,
		"trx_id", walletTrxID,
		"amount", amount.String(),
		"error", err,
	)
	return domain.ErrInternal(fmt.Sprintf("persist %s %s", op, ref), err)
}

func (e *Engine) toWallet(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Mul(e.policy.ConversionFactor(currency))
}

func (e *Engine) fromWallet(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Div(e.policy.ConversionFactor(currency))
}

func (e *Engine) result(credit decimal.Decimal, currency string) *Result {
	return &Result{Balance: e.fromWallet(credit, currency), Currency: currency}
}

// timeOrNow normalizes t to UTC, substituting the engine clock for a zero time.
func (e *Engine) timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return e.now().UTC()
	}
	return t.UTC()
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.recorder == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = domain.CodeOf(err)
	}
	e.recorder.ObserveOperation(e.policy.Name(), op, code, e.now().Sub(start))
}

func validateRef(playID, externalID string) error {
	if err := domain.ValidatePlayID(playID); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if externalID == "" {
		return domain.ErrValidation("external transaction id is required")
	}
	return nil
}

func marshalDetails(details map[string]any) json.RawMessage {
	if len(details) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(details)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
