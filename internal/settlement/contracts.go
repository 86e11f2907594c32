package settlement

import (
	"context"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository is the system of record for players and provider transactions.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	GetPlayerByID(ctx context.Context, playID string) (*domain.Player, error)
	GetPlayerByToken(ctx context.Context, token string) (*domain.Player, error)
	CreatePlayer(ctx context.Context, player *domain.Player) (*domain.Player, error)

	// GetTransactionByID returns the active row for a provider reference.
	GetTransactionByID(ctx context.Context, provider, ref string) (*domain.Transaction, error)
	CreateWagerTransaction(ctx context.Context, tx *domain.Transaction) error
	IncreaseWagerTransaction(ctx context.Context, params domain.IncreaseParams) error
	CreateSettleTransaction(ctx context.Context, params domain.SettleParams) error
	MarkRollback(ctx context.Context, tx *domain.Transaction) error

	GetRollbackCount(ctx context.Context, trxID string) (int, error)
	GetSettleCount(ctx context.Context, trxID string) (int, error)
	GetWagerCount(ctx context.Context, provider, ref string) (int, error)
}

// WalletClient is the central wallet contract. A non-nil error means the call
// did not complete; a completed call reports its outcome in StatusCode.
type WalletClient interface {
	Balance(ctx context.Context, creds domain.Credentials, playID string) (*domain.WalletResponse, error)
	Wager(ctx context.Context, creds domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error)
	Payout(ctx context.Context, creds domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error)
	WagerAndPayout(ctx context.Context, creds domain.Credentials, req domain.WagerAndPayoutRequest) (*domain.WalletResponse, error)
	Resettle(ctx context.Context, creds domain.Credentials, req domain.ResettleRequest) (*domain.WalletResponse, error)
	Cancel(ctx context.Context, creds domain.Credentials, req domain.CancelRequest) (*domain.WalletResponse, error)
}

// CredentialResolver maps provider and currency to connection details.
type CredentialResolver interface {
	Resolve(provider, currency string) (domain.Credentials, bool)
}

// Locker serializes work on one transaction reference. A busy key fails with
// TransactionInProgress. release must be called exactly once per success.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// TokenVerifier checks a launch token and returns the play id it was issued to.
type TokenVerifier interface {
	VerifyLaunchToken(token string) (playID string, err error)
}

// Recorder receives one observation per engine operation.
type Recorder interface {
	ObserveOperation(provider, operation, code string, d time.Duration)
}

// ProviderPolicy carries the per-provider variations of the settlement flow.
type ProviderPolicy interface {
	Name() string
	// TransactionRef maps the provider's external id to the local reference.
	TransactionRef(externalID string) string
	// ConversionFactor converts provider units to wallet units (wallet = provider * factor).
	ConversionFactor(currency string) decimal.Decimal
	// CancelSettledError is returned when a cancel targets a settled transaction.
	CancelSettledError(ref string) error
}
