package walletserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/guard"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/provgate/gateway/internal/settlement/settlementtest"
	"github.com/provgate/gateway/internal/wallet"
	"github.com/provgate/gateway/internal/walletserver"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type env struct {
	wallet *walletserver.Wallet
	client *wallet.Client
	creds  domain.Credentials
}

func newEnv(t *testing.T) *env {
	t.Helper()
	wl := walletserver.New(dec(1000), []walletserver.Client{{ID: "gw", Secret: "s3cret"}}, testLogger())
	srv := httptest.NewServer(walletserver.NewRouter(wl))
	t.Cleanup(srv.Close)

	return &env{
		wallet: wl,
		client: wallet.NewClient(2*time.Second, nil, testLogger()),
		creds: domain.Credentials{
			Provider: "sbo", Currency: "IDR",
			WalletURL: srv.URL, WalletID: "gw", WalletKey: "s3cret",
		},
	}
}

// --- Wallet API Tests ---

func TestWallet_BalanceAndWager(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.client.Balance(ctx, e.creds, "p1")
	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.True(t, dec(1000).Equal(*resp.Credit))

	resp, err = e.client.Wager(ctx, e.creds, domain.WagerRequest{PlayID: "p1", TransactionID: "wager-sbo-1", Amount: dec(100)})
	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.True(t, dec(900).Equal(*resp.CreditAfter))

	// Replays are applied once.
	resp, err = e.client.Wager(ctx, e.creds, domain.WagerRequest{PlayID: "p1", TransactionID: "wager-sbo-1", Amount: dec(100)})
	require.NoError(t, err)
	require.True(t, resp.OK())
	assert.True(t, dec(900).Equal(*resp.CreditAfter))
}

func TestWallet_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.client.Wager(ctx, e.creds, domain.WagerRequest{PlayID: "p1", TransactionID: "wager-big", Amount: dec(5000)})
	require.NoError(t, err)
	assert.Equal(t, walletserver.StatusInsufficient, resp.StatusCode)

	resp, err = e.client.Resettle(ctx, e.creds, domain.ResettleRequest{PlayID: "p1", TransactionID: "resettle-1-x", Amount: dec(1), SettledTransactionID: "payout-1-x"})
	require.NoError(t, err)
	assert.Equal(t, walletserver.StatusUnknownReference, resp.StatusCode)

	resp, err = e.client.Cancel(ctx, e.creds, domain.CancelRequest{PlayID: "p1", TransactionID: "cancel-x", Amount: dec(1), TransactionIDToCancel: "wager-x"})
	require.NoError(t, err)
	assert.Equal(t, walletserver.StatusUnknownReference, resp.StatusCode)

	bad := e.creds
	bad.WalletKey = "wrong"
	resp, err = e.client.Balance(ctx, bad, "p1")
	require.NoError(t, err)
	assert.Equal(t, walletserver.StatusUnauthorized, resp.StatusCode)
}

func TestWallet_Health(t *testing.T) {
	wl := walletserver.New(dec(0), nil, testLogger())
	rec := httptest.NewRecorder()
	walletserver.NewRouter(wl).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- Engine Against Wallet Tests ---

func TestEngine_FullLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	repo := settlementtest.NewMemoryRepository()
	repo.AddPlayer(domain.Player{PlayID: "p1", Username: "alice", Currency: "IDR", Provider: "sbo"})
	creds := settlementtest.StaticCredentials{"sbo:IDR": e.creds}
	engine := settlement.NewEngine(settlement.Policy{Provider: "sbo"}, repo, e.client, creds, guard.NewKeyLock(), testLogger())

	res, err := engine.PlaceBet(ctx, settlement.BetInput{PlayID: "p1", ExternalID: "r1", Amount: dec(100)})
	require.NoError(t, err)
	assert.True(t, dec(900).Equal(res.Balance))

	res, err = engine.Settle(ctx, settlement.SettleInput{PlayID: "p1", ExternalID: "r1", WinLoss: dec(250)})
	require.NoError(t, err)
	assert.True(t, dec(1150).Equal(res.Balance))

	res, err = engine.Rollback(ctx, settlement.RollbackInput{PlayID: "p1", ExternalID: "r1"})
	require.NoError(t, err)
	assert.True(t, dec(1150).Equal(res.Balance))

	res, err = engine.Settle(ctx, settlement.SettleInput{PlayID: "p1", ExternalID: "r1", WinLoss: dec(50)})
	require.NoError(t, err)
	assert.True(t, dec(950).Equal(res.Balance))

	_, err = engine.PlaceBet(ctx, settlement.BetInput{PlayID: "p1", ExternalID: "r2", Amount: dec(200)})
	require.NoError(t, err)
	res, err = engine.Cancel(ctx, settlement.CancelInput{PlayID: "p1", ExternalID: "r2"})
	require.NoError(t, err)
	assert.True(t, dec(950).Equal(res.Balance))
	assert.True(t, dec(950).Equal(e.wallet.Balance("p1")))

	_, err = engine.Settle(ctx, settlement.SettleInput{PlayID: "p1", ExternalID: "r1", WinLoss: dec(50)})
	assert.True(t, domain.HasCode(err, domain.CodeTransactionAlreadySettled))
}
