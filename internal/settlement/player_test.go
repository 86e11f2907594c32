package settlement_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/guard"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/provgate/gateway/internal/settlement/settlementtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	playID string
	err    error
}

func (s stubVerifier) VerifyLaunchToken(string) (string, error) { return s.playID, s.err }

// --- EnsurePlayer Tests ---

func TestEnsurePlayer_CreatesWithDefaults(t *testing.T) {
	h := newHarness(t, sboPolicy())

	p, err := h.engine.EnsurePlayer(ctx, domain.Player{PlayID: "new1", Currency: " usd ", Token: "tok-new"})
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "new1", p.Username)
	assert.Equal(t, "sbo", p.Provider)
	assert.Equal(t, domain.PlayerActive, p.Status)

	events := h.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPlayerProvisioned, events[0].EventType)
}

func TestEnsurePlayer_RefreshesExisting(t *testing.T) {
	h := newHarness(t, sboPolicy())

	p, err := h.engine.EnsurePlayer(ctx, domain.Player{PlayID: "p1", Username: "alice2", Currency: "USD", Token: "tok-2"})
	require.NoError(t, err)
	assert.Equal(t, "alice2", p.Username)
	assert.Equal(t, "tok-2", p.Token)
	assert.Empty(t, h.repo.Events())
}

func TestEnsurePlayer_Errors(t *testing.T) {
	h := newHarness(t, sboPolicy())

	tests := []struct {
		name   string
		player domain.Player
		code   string
	}{
		{"currency change", domain.Player{PlayID: "p1", Currency: "IDR"}, domain.CodeValidation},
		{"bad currency", domain.Player{PlayID: "x", Currency: "US"}, domain.CodeValidation},
		{"bad play id", domain.Player{PlayID: "", Currency: "USD"}, domain.CodeValidation},
		{"no credentials", domain.Player{PlayID: "x", Currency: "EUR"}, domain.CodeCredentialsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.EnsurePlayer(ctx, tt.player)
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.CodeOf(err))
		})
	}
}

func TestEnsurePlayer_StoreFailure(t *testing.T) {
	h := newHarness(t, sboPolicy())
	h.repo.Fail["CreatePlayer"] = errors.New("db down")

	_, err := h.engine.EnsurePlayer(ctx, domain.Player{PlayID: "new1", Currency: "USD"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternal, domain.CodeOf(err))
}

// --- Authenticate Tests ---

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, sboPolicy())

	p, err := h.engine.Authenticate(ctx, "tok-p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.PlayID)

	_, err = h.engine.Authenticate(ctx, "")
	assert.True(t, domain.HasCode(err, domain.CodeUnauthorized))

	_, err = h.engine.Authenticate(ctx, "unknown")
	assert.True(t, domain.HasCode(err, domain.CodePlayerNotFound))
}

func TestAuthenticate_TokensKeptPerProvider(t *testing.T) {
	h := newHarness(t, sboPolicy())
	cq9 := settlement.NewEngine(settlement.Policy{Provider: "cq9"}, h.repo, h.wallet,
		settlementtest.Credentials("cq9", "USD"), guard.NewKeyLock(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := cq9.EnsurePlayer(ctx, domain.Player{PlayID: "p1", Currency: "USD", Token: "tok-cq9"})
	require.NoError(t, err)

	// The cq9 launch leaves the sbo token in place.
	p, err := h.engine.Authenticate(ctx, "tok-p1")
	require.NoError(t, err)
	assert.Equal(t, "sbo", p.Provider)

	p, err = cq9.Authenticate(ctx, "tok-cq9")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.PlayID)
	assert.Equal(t, "cq9", p.Provider)

	_, err = cq9.Authenticate(ctx, "tok-p1")
	assert.True(t, domain.HasCode(err, domain.CodeUnauthorized))
}

func TestAuthenticate_WithVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier stubVerifier
		code     string
	}{
		{"valid", stubVerifier{playID: "p1"}, ""},
		{"invalid token", stubVerifier{err: errors.New("expired")}, domain.CodeUnauthorized},
		{"issued to someone else", stubVerifier{playID: "p2"}, domain.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sboPolicy(), settlement.WithTokenVerifier(tt.verifier))

			p, err := h.engine.Authenticate(ctx, "tok-p1")
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, "p1", p.PlayID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.CodeOf(err))
		})
	}
}

// --- Lookup Tests ---

func TestLookup(t *testing.T) {
	h := newHarness(t, sboPolicy())

	p, creds, err := h.engine.Lookup(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, "sbo-key", creds.APIKey)

	_, _, err = h.engine.Lookup(ctx, "")
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, _, err = h.engine.Lookup(ctx, "ghost")
	assert.Equal(t, domain.CodePlayerNotFound, domain.CodeOf(err))
}
