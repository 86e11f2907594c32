package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		wantErr  bool
	}{
		{"valid IDR", "IDR", false},
		{"valid USD", "USD", false},
		{"provider code", "IDR2", false},
		{"lowercase", "idr", true},
		{"mixed case", "Idr", true},
		{"too short", "ID", true},
		{"too long", "IDRXX", true},
		{"empty", "", true},
		{"numbers", "123", true},
		{"with space", "ID ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid currency code")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePlayID(t *testing.T) {
	assert.NoError(t, ValidatePlayID("P1"))
	assert.NoError(t, ValidatePlayID("user_01.abc-x"))
	assert.Error(t, ValidatePlayID(""))
	assert.Error(t, ValidatePlayID("has space"))
	assert.Error(t, ValidatePlayID(string(make([]byte, 65))))
}

func TestValidateAmounts(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(decimal.NewFromInt(1)))
	assert.Error(t, ValidatePositiveAmount(decimal.Zero))
	assert.Error(t, ValidatePositiveAmount(decimal.NewFromInt(-5)))

	assert.NoError(t, ValidateNonNegativeAmount(decimal.Zero))
	assert.NoError(t, ValidateNonNegativeAmount(decimal.RequireFromString("0.01")))
	err := ValidateNonNegativeAmount(decimal.NewFromInt(-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrPlayerNotFound("P1")
		assert.Equal(t, "PLAYER_NOT_FOUND: player P1 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrWallet("wallet unreachable", cause)
		assert.Contains(t, err.Error(), "WALLET_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("place bet: %w", ErrInsufficientFund())
	assert.Equal(t, CodeInsufficientFund, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeInsufficientFund))
	assert.False(t, HasCode(wrapped, CodeWalletError))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrPlayerNotFound", ErrPlayerNotFound("P1"), CodePlayerNotFound, 404},
		{"ErrCredentialsNotFound", ErrCredentialsNotFound("sbo", "IDR"), CodeCredentialsNotFound, 500},
		{"ErrTransactionNotFound", ErrTransactionNotFound("sbo-R1"), CodeTransactionNotFound, 404},
		{"ErrTransactionAlreadyExists", ErrTransactionAlreadyExists("sbo-R1"), CodeTransactionAlreadyExists, 409},
		{"ErrTransactionAlreadySettled", ErrTransactionAlreadySettled("sbo-R1"), CodeTransactionAlreadySettled, 409},
		{"ErrTransactionAlreadyVoid", ErrTransactionAlreadyVoid("sbo-R1"), CodeTransactionAlreadyVoid, 409},
		{"ErrTransactionAlreadyRolledBack", ErrTransactionAlreadyRolledBack("sbo-R1"), CodeTransactionAlreadyRolledBack, 409},
		{"ErrTransactionNotRollbackable", ErrTransactionNotRollbackable("sbo-R1"), CodeTransactionNotRollbackable, 409},
		{"ErrCannotCancel", ErrCannotCancel("sbo-R1"), CodeCannotCancel, 409},
		{"ErrInsufficientFund", ErrInsufficientFund(), CodeInsufficientFund, 400},
		{"ErrWallet", ErrWallet("status 2201", nil), CodeWalletError, 502},
		{"ErrThirdPartyAPI", ErrThirdPartyAPI("bad body", nil), CodeThirdPartyAPIError, 502},
		{"ErrTransactionInProgress", ErrTransactionInProgress("sbo-R1"), CodeTransactionInProgress, 409},
		{"ErrValidation", ErrValidation("bad input"), CodeValidation, 400},
		{"ErrUnauthorized", ErrUnauthorized("bad key"), CodeUnauthorized, 401},
		{"ErrInternal", ErrInternal("oops", nil), CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

// --- Flag / Wallet Tests ---

func TestFlagStates(t *testing.T) {
	assert.True(t, FlagRunning.IsRunning())
	assert.True(t, FlagRunningInc.IsRunning())
	assert.False(t, FlagRollback.IsRunning())

	assert.True(t, FlagSettled.IsTerminal())
	assert.True(t, FlagVoid.IsTerminal())
	assert.False(t, FlagRollback.IsTerminal())
	assert.False(t, FlagRunning.IsTerminal())
}

func TestWalletResponse_OK(t *testing.T) {
	var nilResp *WalletResponse
	assert.False(t, nilResp.OK())
	assert.True(t, (&WalletResponse{StatusCode: WalletSuccess}).OK())
	assert.False(t, (&WalletResponse{StatusCode: 2201}).OK())
}

func TestWalletResponse_Decode(t *testing.T) {
	var resp WalletResponse
	require.NoError(t, json.Unmarshal([]byte(`{"status_code":2100,"credit_after":"900.50"}`), &resp))
	assert.True(t, resp.OK())
	require.NotNil(t, resp.CreditAfter)
	assert.True(t, resp.CreditAfter.Equal(decimal.RequireFromString("900.5")))
	assert.Nil(t, resp.Credit)
}

// --- Event Factory Tests ---

func TestNewTransactionEvent(t *testing.T) {
	tx := &Transaction{
		TrxID:     "wager-sbo-R1",
		Provider:  "sbo",
		Ref:       "sbo-R1",
		PlayID:    "P1",
		BetAmount: decimal.NewFromInt(100),
		Flag:      FlagRunning,
	}

	event := NewTransactionEvent(EventBetPlaced, tx)

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateTransaction, event.AggregateType)
	assert.Equal(t, "wager-sbo-R1", event.AggregateID)
	assert.Equal(t, EventBetPlaced, event.EventType)
	assert.Equal(t, "P1", event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "100", payload["bet_amount"])
	assert.Equal(t, "running", payload["flag"])

	var headers map[string]string
	require.NoError(t, json.Unmarshal(event.Headers, &headers))
	assert.Equal(t, "sbo", headers["provider"])
}

func TestNewSettleEvent(t *testing.T) {
	event := NewSettleEvent(SettleParams{
		TrxID:        "wager-sbo-R1",
		Provider:     "sbo",
		PlayID:       "P1",
		PayoutTrxID:  "payout-1-sbo-R1",
		PayoutAmount: decimal.NewFromInt(150),
		Flag:         FlagSettled,
		Event:        EventBetSettled,
	})

	assert.Equal(t, EventBetSettled, event.EventType)
	assert.Equal(t, "P1", event.PartitionKey)
	assert.Equal(t, "wager-sbo-R1", event.AggregateID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "payout-1-sbo-R1", payload["payout_trx_id"])
	assert.Equal(t, "150", payload["payout_amount"])
}

func TestNewPlayerProvisionedEvent(t *testing.T) {
	event := NewPlayerProvisionedEvent(&Player{PlayID: "P1", Username: "alice", Currency: "IDR", Provider: "sbo"})

	assert.Equal(t, AggregatePlayer, event.AggregateType)
	assert.Equal(t, EventPlayerProvisioned, event.EventType)
	assert.Equal(t, "P1", event.AggregateID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "IDR", payload["currency"])
}
