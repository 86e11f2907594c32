package credential

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
providers:
  sbo:
    factors:
      IDR: "1000"
  cq9:
    settled_cancel: already_settled
credentials:
  - provider: SBO
    currency: idr
    api_url: https://sbo.example
    agent_id: agent-idr
    api_key: company-idr
    wallet_url: http://wallet.local
    wallet_client_id: gw
    wallet_client_secret: secret
  - provider: sbo
    currency: THB
    api_key: company-thb
    wallet_url: http://wallet.local
  - provider: cq9
    currency: USD
    api_key: cq9-token
    wallet_url: http://wallet.local
`

func TestParse_Resolve(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	c, ok := s.Resolve("sbo", "IDR")
	require.True(t, ok)
	assert.Equal(t, "sbo", c.Provider)
	assert.Equal(t, "IDR", c.Currency)
	assert.Equal(t, "company-idr", c.APIKey)
	assert.Equal(t, "gw", c.WalletID)
	assert.Equal(t, "secret", c.WalletKey)

	_, ok = s.Resolve("SBO", "idr")
	assert.True(t, ok)
	_, ok = s.Resolve("sbo", "USD")
	assert.False(t, ok)

	cur := s.Currencies("sbo")
	sort.Strings(cur)
	assert.Equal(t, []string{"IDR", "THB"}, cur)
	assert.NotEmpty(t, s.WalletClients())
}

func TestParse_Policies(t *testing.T) {
	s, err := Parse([]byte(sample))
	require.NoError(t, err)

	sbo := s.Policy(settlement.Policy{Provider: "sbo", SettledCancelIsAlreadySettled: true})
	assert.Equal(t, "1000", sbo.ConversionFactor("IDR").String())
	assert.Equal(t, "1", sbo.ConversionFactor("THB").String())
	assert.True(t, sbo.SettledCancelIsAlreadySettled, "empty settled_cancel keeps the base")

	cq9 := s.Policy(settlement.Policy{Provider: "cq9"})
	assert.True(t, domain.HasCode(cq9.CancelSettledError("r"), domain.CodeTransactionAlreadySettled))

	base := settlement.Policy{Provider: "ygr", Factors: map[string]decimal.Decimal{"VND": decimal.NewFromInt(1000)}}
	other := s.Policy(base)
	assert.Equal(t, base, other)
}

func TestPolicy_OverlayDoesNotMutateBase(t *testing.T) {
	s, err := Parse([]byte("providers:\n  sbo:\n    factors:\n      IDR: \"1000\"\n    settled_cancel: cannot_cancel\n"))
	require.NoError(t, err)

	base := settlement.Policy{
		Provider:                      "sbo",
		Factors:                       map[string]decimal.Decimal{"VND": decimal.NewFromInt(1000)},
		SettledCancelIsAlreadySettled: true,
	}
	p := s.Policy(base)
	assert.Len(t, p.Factors, 2)
	assert.Len(t, base.Factors, 1)
	assert.False(t, p.SettledCancelIsAlreadySettled)
	assert.True(t, domain.HasCode(p.CancelSettledError("r"), domain.CodeCannotCancel))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "credentials: [\n"},
		{"missing provider", "credentials:\n  - currency: USD\n    wallet_url: http://w\n"},
		{"bad currency", "credentials:\n  - provider: sbo\n    currency: dollars\n    wallet_url: http://w\n"},
		{"missing wallet", "credentials:\n  - provider: sbo\n    currency: USD\n"},
		{"duplicate", "credentials:\n  - {provider: sbo, currency: USD, wallet_url: http://w}\n  - {provider: SBO, currency: usd, wallet_url: http://w}\n"},
		{"bad factor", "providers:\n  sbo:\n    factors:\n      IDR: zero\n"},
		{"negative factor", "providers:\n  sbo:\n    factors:\n      IDR: \"-5\"\n"},
		{"bad cancel mode", "providers:\n  sbo:\n    settled_cancel: refund\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	_, ok := s.Resolve("cq9", "USD")
	require.True(t, ok)

	// A broken file keeps the previous contents.
	require.NoError(t, os.WriteFile(path, []byte("credentials: [\n"), 0o600))
	assert.Error(t, s.Reload())
	_, ok = s.Resolve("cq9", "USD")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("credentials:\n  - {provider: cq9, currency: VND, wallet_url: http://w}\n"), 0o600))
	require.NoError(t, s.Reload())
	_, ok = s.Resolve("cq9", "USD")
	assert.False(t, ok)
	_, ok = s.Resolve("cq9", "VND")
	assert.True(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
