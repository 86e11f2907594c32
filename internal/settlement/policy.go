package settlement

import (
	"strings"

	"github.com/provgate/gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy is a table-driven ProviderPolicy.
type Policy struct {
	// Provider is the lower-case provider name, also used as the reference prefix.
	Provider string
	// Factors maps upper-case currency codes to wallet units per provider unit.
	// Missing currencies convert 1:1.
	Factors map[string]decimal.Decimal
	// SettledCancelIsAlreadySettled reports TransactionAlreadySettled instead of
	// CannotCancel for a cancel of a settled row.
	SettledCancelIsAlreadySettled bool
}

func (p Policy) Name() string { return p.Provider }

func (p Policy) TransactionRef(externalID string) string {
	return p.Provider + "-" + strings.TrimSpace(externalID)
}

func (p Policy) ConversionFactor(currency string) decimal.Decimal {
	if f, ok := p.Factors[strings.ToUpper(currency)]; ok && f.IsPositive() {
		return f
	}
	return decimal.NewFromInt(1)
}

func (p Policy) CancelSettledError(ref string) error {
	if p.SettledCancelIsAlreadySettled {
		return domain.ErrTransactionAlreadySettled(ref)
	}
	return domain.ErrCannotCancel(ref)
}
