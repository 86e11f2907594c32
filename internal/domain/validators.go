package domain

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3,4}$`)
	playIDRegex   = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,64}$`)
)

// ValidateCurrency checks for an upper-case currency code. Four letters are
// allowed for provider-specific codes such as IDR2.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidatePlayID checks the player identifier shared with providers.
func ValidatePlayID(playID string) error {
	if !playIDRegex.MatchString(playID) {
		return fmt.Errorf("invalid play id: %q", playID)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is strictly positive.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	return nil
}

// ValidateNonNegativeAmount checks that an amount is zero or positive.
func ValidateNonNegativeAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative, got %s", amount)
	}
	return nil
}
