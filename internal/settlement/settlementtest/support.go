package settlementtest

import (
	"context"
	"sync"

	"github.com/provgate/gateway/internal/domain"
)

// StaticCredentials resolves every provider and currency pair listed in it.
type StaticCredentials map[string]domain.Credentials

// Resolve looks up provider:currency.
func (s StaticCredentials) Resolve(provider, currency string) (domain.Credentials, bool) {
	c, ok := s[provider+":"+currency]
	return c, ok
}

// Credentials builds a StaticCredentials entry for provider and currency.
func Credentials(provider, currency string) StaticCredentials {
	return StaticCredentials{provider + ":" + currency: {
		Provider:  provider,
		Currency:  currency,
		WalletURL: "http://wallet.test",
		APIKey:    provider + "-key",
	}}
}

// BusyLocker fails Acquire for the listed keys and records every key seen.
type BusyLocker struct {
	mu   sync.Mutex
	Busy map[string]bool
	Keys []string
}

func (l *BusyLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	if l.Busy[key] {
		return nil, domain.ErrTransactionInProgress(key)
	}
	return func() {}, nil
}
