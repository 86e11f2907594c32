// Package credential loads per provider and currency connection details and
// provider settlement policies from a YAML file.
package credential

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout.
type File struct {
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Credentials []domain.Credentials      `yaml:"credentials"`
}

// ProviderConfig holds the policy knobs of one provider.
type ProviderConfig struct {
	// Factors maps currency to wallet units per provider unit, as decimal strings.
	Factors map[string]string `yaml:"factors"`
	// SettledCancel is "cannot_cancel" or "already_settled". Empty keeps the
	// provider's built-in behavior.
	SettledCancel string `yaml:"settled_cancel"`
}

type overlay struct {
	factors       map[string]decimal.Decimal
	settledCancel *bool
}

// Store resolves credentials by provider and currency. It is safe for
// concurrent use and can be reloaded in place.
type Store struct {
	mu       sync.RWMutex
	path     string
	creds    map[string]domain.Credentials
	policies map[string]overlay
}

// Load reads and validates the file at path.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse builds a Store from YAML bytes. The result cannot be reloaded.
func Parse(data []byte) (*Store, error) {
	s := &Store{}
	if err := s.apply(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file. On error the previous contents stay active.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("credential store has no backing file")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read credentials file %s: %w", s.path, err)
	}
	return s.apply(data)
}

func (s *Store) apply(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}

	creds := make(map[string]domain.Credentials, len(f.Credentials))
	for i, c := range f.Credentials {
		c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
		c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
		if c.Provider == "" {
			return fmt.Errorf("credentials[%d]: provider is required", i)
		}
		if err := domain.ValidateCurrency(c.Currency); err != nil {
			return fmt.Errorf("credentials[%d]: %w", i, err)
		}
		if c.WalletURL == "" {
			return fmt.Errorf("credentials[%d] %s/%s: wallet_url is required", i, c.Provider, c.Currency)
		}
		k := key(c.Provider, c.Currency)
		if _, dup := creds[k]; dup {
			return fmt.Errorf("credentials[%d]: duplicate entry for %s", i, k)
		}
		creds[k] = c
	}

	policies := make(map[string]overlay, len(f.Providers))
	for name, pc := range f.Providers {
		name = strings.ToLower(name)
		o, err := pc.overlay(name)
		if err != nil {
			return err
		}
		policies[name] = o
	}

	s.mu.Lock()
	s.creds = creds
	s.policies = policies
	s.mu.Unlock()
	return nil
}

func (pc ProviderConfig) overlay(name string) (overlay, error) {
	o := overlay{factors: make(map[string]decimal.Decimal, len(pc.Factors))}
	for cur, raw := range pc.Factors {
		f, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !f.IsPositive() {
			return o, fmt.Errorf("provider %s: invalid factor %q for %s", name, raw, cur)
		}
		o.factors[strings.ToUpper(cur)] = f
	}
	switch pc.SettledCancel {
	case "":
	case "cannot_cancel", "already_settled":
		v := pc.SettledCancel == "already_settled"
		o.settledCancel = &v
	default:
		return o, fmt.Errorf("provider %s: unknown settled_cancel %q", name, pc.SettledCancel)
	}
	return o, nil
}

// Resolve implements settlement.CredentialResolver.
func (s *Store) Resolve(provider, currency string) (domain.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[key(strings.ToLower(provider), strings.ToUpper(currency))]
	return c, ok
}

// Policy applies the configured factors and cancel behavior on top of base.
func (s *Store) Policy(base settlement.Policy) settlement.Policy {
	s.mu.RLock()
	o, ok := s.policies[strings.ToLower(base.Provider)]
	s.mu.RUnlock()
	if !ok {
		return base
	}

	out := base
	out.Factors = make(map[string]decimal.Decimal, len(base.Factors)+len(o.factors))
	for cur, f := range base.Factors {
		out.Factors[cur] = f
	}
	for cur, f := range o.factors {
		out.Factors[cur] = f
	}
	if o.settledCancel != nil {
		out.SettledCancelIsAlreadySettled = *o.settledCancel
	}
	return out
}

// Currencies lists the currencies configured for provider.
func (s *Store) Currencies(provider string) []string {
	provider = strings.ToLower(provider)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, c := range s.creds {
		if c.Provider == provider {
			out = append(out, c.Currency)
		}
	}
	return out
}

// WalletClients lists the distinct wallet client id and secret pairs.
func (s *Store) WalletClients() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[[2]string]bool)
	var out [][2]string
	for _, c := range s.creds {
		pair := [2]string{c.WalletID, c.WalletKey}
		if c.WalletID == "" || seen[pair] {
			continue
		}
		seen[pair] = true
		out = append(out, pair)
	}
	return out
}

func key(provider, currency string) string { return provider + ":" + currency }
