// Package provider holds the game provider callback adapters. Each adapter
// parses the provider's wire format, checks the request credentials, runs the
// settlement operation and maps the result onto the provider's status codes.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Engine is the settlement surface the adapters drive.
type Engine interface {
	Provider() string
	Lookup(ctx context.Context, playID string) (*domain.Player, domain.Credentials, error)
	PlaceBet(ctx context.Context, in settlement.BetInput) (*settlement.Result, error)
	Settle(ctx context.Context, in settlement.SettleInput) (*settlement.Result, error)
	Rollback(ctx context.Context, in settlement.RollbackInput) (*settlement.Result, error)
	Cancel(ctx context.Context, in settlement.CancelInput) (*settlement.Result, error)
	Balance(ctx context.Context, playID string) (*settlement.Result, error)
	Authenticate(ctx context.Context, token string) (*domain.Player, error)
}

// decodeBody reads a JSON body of at most maxBodyBytes into dst.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps, or zone-less timestamps in loc.
// An empty string yields the zero time.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// decimalJSON marshals as a bare JSON number with two decimals.
type decimalJSON struct{ decimal.Decimal }

func (d decimalJSON) MarshalJSON() ([]byte, error) {
	return []byte(d.StringFixed(2)), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	// Providers read the status from the body; the HTTP status is always 200.
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
