// Package wallet is the HTTP client for the central wallet service.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/guard"
)

// Wallet endpoints, relative to Credentials.WalletURL.
const (
	pathBalance        = "/balance"
	pathWager          = "/wager"
	pathPayout         = "/payout"
	pathWagerAndPayout = "/wager-and-payout"
	pathResettle       = "/resettle"
	pathCancel         = "/cancel"
)

// Outcomes reported to the Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

const maxResponseBytes = 1 << 20

// Recorder receives one observation per wallet call.
type Recorder interface {
	ObserveWallet(operation, outcome string, d time.Duration)
}

// Client calls the wallet over JSON HTTP. One circuit is kept per wallet URL
// so a failing tenant wallet does not trip the others.
type Client struct {
	http     *http.Client
	breaker  *guard.CircuitBreaker
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithRecorder reports call outcomes to r.
func WithRecorder(r Recorder) Option { return func(c *Client) { c.recorder = r } }

// NewClient creates a wallet client. A nil breaker disables circuit breaking.
func NewClient(timeout time.Duration, breaker *guard.CircuitBreaker, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type balanceRequest struct {
	PlayID   string `json:"play_id"`
	Currency string `json:"currency"`
}

func (c *Client) Balance(ctx context.Context, creds domain.Credentials, playID string) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "balance", pathBalance, balanceRequest{PlayID: playID, Currency: creds.Currency})
}

func (c *Client) Wager(ctx context.Context, creds domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "wager", pathWager, req)
}

func (c *Client) Payout(ctx context.Context, creds domain.Credentials, req domain.WagerRequest) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "payout", pathPayout, req)
}

func (c *Client) WagerAndPayout(ctx context.Context, creds domain.Credentials, req domain.WagerAndPayoutRequest) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "wager_and_payout", pathWagerAndPayout, req)
}

func (c *Client) Resettle(ctx context.Context, creds domain.Credentials, req domain.ResettleRequest) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "resettle", pathResettle, req)
}

func (c *Client) Cancel(ctx context.Context, creds domain.Credentials, req domain.CancelRequest) (*domain.WalletResponse, error) {
	return c.call(ctx, creds, "cancel", pathCancel, req)
}

// call posts body and decodes the wallet envelope. Transport failures, 5xx
// replies and undecodable bodies count against the circuit; a decoded reply
// with a non-success status_code does not.
func (c *Client) call(ctx context.Context, creds domain.Credentials, op, path string, body any) (*domain.WalletResponse, error) {
	start := time.Now()
	key := creds.WalletURL

	if creds.WalletURL == "" {
		return nil, domain.ErrWallet(op+": wallet url not configured", nil)
	}

	if c.breaker != nil {
		if res := c.breaker.Check(ctx, key); !res.Allowed {
			c.observe(op, OutcomeCircuitOpen, start)
			return nil, domain.ErrWallet(op+": "+res.Reason, nil)
		}
	}

	resp, err := c.do(ctx, creds, path, body)
	if err != nil {
		c.failure(key)
		c.observe(op, OutcomeError, start)
		c.logger.Warn("wallet request failed", "op", op, "wallet", key, "error", err)
		return nil, domain.ErrWallet(op+" request failed", err)
	}

	c.success(key)
	outcome := OutcomeOK
	if !resp.OK() {
		outcome = OutcomeRejected
	}
	c.observe(op, outcome, start)
	return resp, nil
}

func (c *Client) do(ctx context.Context, creds domain.Credentials, path string, body any) (*domain.WalletResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(creds.WalletURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if creds.WalletID != "" {
		req.Header.Set("X-Client-Id", creds.WalletID)
	}
	if creds.WalletKey != "" {
		req.Header.Set("X-Client-Secret", creds.WalletKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("wallet returned http %d", resp.StatusCode)
	}

	var out domain.WalletResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

func (c *Client) success(key string) {
	if c.breaker != nil {
		c.breaker.RecordSuccess(key)
	}
}

func (c *Client) failure(key string) {
	if c.breaker != nil {
		c.breaker.RecordFailure(key)
	}
}

func (c *Client) observe(op, outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveWallet(op, outcome, time.Since(start))
	}
}
