package provider

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/provgate/gateway/internal/domain"
	"github.com/provgate/gateway/internal/settlement"
	"github.com/shopspring/decimal"
)

// CQ9 status codes.
const (
	CQ9OK               = "0"
	CQ9PlayerNotFound   = "1"
	CQ9BadParameter     = "1002"
	CQ9InsufficientFund = "1003"
	CQ9Duplicate        = "1005"
	CQ9InvalidToken     = "1006"
	CQ9RecordNotFound   = "1014"
	CQ9AlreadyDone      = "1015"
	CQ9ServerError      = "1100"
)

var cq9Messages = map[string]string{
	CQ9OK:               "Success",
	CQ9PlayerNotFound:   "Player not found",
	CQ9BadParameter:     "Bad parameter",
	CQ9InsufficientFund: "Insufficient balance",
	CQ9Duplicate:        "Duplicate transaction",
	CQ9InvalidToken:     "Invalid wtoken",
	CQ9RecordNotFound:   "Record not found",
	CQ9AlreadyDone:      "Already settled or refunded",
	CQ9ServerError:      "Server error",
}

// WTokenHeader carries the CQ9 per-tenant token.
const WTokenHeader = "wtoken"

// CQ9 reports times in UTC-4.
var cq9Zone = time.FixedZone("UTC-4", -4*60*60)

// CQ9Policy is the built-in CQ9 settlement policy.
func CQ9Policy() settlement.Policy {
	return settlement.Policy{Provider: "cq9"}
}

// CQ9Request is the common request body of the CQ9 callbacks.
type CQ9Request struct {
	Account   string              `json:"account"`
	Token     string              `json:"token"`
	GameHall  string              `json:"gamehall"`
	GameCode  string              `json:"gamecode"`
	RoundID   string              `json:"roundid"`
	MTCode    string              `json:"mtcode"`
	Amount    decimal.NullDecimal `json:"amount"`
	EventTime string              `json:"eventTime"`
	Data      []CQ9Payout         `json:"data"`
}

// CQ9Payout is one win entry of an endround call.
type CQ9Payout struct {
	MTCode    string          `json:"mtcode"`
	Amount    decimal.Decimal `json:"amount"`
	EventTime string          `json:"eventtime"`
}

// CQ9Response is the common response body.
type CQ9Response struct {
	Data   *CQ9Data  `json:"data"`
	Status CQ9Status `json:"status"`
}

type CQ9Data struct {
	Account  string      `json:"account,omitempty"`
	Balance  decimalJSON `json:"balance"`
	Currency string      `json:"currency"`
}

type CQ9Status struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	DateTime string `json:"datetime"`
}

// CQ9Adapter serves the CQ9 seamless wallet callbacks.
type CQ9Adapter struct {
	engine Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewCQ9Adapter creates a new CQ9 adapter.
func NewCQ9Adapter(engine Engine, logger *slog.Logger) *CQ9Adapter {
	return &CQ9Adapter{engine: engine, logger: logger.With("provider", engine.Provider()), now: time.Now}
}

// Authenticate handles POST /cq9/authenticate. The launch token identifies the player.
func (a *CQ9Adapter) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req CQ9Request
	if err := decodeBody(r, &req); err != nil || req.Token == "" {
		a.reject(w, CQ9BadParameter)
		return
	}

	player, err := a.engine.Authenticate(r.Context(), req.Token)
	if err != nil {
		a.fail(w, "authenticate", &req, err)
		return
	}
	req.Account = player.PlayID
	if !a.checkToken(w, r, &req) {
		return
	}

	res, err := a.engine.Balance(r.Context(), player.PlayID)
	a.finish(w, "authenticate", &req, res, err)
}

// Balance handles POST /cq9/balance.
func (a *CQ9Adapter) Balance(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "balance")
	if !ok {
		return
	}
	res, err := a.engine.Balance(r.Context(), req.Account)
	a.finish(w, "balance", req, res, err)
}

// Bet handles POST /cq9/bet.
func (a *CQ9Adapter) Bet(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "bet")
	if !ok {
		return
	}
	if req.RoundID == "" || req.MTCode == "" || !req.Amount.Valid {
		a.reject(w, CQ9BadParameter)
		return
	}
	betTime, err := parseTime(req.EventTime, cq9Zone)
	if err != nil {
		a.reject(w, CQ9BadParameter)
		return
	}

	res, err := a.engine.PlaceBet(r.Context(), settlement.BetInput{
		PlayID:     req.Account,
		ExternalID: req.RoundID,
		Amount:     req.Amount.Decimal,
		GameCode:   req.GameCode,
		BetTime:    betTime,
		Details:    map[string]any{"mtcode": req.MTCode, "gamehall": req.GameHall},
	})
	a.finish(w, "bet", req, res, err)
}

// EndRound handles POST /cq9/endround. The round's wins are summed into one payout.
func (a *CQ9Adapter) EndRound(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "endround")
	if !ok {
		return
	}
	if req.RoundID == "" || len(req.Data) == 0 {
		a.reject(w, CQ9BadParameter)
		return
	}

	total := decimal.Zero
	var settleTime time.Time
	mtcodes := make([]string, 0, len(req.Data))
	for _, p := range req.Data {
		if p.MTCode == "" || p.Amount.IsNegative() {
			a.reject(w, CQ9BadParameter)
			return
		}
		t, err := parseTime(p.EventTime, cq9Zone)
		if err != nil {
			a.reject(w, CQ9BadParameter)
			return
		}
		if t.After(settleTime) {
			settleTime = t
		}
		total = total.Add(p.Amount)
		mtcodes = append(mtcodes, p.MTCode)
	}

	res, err := a.engine.Settle(r.Context(), settlement.SettleInput{
		PlayID:     req.Account,
		ExternalID: req.RoundID,
		WinLoss:    total,
		SettleTime: settleTime,
		Details:    map[string]any{"mtcodes": mtcodes, "gamehall": req.GameHall, "game_code": req.GameCode},
	})
	a.finish(w, "endround", req, res, err)
}

// Refund handles POST /cq9/refund.
func (a *CQ9Adapter) Refund(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "refund")
	if !ok {
		return
	}
	if req.RoundID == "" {
		a.reject(w, CQ9BadParameter)
		return
	}
	res, err := a.engine.Cancel(r.Context(), settlement.CancelInput{PlayID: req.Account, ExternalID: req.RoundID})
	a.finish(w, "refund", req, res, err)
}

func (a *CQ9Adapter) begin(w http.ResponseWriter, r *http.Request, op string) (*CQ9Request, bool) {
	var req CQ9Request
	if err := decodeBody(r, &req); err != nil {
		a.logger.Warn("cq9 request malformed", "op", op, "error", err)
		a.reject(w, CQ9BadParameter)
		return nil, false
	}
	req.Account = strings.TrimSpace(req.Account)
	if req.Account == "" {
		a.reject(w, CQ9BadParameter)
		return nil, false
	}
	if !a.checkToken(w, r, &req) {
		return nil, false
	}
	return &req, true
}

// checkToken compares the wtoken header with the credentials of the player's currency.
func (a *CQ9Adapter) checkToken(w http.ResponseWriter, r *http.Request, req *CQ9Request) bool {
	_, creds, err := a.engine.Lookup(r.Context(), req.Account)
	if err != nil {
		a.fail(w, "auth", req, err)
		return false
	}
	token := r.Header.Get(WTokenHeader)
	if token == "" || token != creds.APIKey {
		a.logger.Warn("cq9 wtoken mismatch", "account", req.Account)
		a.reject(w, CQ9InvalidToken)
		return false
	}
	return true
}

func (a *CQ9Adapter) finish(w http.ResponseWriter, op string, req *CQ9Request, res *settlement.Result, err error) {
	if err != nil {
		a.fail(w, op, req, err)
		return
	}
	writeJSON(w, CQ9Response{
		Data:   &CQ9Data{Account: req.Account, Balance: decimalJSON{res.Balance}, Currency: res.Currency},
		Status: a.status(CQ9OK),
	})
}

func (a *CQ9Adapter) fail(w http.ResponseWriter, op string, req *CQ9Request, err error) {
	code := CQ9Code(err)
	if code == CQ9ServerError {
		a.logger.Error("cq9 callback failed", "op", op, "account", req.Account, "roundid", req.RoundID, "error", err)
	} else {
		a.logger.Info("cq9 callback rejected", "op", op, "account", req.Account, "roundid", req.RoundID, "code", code)
	}
	a.reject(w, code)
}

func (a *CQ9Adapter) reject(w http.ResponseWriter, code string) {
	writeJSON(w, CQ9Response{Status: a.status(code)})
}

func (a *CQ9Adapter) status(code string) CQ9Status {
	return CQ9Status{
		Code:     code,
		Message:  cq9Messages[code],
		DateTime: a.now().In(cq9Zone).Format(time.RFC3339),
	}
}

// CQ9Code maps a settlement error onto a CQ9 status code.
func CQ9Code(err error) string {
	switch domain.CodeOf(err) {
	case domain.CodePlayerNotFound:
		return CQ9PlayerNotFound
	case domain.CodeValidation, domain.CodeTransactionNotRollbackable:
		return CQ9BadParameter
	case domain.CodeUnauthorized:
		return CQ9InvalidToken
	case domain.CodeInsufficientFund:
		return CQ9InsufficientFund
	case domain.CodeTransactionAlreadyExists:
		return CQ9Duplicate
	case domain.CodeTransactionNotFound:
		return CQ9RecordNotFound
	case domain.CodeTransactionAlreadySettled, domain.CodeTransactionAlreadyVoid,
		domain.CodeTransactionAlreadyRolledBack, domain.CodeCannotCancel:
		return CQ9AlreadyDone
	default:
		return CQ9ServerError
	}
}
