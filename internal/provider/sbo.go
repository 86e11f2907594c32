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

// Sbo error codes.
const (
	SboOK                  = 0
	SboMemberNotExist      = 1
	SboInvalidRequest      = 3
	SboCompanyKeyError     = 4
	SboNotEnoughBalance    = 5
	SboBetNotExists        = 6
	SboInternalError       = 7
	SboBetAlreadySettled   = 2001
	SboBetAlreadyCanceled  = 2002
	SboBetAlreadyRollback  = 2003
	SboOnlySettledRollback = 2004
	SboDuplicateTransfer   = 5003
)

var sboMessages = map[int]string{
	SboOK:                  "No Error",
	SboMemberNotExist:      "Member not exist",
	SboInvalidRequest:      "Invalid request",
	SboCompanyKeyError:     "CompanyKey Error",
	SboNotEnoughBalance:    "Not enough balance",
	SboBetNotExists:        "Bet not exists",
	SboInternalError:       "Internal Error",
	SboBetAlreadySettled:   "Bet Already Settled",
	SboBetAlreadyCanceled:  "Bet Already Canceled",
	SboBetAlreadyRollback:  "Bet Already Rollback",
	SboOnlySettledRollback: "Only Settled bet can be rollback",
	SboDuplicateTransfer:   "Bet With Same RefNo Exists",
}

// Casino product types may raise a running bet by deducting again with a
// larger amount under the same transfer code.
var sboIncreaseProducts = map[int]bool{3: true, 7: true}

// Sbo timestamps without a zone are GMT-4.
var sboZone = time.FixedZone("GMT-4", -4*60*60)

// SboPolicy is the built-in Sbo settlement policy.
func SboPolicy() settlement.Policy {
	return settlement.Policy{Provider: "sbo", SettledCancelIsAlreadySettled: true}
}

// SboRequest is the common request body of every Sbo callback.
type SboRequest struct {
	CompanyKey    string              `json:"CompanyKey"`
	Username      string              `json:"Username"`
	ProductType   int                 `json:"ProductType"`
	GameType      int                 `json:"GameType"`
	GameID        int                 `json:"GameId"`
	TransferCode  string              `json:"TransferCode"`
	TransactionID string              `json:"TransactionId"`
	Amount        decimal.NullDecimal `json:"Amount"`
	WinLoss       decimal.NullDecimal `json:"WinLoss"`
	BetTime       string              `json:"BetTime"`
	ResultTime    string              `json:"ResultTime"`
	IsCashOut     bool                `json:"IsCashOut"`
}

// SboResponse is the common response body.
type SboResponse struct {
	AccountName  string      `json:"AccountName"`
	Balance      decimalJSON `json:"Balance"`
	BetAmount    decimalJSON `json:"BetAmount,omitzero"`
	ErrorCode    int         `json:"ErrorCode"`
	ErrorMessage string      `json:"ErrorMessage"`
}

// SboAdapter serves the Sbo seamless wallet callbacks.
type SboAdapter struct {
	engine Engine
	logger *slog.Logger
}

// NewSboAdapter creates a new Sbo adapter.
func NewSboAdapter(engine Engine, logger *slog.Logger) *SboAdapter {
	return &SboAdapter{engine: engine, logger: logger.With("provider", engine.Provider())}
}

// GetBalance handles POST /sbo/GetBalance.
func (a *SboAdapter) GetBalance(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "balance")
	if !ok {
		return
	}
	res, err := a.engine.Balance(r.Context(), req.Username)
	a.finish(w, "balance", req, res, err)
}

// Deduct handles POST /sbo/Deduct.
func (a *SboAdapter) Deduct(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "deduct")
	if !ok {
		return
	}
	if req.TransferCode == "" || !req.Amount.Valid {
		a.reject(w, req, SboInvalidRequest)
		return
	}
	betTime, err := parseTime(req.BetTime, sboZone)
	if err != nil {
		a.reject(w, req, SboInvalidRequest)
		return
	}

	res, err := a.engine.PlaceBet(r.Context(), settlement.BetInput{
		PlayID:        req.Username,
		ExternalID:    req.TransferCode,
		Amount:        req.Amount.Decimal,
		BetTime:       betTime,
		AllowIncrease: sboIncreaseProducts[req.ProductType],
		Details:       req.details(),
	})
	if err == nil {
		resp := a.response(req, res, SboOK)
		resp.BetAmount = decimalJSON{req.Amount.Decimal}
		writeJSON(w, resp)
		return
	}
	a.finish(w, "deduct", req, res, err)
}

// Settle handles POST /sbo/Settle. A settle after Rollback resettles the bet.
func (a *SboAdapter) Settle(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "settle")
	if !ok {
		return
	}
	if req.TransferCode == "" || !req.WinLoss.Valid {
		a.reject(w, req, SboInvalidRequest)
		return
	}
	settleTime, err := parseTime(req.ResultTime, sboZone)
	if err != nil {
		a.reject(w, req, SboInvalidRequest)
		return
	}

	res, err := a.engine.Settle(r.Context(), settlement.SettleInput{
		PlayID:     req.Username,
		ExternalID: req.TransferCode,
		WinLoss:    req.WinLoss.Decimal,
		SettleTime: settleTime,
		Details:    req.details(),
	})
	a.finish(w, "settle", req, res, err)
}

// Rollback handles POST /sbo/Rollback.
func (a *SboAdapter) Rollback(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "rollback")
	if !ok {
		return
	}
	if req.TransferCode == "" {
		a.reject(w, req, SboInvalidRequest)
		return
	}
	res, err := a.engine.Rollback(r.Context(), settlement.RollbackInput{PlayID: req.Username, ExternalID: req.TransferCode})
	a.finish(w, "rollback", req, res, err)
}

// Cancel handles POST /sbo/Cancel.
func (a *SboAdapter) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := a.begin(w, r, "cancel")
	if !ok {
		return
	}
	if req.TransferCode == "" {
		a.reject(w, req, SboInvalidRequest)
		return
	}
	res, err := a.engine.Cancel(r.Context(), settlement.CancelInput{PlayID: req.Username, ExternalID: req.TransferCode})
	a.finish(w, "cancel", req, res, err)
}

// begin parses the body and checks CompanyKey against the credentials of the
// player's currency. It writes the error response itself when it returns false.
func (a *SboAdapter) begin(w http.ResponseWriter, r *http.Request, op string) (*SboRequest, bool) {
	var req SboRequest
	if err := decodeBody(r, &req); err != nil {
		a.logger.Warn("sbo request malformed", "op", op, "error", err)
		a.reject(w, &req, SboInvalidRequest)
		return nil, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.CompanyKey == "" {
		a.reject(w, &req, SboInvalidRequest)
		return nil, false
	}

	_, creds, err := a.engine.Lookup(r.Context(), req.Username)
	if err != nil {
		a.finish(w, op, &req, nil, err)
		return nil, false
	}
	if req.CompanyKey != creds.APIKey {
		a.logger.Warn("sbo company key mismatch", "op", op, "username", req.Username)
		a.reject(w, &req, SboCompanyKeyError)
		return nil, false
	}
	return &req, true
}

func (a *SboAdapter) finish(w http.ResponseWriter, op string, req *SboRequest, res *settlement.Result, err error) {
	if err != nil {
		code := SboCode(err)
		if code == SboInternalError {
			a.logger.Error("sbo callback failed", "op", op, "username", req.Username, "transfer_code", req.TransferCode, "error", err)
		} else {
			a.logger.Info("sbo callback rejected", "op", op, "username", req.Username, "transfer_code", req.TransferCode, "code", code)
		}
		a.reject(w, req, code)
		return
	}
	writeJSON(w, a.response(req, res, SboOK))
}

func (a *SboAdapter) reject(w http.ResponseWriter, req *SboRequest, code int) {
	writeJSON(w, a.response(req, nil, code))
}

func (a *SboAdapter) response(req *SboRequest, res *settlement.Result, code int) SboResponse {
	resp := SboResponse{AccountName: req.Username, ErrorCode: code, ErrorMessage: sboMessages[code]}
	if res != nil {
		resp.Balance = decimalJSON{res.Balance}
	}
	return resp
}

func (req *SboRequest) details() map[string]any {
	d := map[string]any{
		"product_type": req.ProductType,
		"game_type":    req.GameType,
	}
	if req.GameID != 0 {
		d["game_id"] = req.GameID
	}
	if req.TransactionID != "" {
		d["transaction_id"] = req.TransactionID
	}
	if req.IsCashOut {
		d["cash_out"] = true
	}
	return d
}

// SboCode maps a settlement error onto an Sbo error code.
func SboCode(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodePlayerNotFound:
		return SboMemberNotExist
	case domain.CodeValidation:
		return SboInvalidRequest
	case domain.CodeUnauthorized:
		return SboCompanyKeyError
	case domain.CodeInsufficientFund:
		return SboNotEnoughBalance
	case domain.CodeTransactionNotFound:
		return SboBetNotExists
	case domain.CodeTransactionAlreadySettled, domain.CodeCannotCancel:
		return SboBetAlreadySettled
	case domain.CodeTransactionAlreadyVoid:
		return SboBetAlreadyCanceled
	case domain.CodeTransactionAlreadyRolledBack:
		return SboBetAlreadyRollback
	case domain.CodeTransactionNotRollbackable:
		return SboOnlySettledRollback
	case domain.CodeTransactionAlreadyExists:
		return SboDuplicateTransfer
	default:
		return SboInternalError
	}
}
