package domain

import (
	"errors"
	"fmt"
)

// Error codes for the settlement taxonomy. Provider adapters map these onto
// their own wire status codes.
const (
	CodePlayerNotFound               = "PLAYER_NOT_FOUND"
	CodeCredentialsNotFound          = "CREDENTIALS_NOT_FOUND"
	CodeTransactionNotFound          = "TRANSACTION_NOT_FOUND"
	CodeTransactionAlreadyExists     = "TRANSACTION_ALREADY_EXISTS"
	CodeTransactionAlreadySettled    = "TRANSACTION_ALREADY_SETTLED"
	CodeTransactionAlreadyVoid       = "TRANSACTION_ALREADY_VOID"
	CodeTransactionAlreadyRolledBack = "TRANSACTION_ALREADY_ROLLED_BACK"
	CodeTransactionNotRollbackable   = "TRANSACTION_NOT_ROLLBACKABLE"
	CodeCannotCancel                 = "CANNOT_CANCEL"
	CodeInsufficientFund             = "INSUFFICIENT_FUND"
	CodeWalletError                  = "WALLET_ERROR"
	CodeThirdPartyAPIError           = "THIRD_PARTY_API_ERROR"
	CodeTransactionInProgress        = "TRANSACTION_IN_PROGRESS"
	CodeValidation                   = "VALIDATION_ERROR"
	CodeUnauthorized                 = "UNAUTHORIZED"
	CodeInternal                     = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// CodeOf returns the AppError code anywhere in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Standard domain error constructors.

func ErrPlayerNotFound(playID string) *AppError {
	return &AppError{Code: CodePlayerNotFound, Message: fmt.Sprintf("player %s not found", playID), Status: 404}
}

func ErrCredentialsNotFound(provider, currency string) *AppError {
	return &AppError{
		Code:    CodeCredentialsNotFound,
		Message: fmt.Sprintf("no credentials for provider %s currency %s", provider, currency),
		Status:  500,
	}
}

func ErrTransactionNotFound(ref string) *AppError {
	return &AppError{Code: CodeTransactionNotFound, Message: fmt.Sprintf("transaction %s not found", ref), Status: 404}
}

func ErrTransactionAlreadyExists(ref string) *AppError {
	return &AppError{Code: CodeTransactionAlreadyExists, Message: fmt.Sprintf("transaction already exists: %s", ref), Status: 409}
}

func ErrTransactionAlreadySettled(ref string) *AppError {
	return &AppError{Code: CodeTransactionAlreadySettled, Message: fmt.Sprintf("transaction already settled: %s", ref), Status: 409}
}

func ErrTransactionAlreadyVoid(ref string) *AppError {
	return &AppError{Code: CodeTransactionAlreadyVoid, Message: fmt.Sprintf("transaction already void: %s", ref), Status: 409}
}

func ErrTransactionAlreadyRolledBack(ref string) *AppError {
	return &AppError{Code: CodeTransactionAlreadyRolledBack, Message: fmt.Sprintf("transaction already rolled back: %s", ref), Status: 409}
}

// ErrTransactionNotRollbackable is returned for a rollback of a row that was never settled.
func ErrTransactionNotRollbackable(ref string) *AppError {
	return &AppError{Code: CodeTransactionNotRollbackable, Message: fmt.Sprintf("only a settled transaction can be rolled back: %s", ref), Status: 409}
}

func ErrCannotCancel(ref string) *AppError {
	return &AppError{Code: CodeCannotCancel, Message: fmt.Sprintf("transaction cannot be cancelled: %s", ref), Status: 409}
}

func ErrInsufficientFund() *AppError {
	return &AppError{Code: CodeInsufficientFund, Message: "insufficient balance", Status: 400}
}

// ErrWallet wraps a non-success wallet status or a transport failure.
func ErrWallet(msg string, cause error) *AppError {
	return &AppError{Code: CodeWalletError, Message: msg, Status: 502, Cause: cause}
}

func ErrThirdPartyAPI(msg string, cause error) *AppError {
	return &AppError{Code: CodeThirdPartyAPIError, Message: msg, Status: 502, Cause: cause}
}

func ErrTransactionInProgress(ref string) *AppError {
	return &AppError{Code: CodeTransactionInProgress, Message: fmt.Sprintf("transaction %s is being processed", ref), Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
