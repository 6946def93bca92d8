package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure that leaves a service is one of these, either
// directly or wrapped by *Error / *StockError.
var (
	ErrNotFound                  = errors.New("not found")
	ErrValidation                = errors.New("validation failed")
	ErrStockConflict             = errors.New("stock conflict")
	ErrCartPolicyConflict        = errors.New("cart policy conflict")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrReportConflict            = errors.New("report consistency conflict")
	ErrStateConflict             = errors.New("order state conflict")
)

// Error is a typed failure carrying a user-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func CartPolicy(format string, args ...any) error {
	return newError(ErrCartPolicyConflict, format, args...)
}

func PaymentVerification(format string, args ...any) error {
	return newError(ErrPaymentVerificationFailed, format, args...)
}

func StateConflict(format string, args ...any) error {
	return newError(ErrStateConflict, format, args...)
}

func ReportConflict(format string, args ...any) error {
	return newError(ErrReportConflict, format, args...)
}

// StockError reports a stock shortfall. Available is -1 when the remaining
// quantity is unknown (e.g. an oversold conditional update).
type StockError struct {
	ItemID    string
	Kind      Kind
	Requested int
	Available int
	Message   string
}

func (e *StockError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Available >= 0 {
		return fmt.Sprintf("Only %d unit(s) available", e.Available)
	}
	return fmt.Sprintf("%s item %s oversold: %d unit(s) requested", e.Kind, e.ItemID, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrStockConflict
}

// Message returns the user-facing text of err when it is one of the typed
// domain errors, and a generic message otherwise.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	var se *StockError
	if errors.As(err, &se) {
		return se.Error()
	}
	return "internal error"
}
