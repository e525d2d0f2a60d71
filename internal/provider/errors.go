package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode classifies provider failures for fallback routing and
// account-pool outcomes.
type ErrorCode string

const (
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeRateLimit   ErrorCode = "RATE_LIMIT"
	ErrCodeAuth        ErrorCode = "AUTH"
	ErrCodeServer      ErrorCode = "SERVER"
	ErrCodeMalformed   ErrorCode = "MALFORMED"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Error is the typed failure every provider implementation returns.
// Temporary errors fall through to the next provider; permanent ones
// disable the account that produced them.
type Error struct {
	Provider  string
	Code      ErrorCode
	Message   string
	Temporary bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %s: %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a typed provider error.
func NewError(providerName string, code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Provider:  providerName,
		Code:      code,
		Message:   msg,
		Temporary: code != ErrCodeAuth,
		Cause:     cause,
	}
}

// Classify maps an arbitrary error from a provider call onto the error
// taxonomy. Unknown errors are treated as transient server failures so a
// single misbehaving provider never aborts the batch.
func Classify(providerName string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(providerName, ErrCodeTimeout, "request deadline exceeded", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return NewError(providerName, ErrCodeTimeout, "network timeout", err)
	}
	return NewError(providerName, ErrCodeServer, "unclassified provider failure", err)
}

// Outcome is reported back to the account pool after every call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeAuthError
	OutcomeServerError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAuthError:
		return "auth_error"
	case OutcomeServerError:
		return "server_error"
	}
	return "unknown"
}

// OutcomeForError maps a classified error onto the pool outcome that
// should be recorded against the account that made the call.
func OutcomeForError(err *Error) Outcome {
	switch err.Code {
	case ErrCodeRateLimit:
		return OutcomeRateLimited
	case ErrCodeAuth:
		return OutcomeAuthError
	default:
		return OutcomeServerError
	}
}
