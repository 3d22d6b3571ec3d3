package ledger

import (
	"errors"
	"fmt"
)

// HostErrorCode categorizes host errors.
type HostErrorCode string

const (
	// ErrCodeNotInitialized indicates a call before the contract's init.
	ErrCodeNotInitialized HostErrorCode = "NOT_INITIALIZED"

	// ErrCodeAlreadyInitialized indicates a second init call.
	ErrCodeAlreadyInitialized HostErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeUnknownMethod indicates a method missing from the ABI.
	ErrCodeUnknownMethod HostErrorCode = "UNKNOWN_METHOD"

	// ErrCodeInvalidArgs indicates arguments that do not match the method signature.
	ErrCodeInvalidArgs HostErrorCode = "INVALID_ARGS"

	// ErrCodeNotAView indicates View was asked to run a mutating method.
	ErrCodeNotAView HostErrorCode = "NOT_A_VIEW"

	// ErrCodeNotACall indicates Call was asked to run a view method.
	ErrCodeNotACall HostErrorCode = "NOT_A_CALL"
)

// HostError is returned when the host rejects a call before running it.
type HostError struct {
	Code    HostErrorCode
	Message string
	Method  string
}

func (e *HostError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s)", e.Code, e.Message, e.Method)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsHostError returns true if err is a HostError with the given code.
// Uses errors.As to handle wrapped errors.
func IsHostError(err error, code HostErrorCode) bool {
	var he *HostError
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

func newHostError(code HostErrorCode, method, format string, args ...any) *HostError {
	return &HostError{Code: code, Method: method, Message: fmt.Sprintf(format, args...)}
}
