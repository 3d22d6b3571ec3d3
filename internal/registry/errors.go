package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the only failure kind of the registry.
// Use errors.Is(err, ErrInvalidInput) to match an *InputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidCIDMessage is the rejection message for a CID that fails validation.
// It names a 'bafy' prefix even though the default check only rejects
// empty input; the wording is kept for compatibility with existing clients.
const InvalidCIDMessage = "Invalid CID format. Must be a valid IPFS CID starting with 'bafy'."

// InputError reports a rejected argument. The call that produced it had no effect.
type InputError struct {
	Field   string
	Message string
	Value   string
}

func (e *InputError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrInvalidInput) true for every InputError.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Detail returns the message with the offending field and value.
func (e *InputError) Detail() string {
	return fmt.Sprintf("%s (%s=%q)", e.Message, e.Field, e.Value)
}

func newInvalidCID(cid string) *InputError {
	return &InputError{Field: "cid", Message: InvalidCIDMessage, Value: cid}
}

// IsInvalidInput returns true if err is (or wraps) an InputError.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
