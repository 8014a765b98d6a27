package xlapi

import "fmt"

// Error codes reported by the client itself. Upstream reason codes
// (e.g. BALANCE_INSUFFICIENT) are carried verbatim in Error.Reason.
const (
	ErrCodeRequest  = "REQUEST_FAILED"
	ErrCodeStatus   = "UNEXPECTED_STATUS"
	ErrCodeDecode   = "DECODE_FAILED"
	ErrCodeRejected = "REJECTED"
)

// Error is returned by every Client operation.
type Error struct {
	Op      string
	Status  int
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("xlapi %s: %s", e.Op, e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Code exposes the reason for handler log summaries.
func (e *Error) Code() string {
	return e.Reason
}

func newError(op, reason, message string, status int, cause error) *Error {
	return &Error{Op: op, Status: status, Reason: reason, Message: message, Cause: cause}
}
