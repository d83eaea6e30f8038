package walletmodel

import "fmt"

// UserInputError wraps a failure caused by a bad caller request: malformed
// address, wrong password, insufficient funds, and the like. Callers surface
// its message verbatim.
type UserInputError struct {
	msg string
	err error
}

func NewUserInputError(format string, args ...interface{}) *UserInputError {
	return &UserInputError{msg: fmt.Sprintf(format, args...)}
}

func WrapUserInputError(err error, format string, args ...interface{}) *UserInputError {
	return &UserInputError{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *UserInputError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *UserInputError) Unwrap() error { return e.err }

// InternalServerError wraps an infrastructure failure: node RPC error, file
// I/O failure, a derivation failure on an otherwise-valid path, a malformed
// key file. It is logged and surfaced to the caller as a generic failure.
type InternalServerError struct {
	msg string
	err error
}

func NewInternalServerError(format string, args ...interface{}) *InternalServerError {
	return &InternalServerError{msg: fmt.Sprintf(format, args...)}
}

func WrapInternalServerError(err error, format string, args ...interface{}) *InternalServerError {
	return &InternalServerError{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *InternalServerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *InternalServerError) Unwrap() error { return e.err }

// SanityCheckFailed indicates a signed transaction failed local consensus
// verification. This always signals a bug in the daemon, never a user
// mistake; the daemon refuses to broadcast.
type SanityCheckFailed struct {
	msg string
	err error
}

func NewSanityCheckFailed(format string, args ...interface{}) *SanityCheckFailed {
	return &SanityCheckFailed{msg: fmt.Sprintf(format, args...)}
}

func WrapSanityCheckFailed(err error, format string, args ...interface{}) *SanityCheckFailed {
	return &SanityCheckFailed{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *SanityCheckFailed) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *SanityCheckFailed) Unwrap() error { return e.err }
