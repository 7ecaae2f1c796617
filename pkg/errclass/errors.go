package errclass

import "fmt"

// Error is a stable, machine-readable error class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	ErrNotFound             = &Error{Code: "E_NOT_FOUND"}
	ErrParse                = &Error{Code: "E_PARSE"}
	ErrIO                   = &Error{Code: "E_IO"}
	ErrConcurrencyViolation = &Error{Code: "E_CONCURRENCY_VIOLATION"}
	ErrAlreadyExists        = &Error{Code: "E_ALREADY_EXISTS"}
	ErrNoPrimaryDisplay     = &Error{Code: "E_NO_PRIMARY_DISPLAY"}
	ErrNameInvalid          = &Error{Code: "E_NAME_INVALID"}
	ErrConfigInvalid        = &Error{Code: "E_CONFIG_INVALID"}
)
