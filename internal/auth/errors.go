package auth

import "fmt"

// Error is a fatal authentication failure. Auth errors terminate the whole
// run: retrying a rejected login risks locking the account.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func authErr(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func authErrf(op, format string, args ...any) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}
