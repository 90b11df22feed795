package response

import (
	"errors"
)

// Error is a domain error that carries the HTTP status it should be answered
// with. Wrap it with fmt.Errorf("%w: ...") to attach a cause; only the
// message of the Error itself is shown to clients.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Err: errors.New(err)}
}
