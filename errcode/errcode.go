// Package errcode defines the (category, code) error taxonomy driver
// implementations report through: transport, protocol, timeout, and
// cancellation failures, each carrying a stable numeric code within its
// category.
package errcode

import "fmt"

// Category names a broad class of driver failure.
type Category string

const (
	Transport Category = "transport"
	Protocol  Category = "protocol"
	Timeout   Category = "timeout"
	Cancelled Category = "cancelled"
)

// Code identifies a specific error within a Category. Num is driver-defined;
// 0 is reserved for "unspecified".
type Code struct {
	Category Category
	Num      int
}

// Error implements the error interface so a Code can be returned, wrapped,
// and compared against directly.
func (c Code) Error() string {
	return fmt.Sprintf("%s error %d", c.Category, c.Num)
}

// codeErr wraps a Code with additional context, preserving Is-comparability
// against the bare Code via errors.As/errors.Is through Unwrap.
type codeErr struct {
	code Code
	msg  string
}

func (e *codeErr) Error() string { return e.msg }
func (e *codeErr) Unwrap() error { return e.code }

// New builds an error carrying code with a caller-supplied message,
// comparable against code via Is.
func New(code Code, msg string) error {
	return &codeErr{code: code, msg: msg}
}

// Is reports whether err is, or wraps, exactly code.
func Is(err error, code Code) bool {
	for err != nil {
		if c, ok := err.(Code); ok {
			return c == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

var (
	// ErrWouldBlock is returned by driver.TryAwaitNotification (and
	// driver.PollNotification, once its attempts are exhausted) when a
	// non-blocking poll finds nothing ready, mirroring
	// code.hybscloud.com/iox's non-blocking I/O contract.
	ErrWouldBlock = New(Code{Category: Protocol, Num: 1}, "operation would block")
)
