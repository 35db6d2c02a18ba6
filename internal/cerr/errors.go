// Package cerr defines the error categories the runtime uses at its
// configuration, initialization, and runtime boundaries.
package cerr

import "errors"

// Category distinguishes fail-fast startup errors from runtime errors that
// get wrapped into error messages and routed to an error flow.
type Category int

const (
	// Config marks a malformed or inconsistent configuration document.
	Config Category = iota
	// Init marks a failure bringing up a broker, component, or flow.
	Init
	// Runtime marks a transient or terminal failure while processing a message.
	Runtime
)

func (c Category) String() string {
	switch c {
	case Config:
		return "config"
	case Init:
		return "init"
	case Runtime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the category it belongs to, so
// callers can decide fail-fast vs. route-to-error-flow handling with
// errors.As.
type Error struct {
	Category  Category
	Op        string
	Err       error
	// Transient marks a Runtime error as likely to succeed on redelivery
	// (outcome FAILED); unset (the default) means terminal (REJECTED).
	Transient bool
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Category.String() + ": " + e.Err.Error()
	}
	return e.Category.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(cat Category, op string, err error) *Error {
	return &Error{Category: cat, Op: op, Err: err}
}

// NewTransient builds a Runtime error marked transient, so the component
// runtime settles the original message with outcome FAILED (redelivery
// may help) instead of the terminal default REJECTED.
func NewTransient(op string, err error) *Error {
	return &Error{Category: Runtime, Op: op, Err: err, Transient: true}
}

// Sentinel errors surfaced by the request/response correlator and session
// manager.
var (
	ErrSessionNotFound     = errors.New("rrc: session not found")
	ErrSessionLimitReached = errors.New("rrc: session limit exceeded")
	ErrRequestTimeout      = errors.New("rrc: request timed out waiting for response")
	ErrCorrelatorClosed    = errors.New("rrc: correlator closed")
)

// IsTimeout reports whether err is (or wraps) a request timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrRequestTimeout) }

// IsSessionNotFound reports whether err is (or wraps) a missing session.
func IsSessionNotFound(err error) bool { return errors.Is(err, ErrSessionNotFound) }
