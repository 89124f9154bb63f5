package media

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by providers, the orchestrator, and monitoring.
//
// Classification happens as close to the network boundary as possible; the
// orchestrator and scheduler only ever inspect these sentinels via errors.Is,
// never raw transport errors.
var (
	// ErrWrongInput means the user-supplied key/link could not be parsed
	// into a valid search key. Never retried.
	ErrWrongInput = errors.New("wrong input")

	// ErrEmptyResults means no content was found. Retriable across
	// providers; final once all providers exhaust.
	ErrEmptyResults = errors.New("empty results")

	// ErrAccountNotExist and ErrAccountIsPrivate are permanent,
	// account-level conditions. Trying another provider cannot help.
	ErrAccountNotExist  = errors.New("account does not exist")
	ErrAccountIsPrivate = errors.New("account is private")

	// ErrProvider is an upstream/provider-level fault. Retriable across
	// providers; if it escapes all of them it is logged as unexpected.
	ErrProvider = errors.New("provider error")

	// ErrTimeout is a provider timeout. Matches ErrProvider via errors.Is.
	ErrTimeout = fmt.Errorf("upstream timeout: %w", ErrProvider)
)

// Permanent reports whether err is an account-level condition that
// short-circuits provider fallback.
func Permanent(err error) bool {
	return errors.Is(err, ErrAccountNotExist) || errors.Is(err, ErrAccountIsPrivate)
}

// Retriable reports whether another provider might still succeed after err.
func Retriable(err error) bool {
	return errors.Is(err, ErrEmptyResults) || errors.Is(err, ErrProvider)
}

// unrecognizedError wraps a fault that is not part of the taxonomy so the
// top-level handler can log it and keep monitoring jobs alive.
type unrecognizedError struct{ err error }

func (e *unrecognizedError) Error() string { return "unrecognized fault: " + e.err.Error() }
func (e *unrecognizedError) Unwrap() error { return e.err }

// WrapUnrecognized marks err as outside the taxonomy. Returns nil for nil.
func WrapUnrecognized(err error) error {
	if err == nil {
		return nil
	}
	return &unrecognizedError{err: err}
}

// Unrecognized reports whether err was wrapped by WrapUnrecognized.
func Unrecognized(err error) bool {
	var u *unrecognizedError
	return errors.As(err, &u)
}
