package httpx

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fetch failure for retry decisions.
type ErrorKind int

const (
	// Transient covers timeouts, connection errors, and 429/5xx responses.
	// The executor retries these locally; past the adapter boundary they
	// mean "source unavailable this run", never run-fatal.
	Transient ErrorKind = iota
	// Permanent covers non-retryable responses (4xx other than 429).
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

type FetchError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s fetch error (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s fetch error (status %d): %v", e.Kind, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Transient
}

// IsPermanent reports whether err is a non-retryable fetch failure.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Permanent
}
