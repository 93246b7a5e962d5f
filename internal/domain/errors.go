package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a publish failure for the retry policy and the
// executor. Adapters must tag every failure; anything they cannot
// classify defaults to Transient.
type ErrorKind int

const (
	ErrTransient ErrorKind = iota
	ErrPermanent
	ErrRateLimited
	ErrCircuitOpen
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrPermanent:
		return "permanent"
	case ErrRateLimited:
		return "rate_limited"
	case ErrCircuitOpen:
		return "circuit_open"
	}
	return "unknown"
}

// PublishError is the tagged error every platform adapter produces.
// RetryAfter is only meaningful for ErrRateLimited and ErrCircuitOpen.
type PublishError struct {
	Kind       ErrorKind
	Platform   string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Platform, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Message, e.Kind)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func Transient(platform, message string, err error) *PublishError {
	return &PublishError{Kind: ErrTransient, Platform: platform, Message: message, Err: err}
}

func Permanent(platform, message string, err error) *PublishError {
	return &PublishError{Kind: ErrPermanent, Platform: platform, Message: message, Err: err}
}

func RateLimited(platform, message string, retryAfter time.Duration, err error) *PublishError {
	return &PublishError{
		Kind:       ErrRateLimited,
		Platform:   platform,
		Message:    message,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

func CircuitOpen(platform string, retryAfter time.Duration) *PublishError {
	return &PublishError{
		Kind:       ErrCircuitOpen,
		Platform:   platform,
		Message:    fmt.Sprintf("service unavailable, retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as Transient so a missing tag costs one retry
// budget penalty instead of dropping the post.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrTransient
}

// RetryAfterOf returns the provider-supplied delay, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// Retryable reports whether the retry policy may attempt the operation
// again. CircuitOpen is excluded: retrying inside one breaker-rejected
// call would only hammer the open breaker.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrTransient, ErrRateLimited:
		return true
	}
	return false
}
