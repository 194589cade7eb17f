package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for phase-level policy decisions.
type ErrorKind string

const (
	// ErrKindTransient covers network errors, 5xx, and 429 responses. The
	// API client retries these; callers only see them once retries exhaust.
	ErrKindTransient ErrorKind = "transient"
	// ErrKindPermanent covers 4xx (except 429) and schema mismatches.
	ErrKindPermanent ErrorKind = "permanent"
	// ErrKindNotFound covers expected resolver misses.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindMalformed covers undecodable upstream payloads.
	ErrKindMalformed ErrorKind = "malformed"
	// ErrKindContractViolation covers invalid inputs such as a malformed
	// rsID or an empty gene symbol.
	ErrKindContractViolation ErrorKind = "contract_violation"
	// ErrKindCancelled marks context cancellation. Not an error policy-wise:
	// the run returns partial but well-formed results.
	ErrKindCancelled ErrorKind = "cancelled"
	// ErrKindTerminal marks gene-level failure, e.g. UniProt resolution
	// failing for the only requested gene.
	ErrKindTerminal ErrorKind = "terminal"
)

// UpstreamError is the typed error returned by the API client and upstream
// service clients.
type UpstreamError struct {
	Kind       ErrorKind
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Kind, e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewTransientError wraps a retryable upstream failure.
func NewTransientError(service string, status int, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrKindTransient, Service: service, StatusCode: status, Message: messageOf(err), Err: err}
}

// NewPermanentError wraps a non-retryable upstream failure.
func NewPermanentError(service string, status int, body string) *UpstreamError {
	return &UpstreamError{Kind: ErrKindPermanent, Service: service, StatusCode: status, Message: body}
}

// NewNotFoundError marks an expected resolver miss.
func NewNotFoundError(service, what string) *UpstreamError {
	return &UpstreamError{Kind: ErrKindNotFound, Service: service, Message: what + " not found"}
}

// NewMalformedError wraps a decode failure.
func NewMalformedError(service string, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrKindMalformed, Service: service, Message: messageOf(err), Err: err}
}

// NewContractViolation marks an invalid single input that is skipped while
// processing continues with the rest.
func NewContractViolation(field, message string) *UpstreamError {
	return &UpstreamError{Kind: ErrKindContractViolation, Service: field, Message: message}
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf extracts the error kind, defaulting to transient for untyped errors
// so callers degrade rather than abort.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, ErrCancelled) {
		return ErrKindCancelled
	}
	return ErrKindTransient
}

// IsNotFound reports whether err is an expected resolver miss.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// ErrCancelled is returned when a run is cancelled mid-flight.
var ErrCancelled = errors.New("cancelled")
