package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrCarroNotFound is returned by FinalizeCarro when the cart is in neither the
// session's working set nor the finalized collection.
var ErrCarroNotFound = errors.New("carro not found")

// ValidationKind classifies a rejected write.
type ValidationKind string

const (
	DuplicateInvoice    ValidationKind = "DuplicateInvoice"
	NegativeVolume      ValidationKind = "NegativeVolume"
	MissingInvoice      ValidationKind = "MissingInvoice"
	InvalidSessionID    ValidationKind = "InvalidSessionID"
	DuplicateCarro      ValidationKind = "DuplicateCarro"
	MissingCarro        ValidationKind = "MissingCarro"
	InvalidRole         ValidationKind = "InvalidRole"
	MissingConversation ValidationKind = "MissingConversation"
	MissingUsuario      ValidationKind = "MissingUsuario"
)

// ValidationError reports input rejected before anything was written.
type ValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("validation failed (%s) on %s: %s", e.Kind, e.Field, e.Detail)
}

// TransportError wraps a datastore failure: I/O, timeout or cancellation.
// The write may or may not have been applied; retrying the same call is safe.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable is always true; the store never retries on its own.
func (e *TransportError) Retryable() bool {
	return true
}

// Timeout reports whether the call ran out of time.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsValidation reports whether err is a *ValidationError, optionally of one of kinds.
func IsValidation(err error, kinds ...ValidationKind) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if ve.Kind == k {
			return true
		}
	}
	return false
}

// IsTransport reports whether err is a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
