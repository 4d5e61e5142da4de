package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Lookup errors
	ErrNotFound                 = errors.New("not found")
	ErrTemplateNotFound         = fmt.Errorf("time slot template %w", ErrNotFound)
	ErrSessionTypeNotFound      = fmt.Errorf("session type %w", ErrNotFound)
	ErrAllocationNotFound       = fmt.Errorf("allocation %w", ErrNotFound)
	ErrBundleNotFound           = fmt.Errorf("bundle %w", ErrNotFound)
	ErrReservationNotFound      = fmt.Errorf("reservation %w", ErrNotFound)
	ErrGroupReservationNotFound = fmt.Errorf("group reservation %w", ErrNotFound)
	ErrWebhookNotFound          = fmt.Errorf("webhook %w", ErrNotFound)

	// Admission errors
	ErrNotAvailable     = errors.New("allocation is not available for booking")
	ErrCapacityExceeded = errors.New("allocation capacity exceeded")
	ErrDuplicateBooking = errors.New("holder already has an active reservation on this allocation")
	ErrLedgerExhausted  = errors.New("bundle has no remaining credits")

	// Internal: version mismatch on a conditional update, retried by the coordinator
	ErrConcurrencyConflict = errors.New("concurrent update detected")

	// Notification errors
	ErrDeliveryFailure   = errors.New("webhook delivery failed")
	ErrDeliveryExhausted = errors.New("webhook delivery attempts exhausted")

	// General errors
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid reservation status transition")
)

// ErrorKind is the caller-facing classification of an error.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NotFound"
	KindNotAvailable        ErrorKind = "NotAvailable"
	KindCapacityExceeded    ErrorKind = "CapacityExceeded"
	KindDuplicateBooking    ErrorKind = "DuplicateBooking"
	KindLedgerExhausted     ErrorKind = "LedgerExhausted"
	KindConcurrencyConflict ErrorKind = "ConcurrencyConflict"
	KindInvalidInput        ErrorKind = "InvalidInput"
	KindInvalidTransition   ErrorKind = "InvalidTransition"
	KindDeliveryFailure     ErrorKind = "DeliveryFailure"
	KindDeliveryExhausted   ErrorKind = "DeliveryExhausted"
	KindTimeout             ErrorKind = "Timeout"
	KindInternal            ErrorKind = "Internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrNotAvailable, KindNotAvailable},
	{ErrCapacityExceeded, KindCapacityExceeded},
	{ErrDuplicateBooking, KindDuplicateBooking},
	{ErrLedgerExhausted, KindLedgerExhausted},
	{ErrConcurrencyConflict, KindConcurrencyConflict},
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrDeliveryExhausted, KindDeliveryExhausted},
	{ErrDeliveryFailure, KindDeliveryFailure},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf classifies err. Anything outside the taxonomy is Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// InvalidInput wraps a validation message with ErrInvalidInput.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
