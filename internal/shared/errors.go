// Package shared contains the error taxonomy used across the bot.
//
// Sentinel errors describe failure categories; Kind gives callers a single value to
// switch on. Every error produced by the store, the reminder core and the platform
// adapters wraps one of the sentinels with %w, so both errors.Is and KindOf work
// through any number of wrapping layers:
//
//	if err := registry.Add(ctx, id); err != nil {
//	    switch shared.KindOf(err) {
//	    case shared.KindValidation:
//	        // bad identity
//	    case shared.KindPersistence:
//	        // state could not be written, ask the user to retry
//	    }
//	}
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrValidation indicates that input validation failed.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrPersistence marks IO failures while reading or writing durable state.
	ErrPersistence = errors.New("persistence failure")

	// ErrStateCorruption marks persisted values that cannot be decoded.
	ErrStateCorruption = errors.New("state corruption")

	// ErrDelivery marks a failed delivery to a single subscriber.
	ErrDelivery = errors.New("delivery failed")

	// ErrResolution marks a failed display context lookup.
	ErrResolution = errors.New("resolution failed")
)

// Kind represents a category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTimeout
	KindCanceled
	KindPersistence
	KindStateCorruption
	KindDelivery
	KindResolution
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	case KindPersistence:
		return "Persistence"
	case KindStateCorruption:
		return "StateCorruption"
	case KindDelivery:
		return "Delivery"
	case KindResolution:
		return "Resolution"
	default:
		return "Unknown"
	}
}

// kindPriorities is the order KindOf checks the chain in. Cancellation and timeouts
// come first so that a delivery aborted by a deadline reports as a timeout.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindValidation, ErrValidation},
	{KindStateCorruption, ErrStateCorruption},
	{KindPersistence, ErrPersistence},
	{KindResolution, ErrResolution},
	{KindDelivery, ErrDelivery},
}

// KindOf returns the Kind of err by walking its chain in priority order.
// For errors.Join values the highest priority match wins.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		switch p.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, p.err) {
				return p.kind
			}
		}
	}
	return KindUnknown
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func SentinelOf(kind Kind) error {
	for _, p := range kindPriorities {
		if p.kind == kind {
			return p.err
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel for kind while keeping err in the chain.
// Marking an error that already has kind returns it unchanged.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap returns "context: err". It returns nil for a nil err and err for an empty context.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err is a context cancellation.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a deadline, ErrTimeout or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }

// IsDelivery reports whether err is a per-subscriber delivery failure.
func IsDelivery(err error) bool { return errors.Is(err, ErrDelivery) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
