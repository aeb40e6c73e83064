package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a scheduler error. It doubles as the machine-readable code
// on the HTTP surface.
type Kind string

const (
	KindSlotConflict       Kind = "SLOT_CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidExtension   Kind = "INVALID_EXTENSION"
	KindCapacityExceeded   Kind = "CAPACITY_EXCEEDED"
	KindInvalidRequest     Kind = "INVALID_REQUEST"
	KindStationNotFound    Kind = "STATION_NOT_FOUND"
	KindStationUnavailable Kind = "STATION_UNAVAILABLE"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
)

// Error is returned by every Scheduler operation that fails for a domain
// reason. Message is meant to be shown to the customer as is.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSlotConflict       = &Error{Kind: KindSlotConflict, Message: "This time slot is already booked. Please choose another time."}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "Reservation not found."}
	ErrInvalidExtension   = &Error{Kind: KindInvalidExtension, Message: "This reservation cannot be extended."}
	ErrCapacityExceeded   = &Error{Kind: KindCapacityExceeded, Message: "Too many games selected for this reservation."}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest, Message: "The booking request is invalid."}
	ErrStationNotFound    = &Error{Kind: KindStationNotFound, Message: "Station not found."}
	ErrStationUnavailable = &Error{Kind: KindStationUnavailable, Message: "This station is not available for booking."}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "This action is not allowed for the reservation in its current state."}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of a scheduler error, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
