package entity

import (
	"errors"
	"fmt"
)

var (
	// Ticket errors
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketAlreadyExists = errors.New("ticket already exists")

	// Vehicle errors
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrActiveVehicleExists = errors.New("ticket already has an active vehicle")

	// Payment errors
	ErrPaymentNotFound = errors.New("payment not found")

	// History errors
	ErrHistoryNotFound = errors.New("history entry not found")

	// Staff errors
	ErrStaffNotFound      = errors.New("staff member not found")
	ErrStaffAlreadyExists = errors.New("staff member already exists")

	// Settings errors
	ErrSettingsNotFound = errors.New("company settings not found")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
	// ErrStaleWrite is returned by conditional updates when the record is no
	// longer in the expected state.
	ErrStaleWrite   = errors.New("record changed concurrently")
	ErrUnauthorized = errors.New("unauthorized access")
)

// Kind classifies an error for callers; transport maps it to a status code.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Conflict and validation reasons.
const (
	ReasonTicketMissing         = "ticket_missing"
	ReasonTicketNotAvailable    = "ticket_not_available"
	ReasonTicketAlreadyAssigned = "ticket_already_assigned"
	ReasonTicketRaceLost        = "ticket_race_lost"
	ReasonInvalidTransition     = "invalid_transition"
	ReasonVehicleState          = "vehicle_state"
	ReasonPaymentRejected       = "payment_rejected"
	ReasonConcurrentUpdate      = "concurrent_update"
	ReasonDuplicate             = "duplicate"

	ReasonRequired      = "required"
	ReasonInvalidAmount = "invalid_amount"
	ReasonInvalidID     = "invalid_id"
	ReasonNoteTooShort  = "note_too_short"

	ReasonNotFound = "not_found"
	ReasonInternal = "internal"
)

// Error is the error type returned by the lifecycle engine and the services
// around it.
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// NotFound wraps a repository sentinel such as ErrTicketNotFound.
func NotFound(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: ReasonNotFound, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Internal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Reason: ReasonInternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Wrap attaches a cause to e and returns e.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// TransitionConflict names the current and the expected status of a record.
func TransitionConflict(record, key string, current interface{}, expected ...interface{}) *Error {
	return Conflict(ReasonInvalidTransition, "%s %s is %v, expected %v", record, key, current, expected)
}

// KindOf classifies err. Bare not-found sentinels count as not found,
// everything unrecognised as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrVehicleNotFound),
		errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrHistoryNotFound),
		errors.Is(err, ErrStaffNotFound):
		return KindNotFound
	case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrActiveVehicleExists),
		errors.Is(err, ErrTicketAlreadyExists), errors.Is(err, ErrStaffAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	}
	return KindInternal
}

// ReasonOf returns the machine readable reason of err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	switch KindOf(err) {
	case KindNotFound:
		return ReasonNotFound
	case KindConflict:
		return ReasonConcurrentUpdate
	case KindValidation:
		return ReasonRequired
	}
	return ReasonInternal
}
