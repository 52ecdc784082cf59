package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidStatus       = errors.New("invalid appointment status")
	ErrInvalidVisitType    = errors.New("invalid visit type")
	ErrPatientDeceased     = errors.New("patient is deceased, new bookings are blocked")
	ErrWrongResourceKind   = errors.New("resource kind does not match its role in the booking")
	ErrStaleAppointment    = errors.New("appointment changed concurrently, retry")
)

// ConflictError reports an interval overlap on a shared resource. It
// carries the blocking resource and appointment so the caller can pick a
// different slot or resource.
type ConflictError struct {
	ResourceID    uuid.UUID
	ConflictingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s is already booked by appointment %s", e.ResourceID, e.ConflictingID)
}

// TransitionError reports a status change the lifecycle table does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
