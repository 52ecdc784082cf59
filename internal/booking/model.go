package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/interval"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

type VisitType string

const (
	VisitExam        VisitType = "exam"
	VisitVaccination VisitType = "vaccination"
	VisitSurgery     VisitType = "surgery"
	VisitDental      VisitType = "dental"
	VisitGrooming    VisitType = "grooming"
	VisitCheckup     VisitType = "checkup"
	VisitEmergency   VisitType = "emergency"
	VisitOther       VisitType = "other"
)

func ParseVisitType(s string) (VisitType, error) {
	switch VisitType(s) {
	case VisitExam, VisitVaccination, VisitSurgery, VisitDental,
		VisitGrooming, VisitCheckup, VisitEmergency, VisitOther:
		return VisitType(s), nil
	}
	return "", ErrInvalidVisitType
}

// Appointment is the central ledger entity. Rows are never deleted;
// cancellation is a status write that releases the slot for overlap checks.
type Appointment struct {
	ID                  uuid.UUID
	ClientID            uuid.UUID
	PatientID           uuid.UUID
	PractitionerID      uuid.UUID
	SecondaryResourceID *uuid.UUID
	Interval            interval.TimeInterval
	Type                VisitType
	Status              Status
	Notes               string
	MedicalRecordID     *uuid.UUID
	InvoiceID           *uuid.UUID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ResourceIDs returns every resource the appointment occupies.
func (a *Appointment) ResourceIDs() []uuid.UUID {
	ids := []uuid.UUID{a.PractitionerID}
	if a.SecondaryResourceID != nil {
		ids = append(ids, *a.SecondaryResourceID)
	}
	return ids
}

// BlocksSlot reports whether the appointment still holds its resources
// for the purposes of the no-overlap invariant.
func (a *Appointment) BlocksSlot() bool {
	return a.Status != StatusCancelled
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
