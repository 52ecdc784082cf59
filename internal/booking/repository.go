package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/interval"
)

// Repository contains all ledger persistence needed by the service.
// Implementations must make each method atomically visible: readers never
// observe a half-written appointment.
type Repository interface {
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindOverlapping returns one non-cancelled appointment occupying the
	// resource anywhere inside iv, or ErrAppointmentNotFound. exclude, when
	// non-nil, is skipped so a reschedule does not collide with itself.
	FindOverlapping(ctx context.Context, resourceID uuid.UUID, iv interval.TimeInterval, exclude *uuid.UUID) (*Appointment, error)

	// UpdateStatus is a compare-and-set on the current status. A row whose
	// status is no longer `from` is reported as ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// UpdateSlot rewrites interval and resources in a single statement.
	UpdateSlot(ctx context.Context, id uuid.UUID, iv interval.TimeInterval, practitionerID uuid.UUID, secondaryID *uuid.UUID) (*Appointment, error)

	FindByResourceAndRange(ctx context.Context, resourceID uuid.UUID, iv interval.TimeInterval) ([]Appointment, error)
	FindNext(ctx context.Context, practitionerID *uuid.UUID, after time.Time) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// FindOverdue lists scheduled/confirmed appointments whose end passed
	// before the cutoff; consumed by the no-show worker.
	FindOverdue(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
