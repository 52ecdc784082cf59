package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository contains the clinical persistence consumed by the service.
// Implementations must keep the appointment back-references write-once:
// the first attach sets them, nothing ever rewrites them.
type Repository interface {
	// GetAppointmentPatient resolves the owning appointment, returning its
	// patient id for denormalization. Missing appointments surface as
	// booking.ErrAppointmentNotFound.
	GetAppointmentPatient(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error)

	// UpsertMedicalRecord creates the record on first attach (also setting
	// appointments.medical_record_id) and updates its fields afterwards.
	UpsertMedicalRecord(ctx context.Context, appointmentID, patientID uuid.UUID, fields RecordFields) (*MedicalRecord, error)
	GetRecordByAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error)

	// ListRecordsByPatient joins through appointments, ordered by the
	// owning appointment's start descending.
	ListRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]MedicalRecord, error)

	// CreateInvoice fails with ErrInvoiceExists when the appointment
	// already has one.
	CreateInvoice(ctx context.Context, appointmentID uuid.UUID, amount decimal.Decimal, status InvoiceStatus, issueDate time.Time) (*Invoice, error)
	GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error)

	// UpdateInvoiceStatus is a compare-and-set; no matching row is
	// reported as ErrInvoiceNotFound.
	UpdateInvoiceStatus(ctx context.Context, appointmentID uuid.UUID, from, to InvoiceStatus) (*Invoice, error)
}
