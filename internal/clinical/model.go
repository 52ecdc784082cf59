package clinical

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRecordNotFound       = errors.New("medical record not found")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceExists        = errors.New("appointment already has an invoice")
	ErrNegativeAmount       = errors.New("invoice amount must not be negative")
	ErrInvalidInvoiceStatus = errors.New("invalid invoice status")
)

type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceUnpaid, InvoicePaid:
		return InvoiceStatus(s), nil
	}
	return "", ErrInvalidInvoiceStatus
}

// MedicalRecord is the SOAP note owned by exactly one appointment.
// PatientID is denormalized from the appointment for history queries;
// the visit date is not stored here and comes from the owning
// appointment's interval.
type MedicalRecord struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Subjective    string
	Objective     string
	Assessment    string
	Plan          string
	Cost          *decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordFields is the writable part of a medical record.
type RecordFields struct {
	Subjective string
	Objective  string
	Assessment string
	Plan       string
	Cost       *decimal.Decimal
}

// Invoice is the financial record owned by exactly one appointment.
// Amount is immutable here; amendments go through a separate path.
type Invoice struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Status        InvoiceStatus
	IssueDate     time.Time
	CreatedAt     time.Time
}
