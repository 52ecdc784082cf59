package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/clinical"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

type CreateBookingRequest struct {
	ClientID       string    `json:"client_id"`
	PatientID      string    `json:"patient_id"`
	PractitionerID string    `json:"practitioner_id"`
	ResourceID     string    `json:"resource_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Type           string    `json:"type"`
	Notes          string    `json:"notes,omitempty"`
}

type RescheduleBookingRequest struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	ResourceID     string    `json:"resource_id,omitempty"`
	ClearResource  bool      `json:"clear_resource,omitempty"`
}

type TransitionRequest struct {
	To string `json:"to"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ClientID        uuid.UUID  `json:"client_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PractitionerID  uuid.UUID  `json:"practitioner_id"`
	ResourceID      *uuid.UUID `json:"resource_id,omitempty"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	MedicalRecordID *uuid.UUID `json:"medical_record_id,omitempty"`
	InvoiceID       *uuid.UUID `json:"invoice_id,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ClientID:        a.ClientID,
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		ResourceID:      a.SecondaryResourceID,
		Start:           a.Interval.Start,
		End:             a.Interval.End,
		Type:            string(a.Type),
		Status:          string(a.Status),
		Notes:           a.Notes,
		MedicalRecordID: a.MedicalRecordID,
		InvoiceID:       a.InvoiceID,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type PutMedicalRecordRequest struct {
	AppointmentID string           `json:"appointment_id"`
	Subjective    string           `json:"subjective"`
	Objective     string           `json:"objective"`
	Assessment    string           `json:"assessment"`
	Plan          string           `json:"plan"`
	Cost          *decimal.Decimal `json:"cost,omitempty"`
}

type MedicalRecordResponse struct {
	ID            uuid.UUID        `json:"id"`
	AppointmentID uuid.UUID        `json:"appointment_id"`
	PatientID     uuid.UUID        `json:"patient_id"`
	Subjective    string           `json:"subjective"`
	Objective     string           `json:"objective"`
	Assessment    string           `json:"assessment"`
	Plan          string           `json:"plan"`
	Cost          *decimal.Decimal `json:"cost,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toRecordResponse(rec *clinical.MedicalRecord) MedicalRecordResponse {
	return MedicalRecordResponse{
		ID:            rec.ID,
		AppointmentID: rec.AppointmentID,
		PatientID:     rec.PatientID,
		Subjective:    rec.Subjective,
		Objective:     rec.Objective,
		Assessment:    rec.Assessment,
		Plan:          rec.Plan,
		Cost:          rec.Cost,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

type CreateInvoiceRequest struct {
	AppointmentID string          `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
}

type InvoiceResponse struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	IssueDate     time.Time       `json:"issue_date"`
}

func toInvoiceResponse(inv *clinical.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		AppointmentID: inv.AppointmentID,
		Amount:        inv.Amount,
		Status:        string(inv.Status),
		IssueDate:     inv.IssueDate,
	}
}

type CreateResourceRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type ResourceResponse struct {
	ID      uuid.UUID `json:"id"`
	Kind    string    `json:"kind"`
	Name    string    `json:"name"`
	Retired bool      `json:"retired"`
}

func toResourceResponse(r *registry.Resource) ResourceResponse {
	return ResourceResponse{
		ID:      r.ID,
		Kind:    string(r.Kind),
		Name:    r.Name,
		Retired: r.Retired,
	}
}

type ErrorResponse struct {
	Error                    string     `json:"error"`
	Details                  string     `json:"details,omitempty"`
	ResourceID               *uuid.UUID `json:"resource_id,omitempty"`
	ConflictingAppointmentID *uuid.UUID `json:"conflicting_appointment_id,omitempty"`
}
