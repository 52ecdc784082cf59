package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
)

const (
	EventRecordAttached = "RECORD_ATTACHED"
	EventInvoiceIssued  = "INVOICE_ISSUED"
	EventInvoicePaid    = "INVOICE_PAID"
)

// EventSink appends audit rows; the booking repository satisfies it.
type EventSink interface {
	InsertEvent(ctx context.Context, ev booking.EventLog) error
}

type AttachRecordInput struct {
	AppointmentID uuid.UUID
	Subjective    string
	Objective     string
	Assessment    string
	Plan          string
	Cost          *decimal.Decimal
}

// Service links clinical and financial records to appointments: at most
// one medical record and at most one invoice per appointment.
type Service struct {
	repo   Repository
	events EventSink
	logger zerolog.Logger
}

func NewService(repo Repository, events EventSink, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		logger: logger.With().Str("component", "clinical").Logger(),
	}
}

// AttachMedicalRecord creates the appointment's SOAP record on first call
// and updates it on every later call: one record per appointment, saves
// are idempotent upserts. It works in any appointment status, since
// documentation must remain possible after completion.
func (s *Service) AttachMedicalRecord(ctx context.Context, in AttachRecordInput) (*MedicalRecord, error) {
	if in.Cost != nil && in.Cost.IsNegative() {
		return nil, ErrNegativeAmount
	}

	patientID, err := s.repo.GetAppointmentPatient(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.UpsertMedicalRecord(ctx, in.AppointmentID, patientID, RecordFields{
		Subjective: in.Subjective,
		Objective:  in.Objective,
		Assessment: in.Assessment,
		Plan:       in.Plan,
		Cost:       in.Cost,
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, in.AppointmentID, EventRecordAttached, map[string]any{
		"record_id": rec.ID.String(),
	})
	return rec, nil
}

// AttachInvoice issues the appointment's invoice. Unlike medical records
// there is no silent overwrite: a second invoice fails with
// ErrInvoiceExists, amendments need an explicit path elsewhere.
func (s *Service) AttachInvoice(ctx context.Context, appointmentID uuid.UUID, amount decimal.Decimal, status InvoiceStatus) (*Invoice, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if _, err := ParseInvoiceStatus(string(status)); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetAppointmentPatient(ctx, appointmentID); err != nil {
		return nil, err
	}

	inv, err := s.repo.CreateInvoice(ctx, appointmentID, amount, status, time.Now())
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appointmentID, EventInvoiceIssued, map[string]any{
		"invoice_id": inv.ID.String(),
		"amount":     inv.Amount.String(),
	})
	return inv, nil
}

// MarkInvoicePaid flips an unpaid invoice to paid. Already-paid invoices
// are returned as-is so retried payment callbacks stay harmless.
func (s *Service) MarkInvoicePaid(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.UpdateInvoiceStatus(ctx, appointmentID, InvoiceUnpaid, InvoicePaid)
	if err == nil {
		s.logEvent(ctx, appointmentID, EventInvoicePaid, map[string]any{
			"invoice_id": inv.ID.String(),
		})
		return inv, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}

	existing, getErr := s.repo.GetInvoiceByAppointment(ctx, appointmentID)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == InvoicePaid {
		return existing, nil
	}
	return nil, err
}

func (s *Service) InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	return s.repo.GetInvoiceByAppointment(ctx, appointmentID)
}

func (s *Service) RecordForAppointment(ctx context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	return s.repo.GetRecordByAppointment(ctx, appointmentID)
}

// PatientHistory pages through the patient's records, newest visit first.
// Ordering comes from the owning appointment's start time; the record
// itself stores no visit date.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]MedicalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListRecordsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := booking.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := s.events.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
