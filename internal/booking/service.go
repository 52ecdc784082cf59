package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic-scheduling/internal/interval"
	redisclient "github.com/vetdesk/clinic-scheduling/internal/redis"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

const (
	EventBookingCreated     = "BOOKING_CREATED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventStatusChanged      = "STATUS_CHANGED"
	EventNoShowFlagged      = "NO_SHOW_FLAGGED"
)

// ErrBusy means the per-resource lock could not be acquired within the
// bounded wait. The booking was not attempted; callers may retry.
var ErrBusy = errors.New("resources are locked by a concurrent booking, retry shortly")

type BookingRequest struct {
	ClientID            uuid.UUID
	PatientID           uuid.UUID
	PractitionerID      uuid.UUID
	SecondaryResourceID *uuid.UUID
	Interval            interval.TimeInterval
	Type                VisitType
	Notes               string
}

// RescheduleRequest moves an appointment to a new interval and optionally
// to new resources. Nil pointers keep the current assignment.
type RescheduleRequest struct {
	Interval            interval.TimeInterval
	PractitionerID      *uuid.UUID
	SecondaryResourceID *uuid.UUID
	ClearSecondary      bool
}

type Service struct {
	repo      Repository
	directory registry.Directory
	locker    redisclient.Locker
	logger    zerolog.Logger
}

func NewService(repo Repository, directory registry.Directory, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		locker:    locker,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// Book reserves the requested resources for the interval and creates the
// appointment in status scheduled. The overlap scan and the insert run
// under the per-resource locks, so two concurrent requests for the same
// slot cannot both succeed.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseVisitType(string(req.Type)); err != nil {
		return nil, err
	}

	if _, err := s.directory.GetClient(ctx, req.ClientID); err != nil {
		return nil, err
	}
	patient, err := s.directory.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Deceased {
		return nil, ErrPatientDeceased
	}

	if err := s.checkResource(ctx, req.PractitionerID, registry.KindPractitioner); err != nil {
		return nil, err
	}
	if req.SecondaryResourceID != nil {
		if err := s.checkResource(ctx, *req.SecondaryResourceID, registry.KindRoom, registry.KindEquipment); err != nil {
			return nil, err
		}
	}

	draft := Appointment{
		ClientID:            req.ClientID,
		PatientID:           req.PatientID,
		PractitionerID:      req.PractitionerID,
		SecondaryResourceID: req.SecondaryResourceID,
		Interval:            req.Interval,
		Type:                req.Type,
		Status:              StatusScheduled,
		Notes:               req.Notes,
	}

	var created *Appointment
	err = s.locker.WithResourceLocks(ctx, draft.ResourceIDs(), func(lockCtx context.Context) error {
		if err := s.scanForConflicts(lockCtx, draft.ResourceIDs(), req.Interval, nil); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, draft)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventBookingCreated, map[string]any{
			"practitioner_id": appt.PractitionerID.String(),
			"patient_id":      appt.PatientID.String(),
			"start":           appt.Interval.Start,
			"end":             appt.Interval.End,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("practitioner_id", created.PractitionerID.String()).
		Time("start", created.Interval.Start).
		Msg("appointment booked")

	return created, nil
}

// Cancel transitions the appointment to cancelled, releasing its
// resources for future overlap checks. The row itself is preserved.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	appt, err := s.Transition(ctx, id, StatusCancelled)
	if err != nil {
		return err
	}

	s.logEvent(ctx, appt.ID, EventBookingCancelled, map[string]any{})
	return nil
}

// Transition applies the lifecycle table and writes the new status with a
// compare-and-set on the old one, so racing transitions cannot both win.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(appt.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleAppointment
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// Reschedule is a cancel-and-rebook performed atomically under the union
// of the old and new resource locks. The appointment's own slot does not
// ghost-block the new interval, and a rejected reschedule leaves the
// original booking untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if err := req.Interval.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsTerminal(current.Status) {
		return nil, &TransitionError{From: current.Status, To: StatusScheduled}
	}

	practitionerID := current.PractitionerID
	if req.PractitionerID != nil {
		practitionerID = *req.PractitionerID
	}
	secondaryID := current.SecondaryResourceID
	if req.ClearSecondary {
		secondaryID = nil
	} else if req.SecondaryResourceID != nil {
		secondaryID = req.SecondaryResourceID
	}

	if err := s.checkResource(ctx, practitionerID, registry.KindPractitioner); err != nil {
		return nil, err
	}
	if secondaryID != nil {
		if err := s.checkResource(ctx, *secondaryID, registry.KindRoom, registry.KindEquipment); err != nil {
			return nil, err
		}
	}

	newResources := []uuid.UUID{practitionerID}
	if secondaryID != nil {
		newResources = append(newResources, *secondaryID)
	}
	lockSet := append(current.ResourceIDs(), newResources...)

	var updated *Appointment
	err = s.locker.WithResourceLocks(ctx, lockSet, func(lockCtx context.Context) error {
		// Re-read under the lock: the appointment may have been
		// cancelled or completed while we were validating.
		fresh, err := s.repo.GetAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		if IsTerminal(fresh.Status) {
			return &TransitionError{From: fresh.Status, To: StatusScheduled}
		}

		if err := s.scanForConflicts(lockCtx, newResources, req.Interval, &id); err != nil {
			return err
		}

		updated, err = s.repo.UpdateSlot(lockCtx, id, req.Interval, practitionerID, secondaryID)
		if err != nil {
			return fmt.Errorf("update slot: %w", err)
		}

		s.logEvent(lockCtx, id, EventBookingRescheduled, map[string]any{
			"start": req.Interval.Start,
			"end":   req.Interval.End,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}

	return updated, nil
}

// FlagNoShows is called periodically by the worker. Appointments still
// scheduled or confirmed after their end passed the grace cutoff are
// moved to no_show via the normal lifecycle path.
func (s *Service) FlagNoShows(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace)

	overdue, err := s.repo.FindOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	flagged := 0
	for _, appt := range overdue {
		_, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusNoShow)
		if err != nil {
			// Lost the race to a concurrent transition; skip.
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to flag no-show")
			continue
		}
		flagged++
		s.logEvent(ctx, appt.ID, EventNoShowFlagged, map[string]any{
			"was": string(appt.Status),
		})
	}

	return flagged, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// FindByResourceAndRange returns every appointment touching the interval
// on the given resource, cancelled ones included, ordered by start.
func (s *Service) FindByResourceAndRange(ctx context.Context, resourceID uuid.UUID, iv interval.TimeInterval) ([]Appointment, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	return s.repo.FindByResourceAndRange(ctx, resourceID, iv)
}

// FindNext returns the soonest non-cancelled appointment after the given
// instant, optionally restricted to one practitioner.
func (s *Service) FindNext(ctx context.Context, practitionerID *uuid.UUID, after time.Time) (*Appointment, error) {
	return s.repo.FindNext(ctx, practitionerID, after)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) checkResource(ctx context.Context, id uuid.UUID, kinds ...registry.ResourceKind) error {
	res, err := s.directory.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if res.Retired {
		return registry.ErrResourceRetired
	}
	for _, k := range kinds {
		if res.Kind == k {
			return nil
		}
	}
	return ErrWrongResourceKind
}

func (s *Service) scanForConflicts(ctx context.Context, resourceIDs []uuid.UUID, iv interval.TimeInterval, exclude *uuid.UUID) error {
	for _, resID := range resourceIDs {
		existing, err := s.repo.FindOverlapping(ctx, resID, iv, exclude)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			return fmt.Errorf("overlap scan: %w", err)
		}
		return &ConflictError{ResourceID: resID, ConflictingID: existing.ID}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
