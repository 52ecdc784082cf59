package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/interval"
)

// ErrLinkAlreadySet guards the write-once medical record / invoice links.
var ErrLinkAlreadySet = errors.New("appointment link already set")

// MemoryRepository is an arena of appointments keyed by id with a
// per-resource index maintained incrementally on every write, so the hot
// booking path never scans the whole ledger. Used by unit tests and
// single-node tooling; the Postgres repository is the production path.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]Appointment
	byResource   map[uuid.UUID]map[uuid.UUID]struct{}
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]Appointment),
		byResource:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (r *MemoryRepository) index(resourceID, apptID uuid.UUID) {
	set, ok := r.byResource[resourceID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.byResource[resourceID] = set
	}
	set[apptID] = struct{}{}
}

func (r *MemoryRepository) unindex(resourceID, apptID uuid.UUID) {
	if set, ok := r.byResource[resourceID]; ok {
		delete(set, apptID)
	}
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	a.ID = uuid.New()
	a.CreatedAt = now
	a.UpdatedAt = now

	r.appointments[a.ID] = a
	for _, resID := range a.ResourceIDs() {
		r.index(resID, a.ID)
	}

	out := a
	return &out, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := a
	return &out, nil
}

func (r *MemoryRepository) FindOverlapping(_ context.Context, resourceID uuid.UUID, iv interval.TimeInterval, exclude *uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for apptID := range r.byResource[resourceID] {
		if exclude != nil && apptID == *exclude {
			continue
		}
		a := r.appointments[apptID]
		if !a.BlocksSlot() {
			continue
		}
		if a.Interval.Overlaps(iv) {
			out := a
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a

	out := a
	return &out, nil
}

func (r *MemoryRepository) UpdateSlot(_ context.Context, id uuid.UUID, iv interval.TimeInterval, practitionerID uuid.UUID, secondaryID *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	for _, resID := range a.ResourceIDs() {
		r.unindex(resID, id)
	}

	a.Interval = iv
	a.PractitionerID = practitionerID
	a.SecondaryResourceID = secondaryID
	a.UpdatedAt = time.Now()
	r.appointments[id] = a

	for _, resID := range a.ResourceIDs() {
		r.index(resID, id)
	}

	out := a
	return &out, nil
}

func (r *MemoryRepository) FindByResourceAndRange(_ context.Context, resourceID uuid.UUID, iv interval.TimeInterval) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for apptID := range r.byResource[resourceID] {
		a := r.appointments[apptID]
		if a.Interval.Overlaps(iv) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Interval.Start.Before(result[j].Interval.Start)
	})
	return result, nil
}

func (r *MemoryRepository) FindNext(_ context.Context, practitionerID *uuid.UUID, after time.Time) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Appointment
	for _, a := range r.appointments {
		if a.Status == StatusCancelled {
			continue
		}
		if !a.Interval.Start.After(after) {
			continue
		}
		if practitionerID != nil && a.PractitionerID != *practitionerID {
			continue
		}
		if best == nil || a.Interval.Start.Before(best.Interval.Start) {
			copied := a
			best = &copied
		}
	}
	if best == nil {
		return nil, ErrAppointmentNotFound
	}
	return best, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Interval.Start.After(result[j].Interval.Start)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) FindOverdue(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		if a.Interval.End.Before(cutoff) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the audit trail, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

// LinkMedicalRecord sets the write-once medical record back-reference.
// The Postgres equivalent lives in the clinical repository's transaction.
func (r *MemoryRepository) LinkMedicalRecord(_ context.Context, apptID, recordID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[apptID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.MedicalRecordID != nil {
		return ErrLinkAlreadySet
	}
	a.MedicalRecordID = &recordID
	a.UpdatedAt = time.Now()
	r.appointments[apptID] = a
	return nil
}

// LinkInvoice sets the write-once invoice back-reference.
func (r *MemoryRepository) LinkInvoice(_ context.Context, apptID, invoiceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[apptID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.InvoiceID != nil {
		return ErrLinkAlreadySet
	}
	a.InvoiceID = &invoiceID
	a.UpdatedAt = time.Now()
	r.appointments[apptID] = a
	return nil
}
