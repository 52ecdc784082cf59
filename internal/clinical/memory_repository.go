package clinical

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
)

// MemoryRepository backs unit tests. It shares the booking arena so the
// appointment back-references and the history join stay consistent with
// the ledger, mirroring what the Postgres schema gives for free.
type MemoryRepository struct {
	mu       sync.RWMutex
	arena    *booking.MemoryRepository
	records  map[uuid.UUID]MedicalRecord // keyed by appointment id
	invoices map[uuid.UUID]Invoice       // keyed by appointment id
}

func NewMemoryRepository(arena *booking.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		arena:    arena,
		records:  make(map[uuid.UUID]MedicalRecord),
		invoices: make(map[uuid.UUID]Invoice),
	}
}

func (r *MemoryRepository) GetAppointmentPatient(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	a, err := r.arena.GetAppointment(ctx, appointmentID)
	if err != nil {
		return uuid.Nil, err
	}
	return a.PatientID, nil
}

func (r *MemoryRepository) UpsertMedicalRecord(ctx context.Context, appointmentID, patientID uuid.UUID, fields RecordFields) (*MedicalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec, exists := r.records[appointmentID]
	if !exists {
		rec = MedicalRecord{
			ID:            uuid.New(),
			AppointmentID: appointmentID,
			PatientID:     patientID,
			CreatedAt:     now,
		}
	}
	rec.Subjective = fields.Subjective
	rec.Objective = fields.Objective
	rec.Assessment = fields.Assessment
	rec.Plan = fields.Plan
	rec.Cost = fields.Cost
	rec.UpdatedAt = now
	r.records[appointmentID] = rec

	if !exists {
		if err := r.arena.LinkMedicalRecord(ctx, appointmentID, rec.ID); err != nil {
			return nil, err
		}
	}

	out := rec
	return &out, nil
}

func (r *MemoryRepository) GetRecordByAppointment(_ context.Context, appointmentID uuid.UUID) (*MedicalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[appointmentID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := rec
	return &out, nil
}

func (r *MemoryRepository) ListRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]MedicalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type dated struct {
		rec   MedicalRecord
		start time.Time
	}

	var joined []dated
	for _, rec := range r.records {
		if rec.PatientID != patientID {
			continue
		}
		a, err := r.arena.GetAppointment(ctx, rec.AppointmentID)
		if err != nil {
			return nil, err
		}
		joined = append(joined, dated{rec: rec, start: a.Interval.Start})
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].start.After(joined[j].start) })

	if offset >= len(joined) {
		return nil, nil
	}
	joined = joined[offset:]
	if limit > 0 && len(joined) > limit {
		joined = joined[:limit]
	}

	result := make([]MedicalRecord, 0, len(joined))
	for _, d := range joined {
		result = append(result, d.rec)
	}
	return result, nil
}

func (r *MemoryRepository) CreateInvoice(ctx context.Context, appointmentID uuid.UUID, amount decimal.Decimal, status InvoiceStatus, issueDate time.Time) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invoices[appointmentID]; exists {
		return nil, ErrInvoiceExists
	}

	inv := Invoice{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Amount:        amount,
		Status:        status,
		IssueDate:     issueDate,
		CreatedAt:     time.Now(),
	}
	r.invoices[appointmentID] = inv

	if err := r.arena.LinkInvoice(ctx, appointmentID, inv.ID); err != nil {
		delete(r.invoices, appointmentID)
		return nil, err
	}

	out := inv
	return &out, nil
}

func (r *MemoryRepository) GetInvoiceByAppointment(_ context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invoices[appointmentID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	out := inv
	return &out, nil
}

func (r *MemoryRepository) UpdateInvoiceStatus(_ context.Context, appointmentID uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[appointmentID]
	if !ok || inv.Status != from {
		return nil, ErrInvoiceNotFound
	}
	inv.Status = to
	r.invoices[appointmentID] = inv

	out := inv
	return &out, nil
}
