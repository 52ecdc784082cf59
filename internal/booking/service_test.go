package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic-scheduling/internal/interval"
	redisclient "github.com/vetdesk/clinic-scheduling/internal/redis"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	dir     *registry.MemoryStore
	client  registry.Client
	patient registry.Patient
	vet     registry.Resource
	vet2    registry.Resource
	room    registry.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := registry.NewMemoryStore()
	now := time.Now()

	f := &fixture{
		repo: NewMemoryRepository(),
		dir:  dir,
		client: registry.Client{
			ID: uuid.New(), Name: "Jordan Miles", CreatedAt: now, UpdatedAt: now,
		},
		vet:  registry.Resource{ID: uuid.New(), Kind: registry.KindPractitioner, Name: "Dr. Ahn"},
		vet2: registry.Resource{ID: uuid.New(), Kind: registry.KindPractitioner, Name: "Dr. Okafor"},
		room: registry.Resource{ID: uuid.New(), Kind: registry.KindRoom, Name: "Exam Room 1"},
	}
	f.patient = registry.Patient{
		ID: uuid.New(), ClientID: f.client.ID, Name: "Biscuit", Species: "dog",
	}

	dir.AddClient(f.client)
	dir.AddPatient(f.patient)
	dir.AddResource(f.vet)
	dir.AddResource(f.vet2)
	dir.AddResource(f.room)

	locker := redisclient.NewLocalLocker(2 * time.Second)
	f.svc = NewService(f.repo, dir, locker, zerolog.Nop())
	return f
}

func (f *fixture) request(vet uuid.UUID, start, end time.Time) BookingRequest {
	return BookingRequest{
		ClientID:       f.client.ID,
		PatientID:      f.patient.ID,
		PractitionerID: vet,
		Interval:       interval.TimeInterval{Start: start, End: end},
		Type:           VisitExam,
	}
}

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("new appointment status = %s, want %s", appt.Status, StatusScheduled)
	}
	if appt.ID == uuid.Nil {
		t.Error("appointment id not assigned")
	}
}

func TestBookInvalidInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"zero length", at(9, 0), at(9, 0)},
		{"inverted", at(10, 0), at(9, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, f.request(f.vet.ID, tc.start, tc.end))
			if !errors.Is(err, interval.ErrInvalidInterval) {
				t.Errorf("expected ErrInvalidInterval, got %v", err)
			}
		})
	}
}

func TestBookConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Practitioner V has 09:00-09:30.
	first, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 09:15-09:45 on V is rejected with conflict on V.
	_, err = f.svc.Book(ctx, f.request(f.vet.ID, at(9, 15), at(9, 45)))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ResourceID != f.vet.ID {
		t.Errorf("conflict resource = %s, want %s", conflict.ResourceID, f.vet.ID)
	}
	if conflict.ConflictingID != first.ID {
		t.Errorf("conflicting appointment = %s, want %s", conflict.ConflictingID, first.ID)
	}

	// 09:30-10:00 on V succeeds: adjacent, half-open intervals do not touch.
	if _, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 30), at(10, 0))); err != nil {
		t.Errorf("adjacent booking failed: %v", err)
	}

	// 09:15-09:45 on a different practitioner shares nothing with V's booking.
	if _, err := f.svc.Book(ctx, f.request(f.vet2.ID, at(9, 15), at(9, 45))); err != nil {
		t.Errorf("disjoint-resource booking failed: %v", err)
	}
}

func TestBookSecondaryResourceConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(f.vet.ID, at(9, 0), at(9, 30))
	req.SecondaryResourceID = &f.room.ID
	if _, err := f.svc.Book(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Different practitioner, same room, overlapping time.
	req2 := f.request(f.vet2.ID, at(9, 15), at(9, 45))
	req2.SecondaryResourceID = &f.room.ID
	_, err := f.svc.Book(ctx, req2)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError on the room, got %v", err)
	}
	if conflict.ResourceID != f.room.ID {
		t.Errorf("conflict resource = %s, want room %s", conflict.ResourceID, f.room.ID)
	}
}

func TestBookValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown client", func(t *testing.T) {
		req := f.request(f.vet.ID, at(9, 0), at(9, 30))
		req.ClientID = uuid.New()
		if _, err := f.svc.Book(ctx, req); !errors.Is(err, registry.ErrClientNotFound) {
			t.Errorf("expected ErrClientNotFound, got %v", err)
		}
	})

	t.Run("deceased patient", func(t *testing.T) {
		deceased := registry.Patient{ID: uuid.New(), ClientID: f.client.ID, Name: "Shadow", Species: "cat", Deceased: true}
		f.dir.AddPatient(deceased)

		req := f.request(f.vet.ID, at(9, 0), at(9, 30))
		req.PatientID = deceased.ID
		if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrPatientDeceased) {
			t.Errorf("expected ErrPatientDeceased, got %v", err)
		}
	})

	t.Run("retired practitioner", func(t *testing.T) {
		retired := registry.Resource{ID: uuid.New(), Kind: registry.KindPractitioner, Name: "Dr. Gone", Retired: true}
		f.dir.AddResource(retired)

		if _, err := f.svc.Book(ctx, f.request(retired.ID, at(9, 0), at(9, 30))); !errors.Is(err, registry.ErrResourceRetired) {
			t.Errorf("expected ErrResourceRetired, got %v", err)
		}
	})

	t.Run("room in the practitioner role", func(t *testing.T) {
		if _, err := f.svc.Book(ctx, f.request(f.room.ID, at(9, 0), at(9, 30))); !errors.Is(err, ErrWrongResourceKind) {
			t.Errorf("expected ErrWrongResourceKind, got %v", err)
		}
	})

	t.Run("practitioner as secondary resource", func(t *testing.T) {
		req := f.request(f.vet.ID, at(9, 0), at(9, 30))
		req.SecondaryResourceID = &f.vet2.ID
		if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrWrongResourceKind) {
			t.Errorf("expected ErrWrongResourceKind, got %v", err)
		}
	})
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Identical interval on the identical resource now succeeds.
	if _, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30))); err != nil {
		t.Errorf("re-booking a cancelled slot failed: %v", err)
	}

	// The cancelled row is preserved for audit, not deleted.
	got, err := f.svc.Get(ctx, appt.ID)
	if err != nil {
		t.Fatalf("cancelled appointment gone: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want %s", got.Status, StatusCancelled)
	}
}

func TestCancelTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	mustTransition(t, f.svc, appt.ID, StatusInProgress, StatusCompleted)

	err := f.svc.Cancel(ctx, appt.ID)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != StatusCompleted || te.To != StatusCancelled {
		t.Errorf("transition error = %s -> %s", te.From, te.To)
	}
}

func TestCancelNotFound(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Cancel(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func mustTransition(t *testing.T, svc *Service, id uuid.UUID, steps ...Status) {
	t.Helper()
	for _, to := range steps {
		if _, err := svc.Transition(context.Background(), id, to); err != nil {
			t.Fatalf("transition to %s failed: %v", to, err)
		}
	}
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("scheduled to completed directly fails", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(8, 0), at(8, 30)))
		_, err := f.svc.Transition(ctx, appt.ID, StatusCompleted)
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
	})

	t.Run("full happy path succeeds", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(10, 0), at(10, 30)))
		mustTransition(t, f.svc, appt.ID, StatusConfirmed, StatusInProgress, StatusCompleted)
	})

	t.Run("terminal states reject every transition", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(11, 0), at(11, 30)))
		if err := f.svc.Cancel(ctx, appt.ID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		for _, to := range []Status{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusNoShow} {
			var te *TransitionError
			if _, err := f.svc.Transition(ctx, appt.ID, to); !errors.As(err, &te) {
				t.Errorf("cancelled -> %s: expected TransitionError, got %v", to, err)
			}
		}
	})

	t.Run("links survive transitions", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(12, 0), at(12, 30)))
		recID := uuid.New()
		if err := f.repo.LinkMedicalRecord(ctx, appt.ID, recID); err != nil {
			t.Fatalf("link failed: %v", err)
		}
		mustTransition(t, f.svc, appt.ID, StatusInProgress, StatusCompleted)

		got, _ := f.svc.Get(ctx, appt.ID)
		if got.MedicalRecordID == nil || *got.MedicalRecordID != recID {
			t.Error("medical record link lost across transitions")
		}
	})
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("moves the slot", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))

		updated, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{
			Interval: interval.TimeInterval{Start: at(14, 0), End: at(14, 30)},
		})
		if err != nil {
			t.Fatalf("reschedule failed: %v", err)
		}
		if !updated.Interval.Start.Equal(at(14, 0)) {
			t.Errorf("start = %s, want %s", updated.Interval.Start, at(14, 0))
		}

		// Old slot must be free again.
		if _, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30))); err != nil {
			t.Errorf("old slot still blocked after reschedule: %v", err)
		}
	})

	t.Run("own slot does not ghost-block", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(16, 0), at(16, 30)))

		// Shift by 15 minutes; the new interval overlaps the old one.
		if _, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{
			Interval: interval.TimeInterval{Start: at(16, 15), End: at(16, 45)},
		}); err != nil {
			t.Errorf("overlapping self-reschedule failed: %v", err)
		}
	})

	t.Run("rejected reschedule leaves the original untouched", func(t *testing.T) {
		blocker, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(11, 0), at(11, 30)))
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(12, 0), at(12, 30)))

		_, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{
			Interval: interval.TimeInterval{Start: at(11, 0), End: at(11, 30)},
		})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if conflict.ConflictingID != blocker.ID {
			t.Errorf("conflicting id = %s, want %s", conflict.ConflictingID, blocker.ID)
		}

		got, _ := f.svc.Get(ctx, appt.ID)
		if !got.Interval.Start.Equal(at(12, 0)) || got.Status != StatusScheduled {
			t.Error("original booking mutated by rejected reschedule")
		}
	})

	t.Run("moves to another practitioner", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(13, 0), at(13, 30)))

		updated, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{
			Interval:       interval.TimeInterval{Start: at(13, 0), End: at(13, 30)},
			PractitionerID: &f.vet2.ID,
		})
		if err != nil {
			t.Fatalf("reschedule failed: %v", err)
		}
		if updated.PractitionerID != f.vet2.ID {
			t.Errorf("practitioner = %s, want %s", updated.PractitionerID, f.vet2.ID)
		}

		// The first practitioner's slot is released.
		if _, err := f.svc.Book(ctx, f.request(f.vet.ID, at(13, 0), at(13, 30))); err != nil {
			t.Errorf("old practitioner slot still blocked: %v", err)
		}
	})

	t.Run("terminal appointment cannot be rescheduled", func(t *testing.T) {
		appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(15, 0), at(15, 30)))
		if err := f.svc.Cancel(ctx, appt.ID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}

		_, err := f.svc.Reschedule(ctx, appt.ID, RescheduleRequest{
			Interval: interval.TimeInterval{Start: at(17, 0), End: at(17, 30)},
		})
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Errorf("expected TransitionError, got %v", err)
		}
	})
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, conflicts int
	var others []error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))

			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &conflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
	if len(others) > 0 {
		t.Errorf("unexpected errors: %v", others)
	}
}

// The core safety invariant: after a random mix of operations, no two
// non-cancelled appointments sharing a resource overlap.
func TestNoOverlapInvariantAfterMixedOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var booked []uuid.UUID
	for i := 0; i < 40; i++ {
		start := at(8, 15*(i%20))
		appt, err := f.svc.Book(ctx, f.request(f.vet.ID, start, start.Add(30*time.Minute)))
		if err != nil {
			continue
		}
		booked = append(booked, appt.ID)
	}
	for i, id := range booked {
		switch i % 3 {
		case 0:
			_ = f.svc.Cancel(ctx, id)
		case 1:
			_, _ = f.svc.Reschedule(ctx, id, RescheduleRequest{
				Interval: interval.TimeInterval{Start: at(18, 15*i), End: at(18, 15*i+30)},
			})
		}
	}

	appts, err := f.svc.FindByResourceAndRange(ctx, f.vet.ID, interval.TimeInterval{
		Start: day, End: day.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	for i := 0; i < len(appts); i++ {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if !a.BlocksSlot() || !b.BlocksSlot() {
				continue
			}
			if a.Interval.Overlaps(b.Interval) {
				t.Fatalf("invariant violated: %s %s overlaps %s %s",
					a.ID, a.Interval, b.ID, b.Interval)
			}
		}
	}
}

func TestFindNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	_, _ = f.svc.Book(ctx, f.request(f.vet.ID, at(11, 0), at(11, 30)))
	other, _ := f.svc.Book(ctx, f.request(f.vet2.ID, at(10, 0), at(10, 30)))

	t.Run("any practitioner", func(t *testing.T) {
		next, err := f.svc.FindNext(ctx, nil, at(8, 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.ID != early.ID {
			t.Errorf("next = %s, want %s", next.ID, early.ID)
		}
	})

	t.Run("filtered by practitioner", func(t *testing.T) {
		next, err := f.svc.FindNext(ctx, &f.vet2.ID, at(8, 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.ID != other.ID {
			t.Errorf("next = %s, want %s", next.ID, other.ID)
		}
	})

	t.Run("cancelled bookings are skipped", func(t *testing.T) {
		if err := f.svc.Cancel(ctx, early.ID); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		next, err := f.svc.FindNext(ctx, &f.vet.ID, at(8, 0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.ID == early.ID {
			t.Error("cancelled appointment returned as next")
		}
	})

	t.Run("none found", func(t *testing.T) {
		if _, err := f.svc.FindNext(ctx, nil, at(23, 0)); !errors.Is(err, ErrAppointmentNotFound) {
			t.Errorf("expected ErrAppointmentNotFound, got %v", err)
		}
	})
}

func TestFindByResourceAndRangeOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.Book(ctx, f.request(f.vet.ID, at(11, 0), at(11, 30)))
	_, _ = f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	_, _ = f.svc.Book(ctx, f.request(f.vet.ID, at(10, 0), at(10, 30)))

	appts, err := f.svc.FindByResourceAndRange(ctx, f.vet.ID, interval.TimeInterval{
		Start: at(8, 0), End: at(12, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(appts) != 3 {
		t.Fatalf("got %d appointments, want 3", len(appts))
	}
	for i := 1; i < len(appts); i++ {
		if appts[i].Interval.Start.Before(appts[i-1].Interval.Start) {
			t.Error("appointments not ordered by start")
		}
	}
}

func TestFlagNoShows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-4 * time.Hour)
	overdue, err := f.svc.Book(ctx, f.request(f.vet.ID, past, past.Add(30*time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	future, err := f.svc.Book(ctx, f.request(f.vet.ID, time.Now().Add(2*time.Hour), time.Now().Add(3*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flagged, err := f.svc.FlagNoShows(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Errorf("flagged = %d, want 1", flagged)
	}

	got, _ := f.svc.Get(ctx, overdue.ID)
	if got.Status != StatusNoShow {
		t.Errorf("overdue status = %s, want %s", got.Status, StatusNoShow)
	}
	got, _ = f.svc.Get(ctx, future.ID)
	if got.Status != StatusScheduled {
		t.Errorf("future status = %s, want %s", got.Status, StatusScheduled)
	}
}

func TestBookingEventsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.svc.Book(ctx, f.request(f.vet.ID, at(9, 0), at(9, 30)))
	_ = f.svc.Cancel(ctx, appt.ID)

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}

	want := []string{EventBookingCreated, EventStatusChanged, EventBookingCancelled}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}
