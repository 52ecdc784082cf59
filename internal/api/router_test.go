package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/clinical"
	redisclient "github.com/vetdesk/clinic-scheduling/internal/redis"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

type apiFixture struct {
	handler http.Handler
	client  registry.Client
	patient registry.Patient
	vet     registry.Resource
	room    registry.Resource
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := registry.NewMemoryStore()
	f := &apiFixture{
		client: registry.Client{ID: uuid.New(), Name: "Sam Reyes"},
		vet:    registry.Resource{ID: uuid.New(), Kind: registry.KindPractitioner, Name: "Dr. Varga"},
		room:   registry.Resource{ID: uuid.New(), Kind: registry.KindRoom, Name: "Exam Room 2"},
	}
	f.patient = registry.Patient{ID: uuid.New(), ClientID: f.client.ID, Name: "Mochi", Species: "cat"}

	store.AddClient(f.client)
	store.AddPatient(f.patient)
	store.AddResource(f.vet)
	store.AddResource(f.room)

	arena := booking.NewMemoryRepository()
	locker := redisclient.NewLocalLocker(time.Second)
	logger := zerolog.Nop()

	f.handler = NewRouter(RouterConfig{
		Bookings:  booking.NewService(arena, store, locker, logger),
		Clinical:  clinical.NewService(clinical.NewMemoryRepository(arena), arena, logger),
		Resources: store,
		Logger:    logger,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (f *apiFixture) bookingBody(start, end time.Time) map[string]any {
	return map[string]any{
		"client_id":       f.client.ID.String(),
		"patient_id":      f.patient.ID.String(),
		"practitioner_id": f.vet.ID.String(),
		"start":           start,
		"end":             end,
		"type":            "exam",
	}
}

func (f *apiFixture) mustBook(t *testing.T, start, end time.Time) AppointmentResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/bookings", f.bookingBody(start, end))
	if rec.Code != http.StatusCreated {
		t.Fatalf("book returned %d: %s", rec.Code, rec.Body.String())
	}
	return decode[AppointmentResponse](t, rec)
}

var apiDay = time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC)

func slot(hour, min int) time.Time {
	return apiDay.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestCreateBooking(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/bookings", f.bookingBody(slot(9, 0), slot(9, 30)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	resp := decode[AppointmentResponse](t, rec)
	if resp.Status != "scheduled" {
		t.Errorf("status = %s, want scheduled", resp.Status)
	}
	if resp.PractitionerID != f.vet.ID {
		t.Errorf("practitioner = %s, want %s", resp.PractitionerID, f.vet.ID)
	}
}

func TestCreateBookingConflictBody(t *testing.T) {
	f := newAPIFixture(t)

	first := f.mustBook(t, slot(9, 0), slot(9, 30))

	rec := f.do(t, http.MethodPost, "/bookings", f.bookingBody(slot(9, 15), slot(9, 45)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	errResp := decode[ErrorResponse](t, rec)
	if errResp.Error != "slot_conflict" {
		t.Errorf("error = %s, want slot_conflict", errResp.Error)
	}
	if errResp.ResourceID == nil || *errResp.ResourceID != f.vet.ID {
		t.Error("conflict body missing the blocking resource id")
	}
	if errResp.ConflictingAppointmentID == nil || *errResp.ConflictingAppointmentID != first.ID {
		t.Error("conflict body missing the conflicting appointment id")
	}
}

func TestCreateBookingValidation(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("inverted interval", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/bookings", f.bookingBody(slot(10, 0), slot(9, 0)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if errResp := decode[ErrorResponse](t, rec); errResp.Error != "validation_error" {
			t.Errorf("error = %s, want validation_error", errResp.Error)
		}
	})

	t.Run("malformed client id", func(t *testing.T) {
		body := f.bookingBody(slot(9, 0), slot(9, 30))
		body["client_id"] = "not-a-uuid"
		rec := f.do(t, http.MethodPost, "/bookings", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown visit type", func(t *testing.T) {
		body := f.bookingBody(slot(9, 0), slot(9, 30))
		body["type"] = "teleportation"
		rec := f.do(t, http.MethodPost, "/bookings", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		body := f.bookingBody(slot(9, 0), slot(9, 30))
		body["patient_id"] = uuid.New().String()
		rec := f.do(t, http.MethodPost, "/bookings", body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestCancelBooking(t *testing.T) {
	f := newAPIFixture(t)
	appt := f.mustBook(t, slot(9, 0), slot(9, 30))

	rec := f.do(t, http.MethodDelete, "/bookings/"+appt.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	// Cancelling a cancelled booking is an invalid transition.
	rec = f.do(t, http.MethodDelete, "/bookings/"+appt.ID.String(), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", rec.Code)
	}
	if errResp := decode[ErrorResponse](t, rec); errResp.Error != "invalid_status_transition" {
		t.Errorf("error = %s, want invalid_status_transition", errResp.Error)
	}

	// The slot is free again.
	rec = f.do(t, http.MethodPost, "/bookings", f.bookingBody(slot(9, 0), slot(9, 30)))
	if rec.Code != http.StatusCreated {
		t.Errorf("rebooking a freed slot returned %d", rec.Code)
	}
}

func TestTransitionBooking(t *testing.T) {
	f := newAPIFixture(t)
	appt := f.mustBook(t, slot(9, 0), slot(9, 30))

	t.Run("invalid jump", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/bookings/"+appt.ID.String()+"/status", TransitionRequest{To: "completed"})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("valid step", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/bookings/"+appt.ID.String()+"/status", TransitionRequest{To: "confirmed"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if resp := decode[AppointmentResponse](t, rec); resp.Status != "confirmed" {
			t.Errorf("status = %s, want confirmed", resp.Status)
		}
	})

	t.Run("unknown status string", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/bookings/"+appt.ID.String()+"/status", TransitionRequest{To: "archived"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/bookings/"+uuid.NewString()+"/status", TransitionRequest{To: "confirmed"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestRescheduleBooking(t *testing.T) {
	f := newAPIFixture(t)
	appt := f.mustBook(t, slot(9, 0), slot(9, 30))

	rec := f.do(t, http.MethodPatch, "/bookings/"+appt.ID.String()+"/slot", map[string]any{
		"start": slot(15, 0),
		"end":   slot(15, 30),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decode[AppointmentResponse](t, rec)
	if !resp.Start.Equal(slot(15, 0)) {
		t.Errorf("start = %s, want %s", resp.Start, slot(15, 0))
	}
}

func TestListBookings(t *testing.T) {
	f := newAPIFixture(t)
	f.mustBook(t, slot(9, 0), slot(9, 30))
	f.mustBook(t, slot(10, 0), slot(10, 30))

	path := fmt.Sprintf("/bookings?resource=%s&from=%s&to=%s",
		f.vet.ID,
		slot(8, 0).Format(time.RFC3339),
		slot(12, 0).Format(time.RFC3339))

	rec := f.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if appts := decode[[]AppointmentResponse](t, rec); len(appts) != 2 {
		t.Errorf("got %d appointments, want 2", len(appts))
	}

	t.Run("missing range params", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/bookings?resource="+f.vet.ID.String(), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestNextBooking(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("empty calendar", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/bookings/next", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("upcoming appointment", func(t *testing.T) {
		start := time.Now().Add(time.Hour).Truncate(time.Second)
		appt := f.mustBook(t, start, start.Add(30*time.Minute))

		rec := f.do(t, http.MethodGet, "/bookings/next?practitioner="+f.vet.ID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if resp := decode[AppointmentResponse](t, rec); resp.ID != appt.ID {
			t.Errorf("next = %s, want %s", resp.ID, appt.ID)
		}
	})
}

func TestMedicalRecordEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	appt := f.mustBook(t, slot(9, 0), slot(9, 30))

	body := map[string]any{
		"appointment_id": appt.ID.String(),
		"subjective":     "scratching at ears",
		"assessment":     "ear mites",
		"plan":           "topical treatment",
	}
	rec := f.do(t, http.MethodPut, "/medical-records", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	first := decode[MedicalRecordResponse](t, rec)

	// Saving again updates the same record.
	body["plan"] = "topical treatment, recheck in 10 days"
	rec = f.do(t, http.MethodPut, "/medical-records", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second save status = %d: %s", rec.Code, rec.Body.String())
	}
	second := decode[MedicalRecordResponse](t, rec)
	if second.ID != first.ID {
		t.Error("second save created a new record")
	}

	t.Run("history", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/medical-records/patient/"+f.patient.ID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if records := decode[[]MedicalRecordResponse](t, rec); len(records) != 1 {
			t.Errorf("got %d records, want 1", len(records))
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/medical-records", map[string]any{
			"appointment_id": uuid.NewString(),
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestInvoiceEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	appt := f.mustBook(t, slot(9, 0), slot(9, 30))

	body := map[string]any{
		"appointment_id": appt.ID.String(),
		"amount":         "135.00",
		"status":         "unpaid",
	}
	rec := f.do(t, http.MethodPost, "/invoices", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	inv := decode[InvoiceResponse](t, rec)
	if inv.Status != "unpaid" {
		t.Errorf("status = %s, want unpaid", inv.Status)
	}

	t.Run("duplicate invoice", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/invoices", body)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
		}
		if errResp := decode[ErrorResponse](t, rec); errResp.Error != "invoice_exists" {
			t.Errorf("error = %s, want invoice_exists", errResp.Error)
		}
	})

	t.Run("pay", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/invoices/"+appt.ID.String()+"/pay", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if paid := decode[InvoiceResponse](t, rec); paid.Status != "paid" {
			t.Errorf("status = %s, want paid", paid.Status)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/invoices/"+appt.ID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		other := f.mustBook(t, slot(11, 0), slot(11, 30))
		rec := f.do(t, http.MethodPost, "/invoices", map[string]any{
			"appointment_id": other.ID.String(),
			"amount":         "-10",
			"status":         "unpaid",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestResourceEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/resources", CreateResourceRequest{Kind: "equipment", Name: "Ultrasound"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	created := decode[ResourceResponse](t, rec)

	t.Run("unknown kind", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/resources", CreateResourceRequest{Kind: "vehicle", Name: "Van"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("list filtered by kind", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/resources?kind=equipment", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		resources := decode[[]ResourceResponse](t, rec)
		if len(resources) != 1 || resources[0].ID != created.ID {
			t.Errorf("unexpected equipment listing: %+v", resources)
		}
	})

	t.Run("retire then booking rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/resources/"+f.vet.ID.String()+"/retire", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("retire status = %d: %s", rec.Code, rec.Body.String())
		}

		rec = f.do(t, http.MethodPost, "/bookings", f.bookingBody(slot(9, 0), slot(9, 30)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("booking with retired practitioner returned %d, want 400", rec.Code)
		}
	})
}
