package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/interval"
)

// Request-level validation happens here so the ledger's precondition
// contracts are never violated by malformed input.

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		var secondaryID *uuid.UUID
		if req.ResourceID != "" {
			id, err := uuid.Parse(req.ResourceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_resource_id", "resource_id must be a valid UUID")
				return
			}
			secondaryID = &id
		}

		iv, err := interval.New(req.Start, req.End)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		visitType, err := booking.ParseVisitType(req.Type)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		appt, err := svc.Book(r.Context(), booking.BookingRequest{
			ClientID:            clientID,
			PatientID:           patientID,
			PractitionerID:      practitionerID,
			SecondaryResourceID: secondaryID,
			Interval:            iv,
			Type:                visitType,
			Notes:               req.Notes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func transitionBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		to, err := booking.ParseStatus(req.To)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		appt, err := svc.Transition(r.Context(), id, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		iv, err := interval.New(req.Start, req.End)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resReq := booking.RescheduleRequest{
			Interval:       iv,
			ClearSecondary: req.ClearResource,
		}
		if req.PractitionerID != "" {
			pid, err := uuid.Parse(req.PractitionerID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			resReq.PractitionerID = &pid
		}
		if req.ResourceID != "" {
			rid, err := uuid.Parse(req.ResourceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_resource_id", "resource_id must be a valid UUID")
				return
			}
			resReq.SecondaryResourceID = &rid
		}

		appt, err := svc.Reschedule(r.Context(), id, resReq)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		resourceID, err := uuid.Parse(q.Get("resource"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource", "resource must be a valid UUID")
			return
		}
		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		iv, err := interval.New(from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		appts, err := svc.FindByResourceAndRange(r.Context(), resourceID, iv)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func nextBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var practitionerID *uuid.UUID
		if p := r.URL.Query().Get("practitioner"); p != "" {
			id, err := uuid.Parse(p)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner", "practitioner must be a valid UUID")
				return
			}
			practitionerID = &id
		}

		appt, err := svc.FindNext(r.Context(), practitionerID, time.Now())
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
