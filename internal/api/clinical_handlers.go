package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vetdesk/clinic-scheduling/internal/clinical"
)

func putMedicalRecordHandler(svc *clinical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PutMedicalRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		apptID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		rec, err := svc.AttachMedicalRecord(r.Context(), clinical.AttachRecordInput{
			AppointmentID: apptID,
			Subjective:    req.Subjective,
			Objective:     req.Objective,
			Assessment:    req.Assessment,
			Plan:          req.Plan,
			Cost:          req.Cost,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

func patientHistoryHandler(svc *clinical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		records, err := svc.PatientHistory(r.Context(), patientID, limit, offset)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]MedicalRecordResponse, 0, len(records))
		for i := range records {
			out = append(out, toRecordResponse(&records[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createInvoiceHandler(svc *clinical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		apptID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		status, err := clinical.ParseInvoiceStatus(req.Status)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		inv, err := svc.AttachInvoice(r.Context(), apptID, req.Amount, status)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
	}
}

func payInvoiceHandler(svc *clinical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a valid UUID")
			return
		}

		inv, err := svc.MarkInvoicePaid(r.Context(), apptID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func getInvoiceHandler(svc *clinical.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a valid UUID")
			return
		}

		inv, err := svc.InvoiceForAppointment(r.Context(), apptID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}
