package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/clinical"
	"github.com/vetdesk/clinic-scheduling/internal/interval"
	redisclient "github.com/vetdesk/clinic-scheduling/internal/redis"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError is the single place internal error kinds become
// transport status codes. The distinction that matters to users: "this
// slot is taken, pick another" (409 with the blocking resource) versus
// an opaque failure.
func writeDomainError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	var transition *booking.TransitionError

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:                    "slot_conflict",
			Details:                  err.Error(),
			ResourceID:               &conflict.ResourceID,
			ConflictingAppointmentID: &conflict.ConflictingID,
		})

	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.Is(err, booking.ErrBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired),
		errors.Is(err, booking.ErrStaleAppointment):
		writeError(w, http.StatusConflict, "resource_locked",
			"the requested slot is locked by a concurrent booking, please retry shortly")

	case errors.Is(err, clinical.ErrInvoiceExists):
		writeError(w, http.StatusConflict, "invoice_exists", err.Error())

	case errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, registry.ErrResourceNotFound),
		errors.Is(err, registry.ErrClientNotFound),
		errors.Is(err, registry.ErrPatientNotFound),
		errors.Is(err, clinical.ErrRecordNotFound),
		errors.Is(err, clinical.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, interval.ErrInvalidInterval),
		errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, booking.ErrInvalidVisitType),
		errors.Is(err, booking.ErrPatientDeceased),
		errors.Is(err, booking.ErrWrongResourceKind),
		errors.Is(err, registry.ErrResourceRetired),
		errors.Is(err, registry.ErrInvalidKind),
		errors.Is(err, clinical.ErrNegativeAmount),
		errors.Is(err, clinical.ErrInvalidInvoiceStatus):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
