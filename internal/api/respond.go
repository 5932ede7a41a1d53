package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebridge/reservation-engine/internal/reservation"
	"github.com/carebridge/reservation-engine/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the engine's error taxonomy to stable machine
// codes. Slot-taken and hold-expired come back as "pick another time"
// conflicts; schedule conflicts are an admin-facing configuration
// problem, never shown to end users.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot was claimed by another requester, please pick another time")
	case errors.Is(err, reservation.ErrSessionTaken):
		writeError(w, http.StatusConflict, "session_taken", "elder already has a session on that date")
	case errors.Is(err, reservation.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is outside the doctor's availability")
	case errors.Is(err, reservation.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", "the hold on this slot has expired, please pick another time")
	case errors.Is(err, reservation.ErrStaleHold):
		writeError(w, http.StatusConflict, "stale_hold", "the reservation was settled by a concurrent operation")
	case errors.Is(err, reservation.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, reservation.ErrElderRequired):
		writeError(w, http.StatusBadRequest, "elder_required", "monthly sessions require an elder_id")
	case errors.Is(err, reservation.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, reservation.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleConflict):
		writeError(w, http.StatusUnprocessableEntity, "schedule_conflict", err.Error())
	case errors.Is(err, schedule.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, schedule.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "window_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
