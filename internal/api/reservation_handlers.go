package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carebridge/reservation-engine/internal/reservation"
)

func reserveHandler(arb *reservation.Arbiter, holdTTL, defaultSlotDur time.Duration, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		var elderID *uuid.UUID
		if req.ElderID != "" {
			id, err := uuid.Parse(req.ElderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_elder_id", "elder_id must be a valid UUID")
				return
			}
			elderID = &id
		}

		slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be RFC 3339")
			return
		}

		duration := defaultSlotDur
		if req.DurationMin > 0 {
			duration = time.Duration(req.DurationMin) * time.Minute
		}

		kind := reservation.KindAdhoc
		if req.Kind == string(reservation.KindMonthly) {
			kind = reservation.KindMonthly
		}

		grant, err := arb.TryReserve(r.Context(), reservation.ReserveRequest{
			DoctorID:    doctorID,
			ElderID:     elderID,
			RequesterID: requesterID,
			SlotStart:   slotStart,
			Duration:    duration,
			Kind:        kind,
			HoldTTL:     holdTTL,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, GrantResponse{
			AppointmentID: grant.AppointmentID,
			ExpiresAt:     grant.ExpiresAt,
			Fee:           grant.Fee.String(),
		})
	}
}

func confirmHandler(arb *reservation.Arbiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := arb.Confirm(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func releaseHandler(arb *reservation.Arbiter, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ReleaseRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
			if err := validate.Struct(req); err != nil {
				writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
				return
			}
		}

		appt, err := arb.Release(r.Context(), id, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func decisionHandler(arb *reservation.Arbiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := arb.Decide(r.Context(), id, req.Approve)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func outcomeHandler(arb *reservation.Arbiter, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req OutcomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		appt, err := arb.RecordOutcome(r.Context(), id, reservation.Status(req.Outcome))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func meetingURLHandler(arb *reservation.Arbiter, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req MeetingURLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		if err := arb.AttachMeetingURL(r.Context(), id, req.URL); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getAppointmentHandler(arb *reservation.Arbiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := arb.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(arb *reservation.Arbiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		requesterID, err := uuid.Parse(q.Get("requester_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		limit := parseIntQuery(q.Get("limit"), 20)
		offset := parseIntQuery(q.Get("offset"), 0)

		appts, err := arb.ListByRequester(r.Context(), requesterID, limit, offset)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, appt := range appts {
			resp = append(resp, toAppointmentResponse(appt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func toAppointmentResponse(a reservation.Appointment) AppointmentResponse {
	var sessionDate *string
	if a.SessionDate != nil {
		s := a.SessionDate.Format("2006-01-02")
		sessionDate = &s
	}

	return AppointmentResponse{
		ID:              a.ID,
		RequesterID:     a.RequesterID,
		ElderID:         a.ElderID,
		DoctorID:        a.DoctorID,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Kind:            string(a.Kind),
		SessionDate:     sessionDate,
		ReservedAt:      a.ReservedAt,
		BlockedUntil:    a.BlockedUntil,
		PaymentStatus:   string(a.PaymentStatus),
		ConsultationFee: a.ConsultationFee.String(),
		MeetingURL:      a.MeetingURL,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func parseIntQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
