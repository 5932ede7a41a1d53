package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carebridge/reservation-engine/internal/schedule"
)

func createWindowHandler(svc *schedule.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		var req CreateWindowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		created, err := svc.AddWindow(r.Context(), schedule.RecurringWindow{
			DoctorID:    doctorID,
			Weekday:     time.Weekday(req.Weekday),
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWindowResponse(*created))
	}
}

func listWindowsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		windows, err := svc.ListWindows(r.Context(), doctorID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]WindowResponse, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, toWindowResponse(win))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deactivateWindowHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		windowID, ok := parseUUIDParam(w, r, "windowID")
		if !ok {
			return
		}

		if err := svc.DeactivateWindow(r.Context(), windowID); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createExceptionHandler(svc *schedule.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		var req CreateExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		created, err := svc.AddException(r.Context(), schedule.ScheduleException{
			DoctorID:    doctorID,
			Date:        date,
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			Unavailable: req.Unavailable,
			Reason:      req.Reason,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toExceptionResponse(*created))
	}
}

func listExceptionsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		from, to, ok := parseDateRange(w, r)
		if !ok {
			return
		}

		exceptions, err := svc.ListExceptions(r.Context(), doctorID, from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]ExceptionResponse, 0, len(exceptions))
		for _, e := range exceptions {
			resp = append(resp, toExceptionResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc *schedule.Service, defaultSlotDur time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		from, to, ok := parseDateRange(w, r)
		if !ok {
			return
		}

		slotDur := defaultSlotDur
		if raw := r.URL.Query().Get("duration"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 || d%time.Minute != 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive whole number of minutes, e.g. 30m")
				return
			}
			slotDur = d
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, from, to, slotDur)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if slots == nil {
			slots = []time.Time{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Slots: slots})
	}
}

func toWindowResponse(w schedule.RecurringWindow) WindowResponse {
	return WindowResponse{
		ID:          w.ID,
		DoctorID:    w.DoctorID,
		Weekday:     int(w.Weekday),
		StartMinute: w.StartMinute,
		EndMinute:   w.EndMinute,
		Active:      w.Active,
	}
}

func toExceptionResponse(e schedule.ScheduleException) ExceptionResponse {
	return ExceptionResponse{
		ID:          e.ID,
		DoctorID:    e.DoctorID,
		Date:        e.Date.Format("2006-01-02"),
		StartMinute: e.StartMinute,
		EndMinute:   e.EndMinute,
		Unavailable: e.Unavailable,
		Reason:      e.Reason,
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()

	from, err := time.ParseInLocation("2006-01-02", q.Get("from"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}

	to, err := time.ParseInLocation("2006-01-02", q.Get("to"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}

	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must not be before from")
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}
