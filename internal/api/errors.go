package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
	"github.com/hackgods/telemed-scheduling/internal/session"
)

// handleServiceError maps domain errors to a status, a stable code and copy a
// patient or doctor can act on.
func handleServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var notJoinable *session.NotJoinableError

	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_booking", err.Error())
	case schedule.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
	case errors.Is(err, session.ErrMissingName):
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
	case errors.Is(err, doctor.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", "This doctor is not accepting bookings right now.")
	case errors.Is(err, appointment.ErrSlotAlreadyTaken):
		writeError(w, http.StatusConflict, "slot_taken", "This time was just booked, please choose another time.")
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "Someone is booking this time right now, please retry shortly.")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "This action is no longer available for the appointment.")
	case errors.Is(err, appointment.ErrStaleState):
		writeError(w, http.StatusConflict, "stale_state", "The appointment changed in the meantime, refresh and retry.")
	case errors.Is(err, session.ErrNotConfirmed):
		writeError(w, http.StatusConflict, "not_confirmed", "Only confirmed appointments have a session room.")
	case errors.As(err, &notJoinable):
		resp := ErrorResponse{Error: "not_joinable", Message: "The session opens 10 minutes before the start time."}
		if notJoinable.HasWait {
			secs := int64(notJoinable.Wait.Seconds())
			resp.WaitSeconds = &secs
		}
		writeJSON(w, http.StatusForbidden, resp)
	case errors.Is(err, appointment.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, appointment.ErrRejected):
		logger.Warn().Err(err).Msg("write rejected by record store")
		writeError(w, http.StatusConflict, "write_rejected", "The change conflicts with the current data, refresh and retry.")
	case errors.Is(err, appointment.ErrRemoteUnavailable), errors.Is(err, appointment.ErrRoomAllocation):
		logger.Error().Err(err).Msg("remote dependency failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "The service is temporarily unavailable, please retry.")
	default:
		logger.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong.")
	}
}
