package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/session"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientEmail string) ([]appointment.Appointment, error)
	Approve(ctx context.Context, id uuid.UUID) (*appointment.ApprovalResult, error)
	Reject(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, patientEmail string) (*appointment.Appointment, error)
}

type appointmentHandlers struct {
	svc    AppointmentService
	gate   *session.Gate
	now    func() time.Time
	logger zerolog.Logger
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *appointmentHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	appt, err := h.svc.Book(r.Context(), appointment.BookRequest{
		DoctorID:     uuid.MustParse(req.DoctorID),
		PatientEmail: req.PatientEmail,
		Date:         req.Date,
		Time:         req.Time,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, MutationResponse{
		Message:     fmt.Sprintf("Appointment requested for %s, waiting for the doctor to approve", appt.Slot()),
		Appointment: toAppointmentResponse(appt),
	})
}

func (h *appointmentHandlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID, email := q.Get("doctor_id"), strings.TrimSpace(q.Get("patient_email"))

	var (
		list []appointment.Appointment
		err  error
	)
	switch {
	case doctorID != "" && email == "":
		id, perr := uuid.Parse(doctorID)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		list, err = h.svc.ListByDoctor(r.Context(), id)
	case email != "" && doctorID == "":
		if verr := validate.Var(email, "email"); verr != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_email", "patient_email must be an email address")
			return
		}
		list, err = h.svc.ListByPatient(r.Context(), email)
	default:
		writeError(w, http.StatusBadRequest, "invalid_query", "pass exactly one of doctor_id or patient_email")
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]*AppointmentResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toAppointmentResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *appointmentHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentHandlers) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	room := res.Appointment.Room()
	msg := fmt.Sprintf("Appointment approved, room %s created", room)
	if !res.NotificationSent {
		msg += "; the patient could not be notified, share the room id directly"
	}
	sent := res.NotificationSent
	writeJSON(w, http.StatusOK, MutationResponse{
		Message:          msg,
		Appointment:      toAppointmentResponse(res.Appointment),
		NotificationSent: &sent,
	})
}

func (h *appointmentHandlers) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Reject(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "Appointment rejected", Appointment: toAppointmentResponse(appt)})
}

func (h *appointmentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req CancelAppointmentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	appt, err := h.svc.Cancel(r.Context(), id, req.PatientEmail)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "Appointment cancelled", Appointment: toAppointmentResponse(appt)})
}

// join re-evaluates the session gate on every attempt.
func (h *appointmentHandlers) join(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req JoinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	handoff, err := h.gate.Admit(*appt, h.now(), req.DisplayName, req.UserID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info().Str("appointment_id", id.String()).Str("room_id", handoff.RoomID).Msg("session join admitted")
	writeJSON(w, http.StatusOK, JoinResponse{
		Message:     "Joining room " + handoff.RoomID,
		RoomID:      handoff.RoomID,
		DisplayName: handoff.DisplayName,
		UserID:      handoff.UserID,
	})
}
