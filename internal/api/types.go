package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	DoctorID     string `json:"doctor_id" validate:"required,uuid"`
	PatientEmail string `json:"patient_email" validate:"required,email"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	Time         string `json:"time" validate:"required,datetime=15:04"`
}

type CancelAppointmentRequest struct {
	PatientEmail string `json:"patient_email" validate:"required,email"`
}

type JoinRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	UserID      string `json:"user_id" validate:"omitempty,max=120"`
}

type WindowRequest struct {
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	PatientEmail string    `json:"patient_email"`
	SelectedDate string    `json:"selected_date"`
	SelectedTime string    `json:"selected_time"`
	SelectedDay  string    `json:"selected_day"`
	Status       string    `json:"status"`
	RoomID       *string   `json:"room_id,omitempty"`
	BookedAt     time.Time `json:"booked_at"`
}

func toAppointmentResponse(a *appointment.Appointment) *AppointmentResponse {
	return &AppointmentResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		PatientEmail: a.PatientEmail,
		SelectedDate: a.SelectedDate.Format(time.DateOnly),
		SelectedTime: a.SelectedTime.String(),
		SelectedDay:  a.SelectedDay.String(),
		Status:       string(a.Status),
		RoomID:       a.RoomID,
		BookedAt:     a.BookedAt,
	}
}

// MutationResponse is returned by every state changing endpoint.
type MutationResponse struct {
	Message          string               `json:"message"`
	Appointment      *AppointmentResponse `json:"appointment,omitempty"`
	NotificationSent *bool                `json:"notification_sent,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	Timings  schedule.Availability `json:"timings"`
	Message  string                `json:"message,omitempty"`
}

type SlotResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Day  string `json:"day"`
}

type JoinResponse struct {
	Message     string `json:"message"`
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id,omitempty"`
}

type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	WaitSeconds *int64 `json:"wait_seconds,omitempty"`
}
