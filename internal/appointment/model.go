package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Actor is who asks for a status change.
type Actor string

const (
	ActorDoctor  Actor = "doctor"
	ActorPatient Actor = "patient"
)

type transition struct {
	from, to Status
}

// transitions lists every legal status change and who may perform it. Anything
// absent is an invalid transition; deletion by the retention sweep is not a transition.
var transitions = map[transition]Actor{
	{StatusPending, StatusConfirmed}: ActorDoctor,
	{StatusPending, StatusRejected}:  ActorDoctor,
	{StatusPending, StatusCancelled}: ActorPatient,
}

// CanTransition reports whether actor may move an appointment from one status to another.
func CanTransition(actor Actor, from, to Status) bool {
	allowed, ok := transitions[transition{from, to}]
	return ok && allowed == actor
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusCancelled
}

type Appointment struct {
	ID           uuid.UUID      `json:"id"`
	DoctorID     uuid.UUID      `json:"doctor_id"`
	PatientEmail string         `json:"patient_email"`
	SelectedDate time.Time      `json:"selected_date"`
	SelectedTime schedule.Clock `json:"selected_time"`
	SelectedDay  time.Weekday   `json:"selected_day"`
	Status       Status         `json:"status"`
	RoomID       *string        `json:"room_id,omitempty"`
	BookedAt     time.Time      `json:"booked_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (a Appointment) Slot() schedule.Slot {
	return schedule.Slot{Date: a.SelectedDate, Start: a.SelectedTime}
}

// Room returns the session room id, empty unless confirmed.
func (a Appointment) Room() string {
	if a.RoomID == nil {
		return ""
	}
	return *a.RoomID
}

// NewAppointment is what the booking service persists.
type NewAppointment struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	PatientEmail string
	Slot         schedule.Slot
	BookedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
