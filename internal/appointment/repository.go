package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks. Live means pending or confirmed.
	FindLiveForSlot(ctx context.Context, doctorID uuid.UUID, slot schedule.Slot) (*Appointment, error)
	RoomInUse(ctx context.Context, roomID string) (bool, error)

	// Creation and updates
	CreatePending(ctx context.Context, a NewAppointment) (*Appointment, error)
	// Transition changes status only while the stored status still equals from.
	// It returns ErrAppointmentNotFound when no row matched and errRoomTaken when
	// another confirmed appointment already holds roomID.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, roomID *string) (*Appointment, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientEmail string) ([]Appointment, error)

	// Retention sweep
	ListDatedBefore(ctx context.Context, date time.Time) ([]Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
