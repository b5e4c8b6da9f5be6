package appointment

import (
	"errors"

	"github.com/hackgods/telemed-scheduling/internal/db"
)

var (
	ErrAppointmentNotFound        = errors.New("appointment not found")
	ErrValidation                 = errors.New("invalid booking request")
	ErrSlotAlreadyTaken           = errors.New("slot already taken")
	ErrSlotBeingBooked            = errors.New("slot is currently being booked, please retry")
	ErrDoctorUnavailable          = errors.New("doctor is not accepting bookings")
	ErrInvalidTransition          = errors.New("invalid status transition")
	ErrStaleState                 = errors.New("appointment was modified concurrently")
	ErrNotOwner                   = errors.New("appointment belongs to another patient")
	ErrNotificationDeliveryFailed = errors.New("session invite could not be delivered")
	ErrRoomAllocation             = errors.New("could not allocate a free room id")

	// Shared with the record stores.
	ErrRemoteUnavailable = db.ErrRemoteUnavailable
	ErrRejected          = db.ErrRejected

	// errRoomTaken means a concurrent approval claimed the room id between the
	// availability check and the write.
	errRoomTaken = errors.New("room id claimed concurrently")
)
