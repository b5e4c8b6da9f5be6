package doctor

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

var ErrDoctorNotFound = errors.New("doctor not found")

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Doctor owns its weekly availability. Timings is only mutated through Service.
type Doctor struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	Specialty          *string
	VerificationStatus VerificationStatus
	Timings            schedule.Availability
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
