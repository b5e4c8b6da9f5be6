package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// Repository is the doctor record store. Timing writes are conditional on the
// stored weekday so a concurrent change is reported instead of overwritten.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// AddTiming fails with schedule.ErrDayAlreadySet when day already has a window.
	AddTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error
	// EditTiming and RemoveTiming fail with schedule.ErrDayNotSet when day has no window.
	EditTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error
	RemoveTiming(ctx context.Context, id uuid.UUID, day time.Weekday) error
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var (
		d         Doctor
		status    string
		rawTiming []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, specialty, verification_status, timings, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Email, &d.Specialty, &status, &rawTiming, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, db.Remote("load doctor", err)
	}

	d.VerificationStatus = VerificationStatus(status)
	d.Timings = schedule.Availability{}
	if len(rawTiming) > 0 {
		if err := json.Unmarshal(rawTiming, &d.Timings); err != nil {
			return nil, fmt.Errorf("decode timings of doctor %s: %w", id, err)
		}
	}
	return &d, nil
}

func (r *PgRepository) AddTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error {
	return r.putTiming(ctx, "add timing", id, day, w, `NOT (timings ? $3)`, schedule.ErrDayAlreadySet)
}

func (r *PgRepository) EditTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error {
	return r.putTiming(ctx, "edit timing", id, day, w, `timings ? $3`, schedule.ErrDayNotSet)
}

func (r *PgRepository) putTiming(ctx context.Context, op string, id uuid.UUID, day time.Weekday, w schedule.Window, cond string, conflict error) error {
	data, err := json.Marshal(schedule.Availability{day: w})
	if err != nil {
		return fmt.Errorf("encode timings patch: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE doctors
		SET timings = timings || $2::jsonb,
		    updated_at = now()
		WHERE id = $1
		  AND `+cond, id, data, day.String())
	if err != nil {
		return db.Remote(op, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, day, conflict)
	}
	return nil
}

func (r *PgRepository) RemoveTiming(ctx context.Context, id uuid.UUID, day time.Weekday) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE doctors
		SET timings = timings - $2::text,
		    updated_at = now()
		WHERE id = $1
		  AND timings ? $2
	`, id, day.String())
	if err != nil {
		return db.Remote("remove timing", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, day, schedule.ErrDayNotSet)
	}
	return nil
}

// missOrConflict explains a conditional write that matched no row.
func (r *PgRepository) missOrConflict(ctx context.Context, id uuid.UUID, day time.Weekday, conflict error) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return db.Remote("check doctor", err)
	}
	if !exists {
		return ErrDoctorNotFound
	}
	return fmt.Errorf("%w: %s", conflict, day)
}
