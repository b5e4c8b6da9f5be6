package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

const (
	// liveSlotConstraint is the partial unique index on (doctor_id, selected_date, selected_time).
	liveSlotConstraint = "appointments_live_slot_key"
	// confirmedRoomConstraint keeps room ids unique among confirmed appointments.
	confirmedRoomConstraint = "appointments_confirmed_room_key"
)

const appointmentColumns = `id, doctor_id, patient_email, selected_date, selected_time, selected_day, status, room_id, booked_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		clock    string
		day      string
		status   string
		roomID   *string
		selected time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientEmail,
		&selected,
		&clock,
		&day,
		&status,
		&roomID,
		&a.BookedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, db.Remote("scan appointment", err)
	}

	a.SelectedDate = schedule.DateOf(selected)
	if a.SelectedTime, err = schedule.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	if a.SelectedDay, err = schedule.ParseWeekday(day); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	a.Status = Status(status)
	a.RoomID = roomID
	return &a, nil
}

func (r *PgRepository) queryAppointments(ctx context.Context, op, sql string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Remote(op, err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, db.Remote(op, err)
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindLiveForSlot(ctx context.Context, doctorID uuid.UUID, slot schedule.Slot) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND selected_date = $2
		  AND selected_time = $3
		  AND status IN ('pending', 'confirmed')
		LIMIT 1
	`, doctorID, slot.Date, slot.Start.String())
	return scanAppointment(row)
}

func (r *PgRepository) RoomInUse(ctx context.Context, roomID string) (bool, error) {
	var exists int
	err := r.db.QueryRow(ctx, `
		SELECT 1 FROM appointments WHERE room_id = $1 AND status = 'confirmed'
	`, roomID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, db.Remote("check room id", err)
	}
	return true, nil
}

func (r *PgRepository) CreatePending(ctx context.Context, a NewAppointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_email, selected_date, selected_time, selected_day, status, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7)
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientEmail, a.Slot.Date, a.Slot.Start.String(), a.Slot.Day().String(), a.BookedAt)

	created, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, liveSlotConstraint) {
			return nil, ErrSlotAlreadyTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, from, to Status, roomID *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    room_id = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from), roomID)

	updated, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, confirmedRoomConstraint) {
			return nil, errRoomTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return r.queryAppointments(ctx, "list appointments by doctor", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY selected_date, selected_time
	`, doctorID)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientEmail string) ([]Appointment, error) {
	return r.queryAppointments(ctx, "list appointments by patient", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE lower(patient_email) = lower($1)
		ORDER BY selected_date, selected_time
	`, patientEmail)
}

func (r *PgRepository) ListDatedBefore(ctx context.Context, date time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, "list elapsed appointments", `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE selected_date < $1
	`, date)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return db.Remote("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return db.Remote("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
