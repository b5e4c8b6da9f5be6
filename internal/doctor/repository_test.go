package doctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

var doctorColumns = []string{"id", "name", "email", "specialty", "verification_status", "timings", "created_at", "updated_at"}

func TestPgRepositoryGetDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM doctors").WithArgs(id).WillReturnRows(
		pgxmock.NewRows(doctorColumns).AddRow(
			id, "Dr. Ada", "ada@example.com", (*string)(nil), "verified",
			[]byte(`{"Monday":{"startTime":"09:00","endTime":"10:00"}}`), now, now,
		),
	)

	d, err := repo.GetDoctor(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Ada", d.Name)
	assert.Equal(t, VerificationVerified, d.VerificationStatus)
	require.Contains(t, d.Timings, time.Monday)
	assert.Equal(t, schedule.MustClock("09:00"), d.Timings[time.Monday].Start)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetDoctorErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	id := uuid.New()

	mock.ExpectQuery("FROM doctors").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetDoctor(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	mock.ExpectQuery("FROM doctors").WithArgs(id).WillReturnError(errors.New("connection reset"))
	_, err = repo.GetDoctor(context.Background(), id)
	assert.ErrorIs(t, err, db.ErrRemoteUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryConditionalTimingWrites(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	ctx := context.Background()
	id := uuid.New()
	w, err := schedule.NewWindow("09:00", "10:00")
	require.NoError(t, err)

	mock.ExpectExec(`NOT \(timings \? \$3\)`).WithArgs(id, pgxmock.AnyArg(), "Monday").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.AddTiming(ctx, id, time.Monday, w))

	// a concurrent add already declared the weekday
	mock.ExpectExec("UPDATE doctors").WithArgs(id, pgxmock.AnyArg(), "Monday").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(id).WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.AddTiming(ctx, id, time.Monday, w), schedule.ErrDayAlreadySet)

	mock.ExpectExec("UPDATE doctors").WithArgs(id, pgxmock.AnyArg(), "Tuesday").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(id).WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.EditTiming(ctx, id, time.Tuesday, w), schedule.ErrDayNotSet)

	mock.ExpectExec("UPDATE doctors").WithArgs(id, "Monday").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.RemoveTiming(ctx, id, time.Monday))

	mock.ExpectExec("UPDATE doctors").WithArgs(id, "Tuesday").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(id).WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.RemoveTiming(ctx, id, time.Tuesday), ErrDoctorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
