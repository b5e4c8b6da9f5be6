package doctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

type fakeRepo struct {
	doctors  map[uuid.UUID]*Doctor
	writes   int
	writeErr error

	// beforeWrite runs between the service's read and its write.
	beforeWrite func()
}

func newFakeRepo(d *Doctor) *fakeRepo {
	return &fakeRepo{doctors: map[uuid.UUID]*Doctor{d.ID: d}}
}

func (f *fakeRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	cp.Timings = schedule.Availability{}
	for k, v := range d.Timings {
		cp.Timings[k] = v
	}
	return &cp, nil
}

func (f *fakeRepo) write(id uuid.UUID, day time.Weekday, wantSet bool, apply func(schedule.Availability)) error {
	if f.beforeWrite != nil {
		f.beforeWrite()
	}
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	d, ok := f.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	if _, set := d.Timings[day]; set != wantSet {
		if set {
			return schedule.ErrDayAlreadySet
		}
		return schedule.ErrDayNotSet
	}
	apply(d.Timings)
	return nil
}

func (f *fakeRepo) AddTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error {
	return f.write(id, day, false, func(a schedule.Availability) { a[day] = w })
}

func (f *fakeRepo) EditTiming(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) error {
	return f.write(id, day, true, func(a schedule.Availability) { a[day] = w })
}

func (f *fakeRepo) RemoveTiming(ctx context.Context, id uuid.UUID, day time.Weekday) error {
	return f.write(id, day, true, func(a schedule.Availability) { delete(a, day) })
}

func newTestService(t *testing.T) (*Service, *fakeRepo, uuid.UUID) {
	t.Helper()
	d := &Doctor{ID: uuid.New(), Name: "Dr. Grey", Timings: schedule.Availability{}}
	repo := newFakeRepo(d)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) // Monday
	svc := NewService(repo, ServiceConfig{
		Location:    time.UTC,
		HorizonDays: 14,
		Now:         func() time.Time { return now },
	}, zerolog.Nop())
	return svc, repo, d.ID
}

func mustWindow(t *testing.T, start, end string) schedule.Window {
	t.Helper()
	w, err := schedule.NewWindow(start, end)
	require.NoError(t, err)
	return w
}

func TestServiceAddEditRemoveWindow(t *testing.T) {
	svc, repo, id := newTestService(t)
	ctx := context.Background()

	av, err := svc.AddWindow(ctx, id, time.Monday, mustWindow(t, "09:00", "10:00"))
	require.NoError(t, err)
	assert.Len(t, av, 1)

	_, err = svc.AddWindow(ctx, id, time.Monday, mustWindow(t, "12:00", "13:00"))
	assert.ErrorIs(t, err, schedule.ErrDayAlreadySet)
	assert.Equal(t, 1, repo.writes, "rejected changes must not be written")

	av, err = svc.EditWindow(ctx, id, time.Monday, mustWindow(t, "12:00", "13:00"))
	require.NoError(t, err)
	assert.Equal(t, schedule.MustClock("12:00"), av[time.Monday].Start)

	_, err = svc.RemoveWindow(ctx, id, time.Friday)
	assert.ErrorIs(t, err, schedule.ErrDayNotSet)

	av, err = svc.RemoveWindow(ctx, id, time.Monday)
	require.NoError(t, err)
	assert.Empty(t, av)
	assert.Equal(t, 3, repo.writes)
}

func TestServiceWriteFailureIsReported(t *testing.T) {
	svc, repo, id := newTestService(t)
	repo.writeErr = errors.New("store down")

	_, err := svc.AddWindow(context.Background(), id, time.Monday, mustWindow(t, "09:00", "10:00"))
	assert.ErrorIs(t, err, repo.writeErr)
}

func TestServiceUnknownDoctor(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Slots(context.Background(), uuid.New(), 7)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestServiceConcurrentAddIsNotOverwritten(t *testing.T) {
	svc, repo, id := newTestService(t)
	ctx := context.Background()

	first := mustWindow(t, "09:00", "10:00")
	repo.beforeWrite = func() {
		repo.beforeWrite = nil
		repo.doctors[id].Timings[time.Monday] = first
	}

	_, err := svc.AddWindow(ctx, id, time.Monday, mustWindow(t, "14:00", "15:00"))
	assert.ErrorIs(t, err, schedule.ErrDayAlreadySet)

	av, err := svc.Availability(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, av[time.Monday])
}

func TestServiceSlotsUsesHorizon(t *testing.T) {
	svc, _, id := newTestService(t)
	ctx := context.Background()
	_, err := svc.AddWindow(ctx, id, time.Monday, mustWindow(t, "09:00", "10:00"))
	require.NoError(t, err)

	slots, err := svc.Slots(ctx, id, -1)
	require.NoError(t, err)
	assert.Len(t, slots, 12) // three Mondays in [today, today+14], four slots each

	slots, err = svc.Slots(ctx, id, 6)
	require.NoError(t, err)
	assert.Len(t, slots, 4)

	slots, err = svc.Slots(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, slots, 4, "zero lists today only")

	slots, err = svc.Slots(ctx, id, 365)
	require.NoError(t, err)
	assert.Len(t, slots, 12, "listings stop at the booking horizon")
}

func TestServiceZeroHorizonIsKept(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	d := &Doctor{ID: uuid.New(), Timings: schedule.Availability{time.Monday: mustWindow(t, "09:00", "09:30")}}
	svc := NewService(newFakeRepo(d), ServiceConfig{
		Location:    time.UTC,
		HorizonDays: 0,
		Now:         func() time.Time { return now },
	}, zerolog.Nop())

	slots, err := svc.Slots(context.Background(), d.ID, -1)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}
