package appointment

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/doctor"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// 2026-10-19 is a Monday.
var now = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *memRepo
	notifier *fakeNotifier
	doctors  fakeDoctors
	doctorID uuid.UUID
}

func newFixture(t *testing.T, deps Dependencies) *fixture {
	t.Helper()

	doc := &doctor.Doctor{
		ID:                 uuid.New(),
		Name:               "Dr. Meredith Grey",
		Email:              "grey@clinic.test",
		VerificationStatus: doctor.VerificationVerified,
		Timings: schedule.Availability{
			time.Monday:    {Start: schedule.MustClock("09:00"), End: schedule.MustClock("10:00")},
			time.Wednesday: {Start: schedule.MustClock("14:00"), End: schedule.MustClock("15:00")},
		},
	}

	f := &fixture{
		repo:     newMemRepo(),
		notifier: &fakeNotifier{},
		doctors:  fakeDoctors{doc.ID: doc},
		doctorID: doc.ID,
	}
	deps.Repo = f.repo
	deps.Doctors = f.doctors
	deps.Notifier = f.notifier

	f.svc = NewService(deps, ServiceConfig{
		Location:    time.UTC,
		HorizonDays: 14,
		Now:         func() time.Time { return now },
	}, zerolog.Nop())
	f.svc.random = bytes.NewReader(make([]byte, 256))
	return f
}

func (f *fixture) book(t *testing.T, email, date, clock string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), BookRequest{
		DoctorID:     f.doctorID,
		PatientEmail: email,
		Date:         date,
		Time:         clock,
	})
	require.NoError(t, err)
	return a
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newFixture(t, Dependencies{})

	a := f.book(t, "Patient@Example.com", "2026-10-19", "09:15")

	assert.Equal(t, StatusPending, a.Status)
	assert.Nil(t, a.RoomID)
	assert.Equal(t, "patient@example.com", a.PatientEmail)
	assert.Equal(t, "09:15", a.SelectedTime.String())
	assert.Equal(t, time.Monday, a.SelectedDay)
	assert.Equal(t, now, a.BookedAt)
	assert.Equal(t, []string{EventAppointmentBooked}, f.repo.eventTypes())
}

func TestBookRejectsLiveDuplicate(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()
	first := f.book(t, "a@example.com", "2026-10-26", "09:00")

	_, err := f.svc.Book(ctx, BookRequest{DoctorID: f.doctorID, PatientEmail: "b@example.com", Date: "2026-10-26", Time: "09:00"})
	assert.ErrorIs(t, err, ErrSlotAlreadyTaken)

	// a rejected appointment frees the slot
	_, err = f.svc.Reject(ctx, first.ID)
	require.NoError(t, err)
	second := f.book(t, "b@example.com", "2026-10-26", "09:00")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, Dependencies{})

	cases := map[string]BookRequest{
		"bad email":      {PatientEmail: "not-an-email", Date: "2026-10-19", Time: "09:00"},
		"bad date":       {PatientEmail: "p@example.com", Date: "19/10/2026", Time: "09:00"},
		"bad time":       {PatientEmail: "p@example.com", Date: "2026-10-19", Time: "9am"},
		"past date":      {PatientEmail: "p@example.com", Date: "2026-10-12", Time: "09:00"},
		"off grid":       {PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:05"},
		"window end":     {PatientEmail: "p@example.com", Date: "2026-10-19", Time: "10:00"},
		"day off":        {PatientEmail: "p@example.com", Date: "2026-10-20", Time: "09:00"},
		"beyond horizon": {PatientEmail: "p@example.com", Date: "2026-11-09", Time: "09:00"},
		"missing doctor": {DoctorID: uuid.Nil, PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if name != "missing doctor" {
				req.DoctorID = f.doctorID
			}
			_, err := f.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, f.repo.byID)
}

func TestBookRejectsSlotThatAlreadyStarted(t *testing.T) {
	f := newFixture(t, Dependencies{})
	f.svc.cfg.Now = func() time.Time { return time.Date(2026, 10, 19, 9, 20, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookRequest{DoctorID: f.doctorID, PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:15"})
	assert.ErrorIs(t, err, ErrValidation)

	f.book(t, "p@example.com", "2026-10-19", "09:30")
}

func TestBookAcceptsEveryListedSlot(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()

	listing := doctor.NewService(doctorStore{f.doctors}, doctor.ServiceConfig{
		Location:    time.UTC,
		HorizonDays: f.svc.cfg.HorizonDays,
		Now:         func() time.Time { return now },
	}, zerolog.Nop())

	slots, err := listing.Slots(ctx, f.doctorID, 90)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	last := slots[len(slots)-1]
	a := f.book(t, "p@example.com", last.Date.Format(time.DateOnly), last.Start.String())
	assert.True(t, a.Slot().Equal(last))
}

func TestBookRequiresVerifiedDoctor(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookRequest{DoctorID: uuid.New(), PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:00"})
	assert.ErrorIs(t, err, doctor.ErrDoctorNotFound)

	f.doctors[f.doctorID].VerificationStatus = doctor.VerificationPending
	_, err = f.svc.Book(ctx, BookRequest{DoctorID: f.doctorID, PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:00"})
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
}

func TestBookConcurrentRequestsForOneSlot(t *testing.T) {
	f := newFixture(t, Dependencies{})

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		taken   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), BookRequest{
				DoctorID:     f.doctorID,
				PatientEmail: "p" + uuid.NewString()[:8] + "@example.com",
				Date:         "2026-10-21",
				Time:         "14:30",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrSlotAlreadyTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, taken)
}

func TestBookWhileSlotLockIsHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, Dependencies{Locker: redisclient.NewRedisLocker(client, 5*time.Second)})
	require.NoError(t, mr.Set("lock:slot:"+f.doctorID.String()+":2026-10-19 09:30", "other"))

	_, err := f.svc.Book(context.Background(), BookRequest{DoctorID: f.doctorID, PatientEmail: "p@example.com", Date: "2026-10-19", Time: "09:30"})
	assert.ErrorIs(t, err, ErrSlotBeingBooked)

	// other slots are unaffected and the lock is released afterwards
	f.book(t, "p@example.com", "2026-10-19", "09:45")
	assert.False(t, mr.Exists("lock:slot:"+f.doctorID.String()+":2026-10-19 09:45"))
}

func TestApproveProvisionsRoomAndSendsInvite(t *testing.T) {
	f := newFixture(t, Dependencies{})
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	res, err := f.svc.Approve(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, res.Appointment.Status)
	assert.Equal(t, "AAAAAA", res.Appointment.Room())
	assert.True(t, res.NotificationSent)
	assert.NoError(t, res.NotificationErr)

	require.Len(t, f.notifier.sent, 1)
	inv := f.notifier.sent[0]
	assert.Equal(t, "p@example.com", inv.PatientEmail)
	assert.Equal(t, "AAAAAA", inv.RoomID)
	assert.Equal(t, "2026-10-19", inv.Date)
	assert.Equal(t, "09:15", inv.Time)
	assert.Equal(t, "Dr. Meredith Grey", inv.DoctorName)
	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentConfirmed}, f.repo.eventTypes())
}

func TestApproveTwiceKeepsFirstRoom(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	first, err := f.svc.Approve(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Appointment.Room(), stored.Room())
	assert.Equal(t, 1, f.notifier.calls)
}

func TestApproveSkipsRoomIdsInUse(t *testing.T) {
	f := newFixture(t, Dependencies{})
	f.repo.rooms["AAAAAA"] = true
	f.svc.random = bytes.NewReader(append(make([]byte, RoomIDLength), bytes.Repeat([]byte{1}, RoomIDLength)...))
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	res, err := f.svc.Approve(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", res.Appointment.Room())
}

func TestApproveGivesUpWhenEveryRoomIdCollides(t *testing.T) {
	f := newFixture(t, Dependencies{})
	f.repo.rooms["AAAAAA"] = true
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	_, err := f.svc.Approve(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrRoomAllocation)

	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestApproveNotificationFailureKeepsConfirmation(t *testing.T) {
	f := newFixture(t, Dependencies{})
	f.notifier.err = errors.New("smtp timeout")
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	res, err := f.svc.Approve(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, res.NotificationSent)
	assert.ErrorIs(t, res.NotificationErr, ErrNotificationDeliveryFailed)

	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.NotEmpty(t, stored.Room())
}

func TestApproveLosesRaceWithCancel(t *testing.T) {
	f := newFixture(t, Dependencies{})
	a := f.book(t, "p@example.com", "2026-10-19", "09:15")

	f.repo.beforeTransition = func(id uuid.UUID) {
		f.repo.mu.Lock()
		defer f.repo.mu.Unlock()
		cur := f.repo.byID[id]
		cur.Status = StatusCancelled
		f.repo.byID[id] = cur
	}

	_, err := f.svc.Approve(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.Zero(t, f.notifier.calls)

	f.repo.beforeTransition = nil
	stored, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Nil(t, stored.RoomID)
}

func TestRejectAndCancel(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()

	a := f.book(t, "p@example.com", "2026-10-19", "09:00")
	_, err := f.svc.Cancel(ctx, a.ID, "someone@example.com")
	assert.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := f.svc.Cancel(ctx, a.ID, " P@example.com ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Reject(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Approve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b := f.book(t, "q@example.com", "2026-10-19", "09:30")
	_, err = f.svc.Approve(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, b.ID, "q@example.com")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Reject(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRoomIdPresentOnlyWhenConfirmed(t *testing.T) {
	f := newFixture(t, Dependencies{})
	ctx := context.Background()

	approved := f.book(t, "a@example.com", "2026-10-19", "09:00")
	rejected := f.book(t, "b@example.com", "2026-10-19", "09:15")
	cancelled := f.book(t, "c@example.com", "2026-10-19", "09:30")
	f.book(t, "d@example.com", "2026-10-19", "09:45")

	_, err := f.svc.Approve(ctx, approved.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, rejected.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID, "c@example.com")
	require.NoError(t, err)

	list, err := f.svc.ListByDoctor(ctx, f.doctorID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for _, a := range list {
		assert.Equal(t, a.Status == StatusConfirmed, a.RoomID != nil, a.Status)
	}
}

func TestListsAreCachedAndInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, Dependencies{Cache: NewRedisListCache(client, time.Minute, zerolog.Nop())})
	ctx := context.Background()
	a := f.book(t, "p@example.com", "2026-10-19", "09:00")

	list, err := f.svc.ListByPatient(ctx, "P@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = f.svc.ListByPatient(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.listCalls)

	_, err = f.svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(PatientListKey("p@example.com")))

	list, err = f.svc.ListByPatient(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.listCalls)
	assert.Equal(t, StatusConfirmed, list[0].Status)
}

func TestApproveRedrawsRoomClaimedConcurrently(t *testing.T) {
	f := newFixture(t, Dependencies{})
	f.svc.random = bytes.NewReader(append(make([]byte, RoomIDLength), bytes.Repeat([]byte{1}, RoomIDLength)...))
	ctx := context.Background()
	other := f.book(t, "a@example.com", "2026-10-19", "09:00")
	a := f.book(t, "b@example.com", "2026-10-19", "09:15")

	// another approval confirms AAAAAA after the availability check
	f.repo.beforeTransition = func(uuid.UUID) {
		f.repo.beforeTransition = nil
		f.repo.mu.Lock()
		defer f.repo.mu.Unlock()
		room := "AAAAAA"
		cur := f.repo.byID[other.ID]
		cur.Status = StatusConfirmed
		cur.RoomID = &room
		f.repo.byID[other.ID] = cur
	}

	res, err := f.svc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", res.Appointment.Room())

	stored, err := f.svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", stored.Room())
}

func TestListFillRacingTransitionIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, Dependencies{Cache: NewRedisListCache(client, time.Minute, zerolog.Nop())})
	ctx := context.Background()
	a := f.book(t, "p@example.com", "2026-10-19", "09:00")

	// the appointment is approved after the store read, before the cache fill
	f.repo.afterListRead = func() {
		f.repo.afterListRead = nil
		_, err := f.svc.Approve(ctx, a.ID)
		require.NoError(t, err)
	}

	list, err := f.svc.ListByDoctor(ctx, f.doctorID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusPending, list[0].Status)

	list, err = f.svc.ListByDoctor(ctx, f.doctorID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusConfirmed, list[0].Status)
	assert.Equal(t, "AAAAAA", list[0].Room())
}
