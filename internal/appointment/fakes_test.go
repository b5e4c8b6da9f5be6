package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/notify"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// memRepo mirrors the Postgres constraints the service relies on: one live
// appointment per slot, unique rooms among confirmed appointments and
// conditional status updates.
type memRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]Appointment
	events []EventLog
	rooms  map[string]bool // extra ids reported as taken

	beforeTransition func(id uuid.UUID)
	afterListRead    func()
	deleteErr        map[uuid.UUID]error
	listCalls        int
}

func newMemRepo() *memRepo {
	return &memRepo{
		byID:      map[uuid.UUID]Appointment{},
		rooms:     map[string]bool{},
		deleteErr: map[uuid.UUID]error{},
	}
}

func live(s Status) bool { return s == StatusPending || s == StatusConfirmed }

func (m *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) FindLiveForSlot(ctx context.Context, doctorID uuid.UUID, slot schedule.Slot) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.DoctorID == doctorID && a.Slot().Equal(slot) && live(a.Status) {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) RoomInUse(ctx context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[roomID] {
		return true, nil
	}
	for _, a := range m.byID {
		if a.Status == StatusConfirmed && a.Room() == roomID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreatePending(ctx context.Context, n NewAppointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.DoctorID == n.DoctorID && a.Slot().Equal(n.Slot) && live(a.Status) {
			return nil, ErrSlotAlreadyTaken
		}
	}
	a := Appointment{
		ID:           n.ID,
		DoctorID:     n.DoctorID,
		PatientEmail: n.PatientEmail,
		SelectedDate: schedule.DateOf(n.Slot.Date),
		SelectedTime: n.Slot.Start,
		SelectedDay:  n.Slot.Day(),
		Status:       StatusPending,
		BookedAt:     n.BookedAt,
		UpdatedAt:    n.BookedAt,
	}
	m.byID[a.ID] = a
	return &a, nil
}

func (m *memRepo) Transition(ctx context.Context, id uuid.UUID, from, to Status, roomID *string) (*Appointment, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if to == StatusConfirmed && roomID != nil {
		for other, b := range m.byID {
			if other != id && b.Status == StatusConfirmed && b.Room() == *roomID {
				return nil, errRoomTaken
			}
		}
	}
	a.Status = to
	a.RoomID = roomID
	m.byID[id] = a
	return &a, nil
}

func (m *memRepo) sorted(keep func(Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range m.byID {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SelectedDate.Equal(out[j].SelectedDate) {
			return out[i].SelectedDate.Before(out[j].SelectedDate)
		}
		return out[i].SelectedTime < out[j].SelectedTime
	})
	return out
}

func (m *memRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	m.listCalls++
	out := m.sorted(func(a Appointment) bool { return a.DoctorID == doctorID })
	hook := m.afterListRead
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memRepo) ListByPatient(ctx context.Context, email string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return m.sorted(func(a Appointment) bool { return strings.EqualFold(a.PatientEmail, email) }), nil
}

func (m *memRepo) ListDatedBefore(ctx context.Context, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(a Appointment) bool { return a.SelectedDate.Before(date) }), nil
}

func (m *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := m.byID[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fakeDoctors map[uuid.UUID]*doctor.Doctor

func (f fakeDoctors) Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, ok := f[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	return d, nil
}

// doctorStore serves fakeDoctors through the doctor.Repository used by doctor.Service.
type doctorStore struct{ fakeDoctors }

func (d doctorStore) GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	return d.Get(ctx, id)
}

func (doctorStore) AddTiming(context.Context, uuid.UUID, time.Weekday, schedule.Window) error {
	return errors.ErrUnsupported
}

func (doctorStore) EditTiming(context.Context, uuid.UUID, time.Weekday, schedule.Window) error {
	return errors.ErrUnsupported
}

func (doctorStore) RemoveTiming(context.Context, uuid.UUID, time.Weekday) error {
	return errors.ErrUnsupported
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	sent  []notify.Invite
	calls int
}

func (f *fakeNotifier) SendSessionInvite(ctx context.Context, inv notify.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, inv)
	return nil
}

var errStoreDown = errors.New("connection reset by peer")
