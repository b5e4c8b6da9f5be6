package session

import (
	"errors"
	"strings"
	"time"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
)

// JoinWindow is how long before the start time a session room opens.
const JoinWindow = 10 * time.Minute

var (
	ErrNotJoinable  = errors.New("session is not joinable yet")
	ErrNotConfirmed = errors.New("appointment is not confirmed")
	ErrMissingName  = errors.New("display name is required")
)

// CanJoin reports whether a confirmed appointment with a room may be joined at
// now: on its own date, from JoinWindow before the start up to the start itself.
func CanJoin(a appointment.Appointment, now time.Time, loc *time.Location) bool {
	if a.Status != appointment.StatusConfirmed || a.Room() == "" {
		return false
	}
	start := startOf(a, loc)
	now = now.In(start.Location())
	if !sameDate(now, start) {
		return false
	}
	return !now.Before(start.Add(-JoinWindow)) && !now.After(start)
}

// TimeUntilJoinable returns how long remains before the join window opens.
// ok is false once the window has opened, whether or not it has since closed.
func TimeUntilJoinable(a appointment.Appointment, now time.Time, loc *time.Location) (time.Duration, bool) {
	opens := startOf(a, loc).Add(-JoinWindow)
	if !now.Before(opens) {
		return 0, false
	}
	return opens.Sub(now), true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func startOf(a appointment.Appointment, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return a.SelectedTime.On(a.SelectedDate, loc)
}

// Handoff is everything the video layer needs to put a participant in a room.
type Handoff struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id,omitempty"`
}

// NotJoinableError carries the remaining wait when the room opens later today.
type NotJoinableError struct {
	Wait    time.Duration
	HasWait bool
}

func (e *NotJoinableError) Error() string { return ErrNotJoinable.Error() }
func (e *NotJoinableError) Unwrap() error { return ErrNotJoinable }

type Gate struct {
	loc     *time.Location
	metrics *metrics.SchedulingMetrics
}

func NewGate(loc *time.Location, m *metrics.SchedulingMetrics) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{loc: loc, metrics: m}
}

// Admit lets a participant into the room of a confirmed appointment while the
// join window is open.
func (g *Gate) Admit(a appointment.Appointment, now time.Time, displayName, userID string) (Handoff, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Handoff{}, ErrMissingName
	}
	if a.Status != appointment.StatusConfirmed || a.Room() == "" {
		g.metrics.ObserveJoin(false)
		return Handoff{}, ErrNotConfirmed
	}
	if !CanJoin(a, now, g.loc) {
		g.metrics.ObserveJoin(false)
		wait, ok := TimeUntilJoinable(a, now, g.loc)
		return Handoff{}, &NotJoinableError{Wait: wait, HasWait: ok}
	}

	g.metrics.ObserveJoin(true)
	return Handoff{RoomID: a.Room(), DisplayName: name, UserID: strings.TrimSpace(userID)}, nil
}
