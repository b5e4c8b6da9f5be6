package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidClock   = errors.New("time must be HH:MM in 24-hour format")
	ErrInvalidWindow  = errors.New("start time must be before end time")
	ErrUnknownWeekday = errors.New("unknown weekday")
	ErrDayAlreadySet  = errors.New("availability for this weekday already exists")
	ErrDayNotSet      = errors.New("no availability for this weekday")
)

// IsValidation reports whether err comes from malformed availability or slot input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidClock) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrUnknownWeekday) ||
		errors.Is(err, ErrDayAlreadySet) ||
		errors.Is(err, ErrDayNotSet)
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == n {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
}

// Clock is a local wall clock time expressed in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// On places the clock time on the calendar date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// Window is one working interval of a day. End is exclusive.
type Window struct {
	Start Clock
	End   Clock
}

func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if w.Start < 0 || w.End > minutesPerDay || w.Start >= w.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

type windowJSON struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{StartTime: w.Start.String(), EndTime: w.End.String()})
}

func (w *Window) UnmarshalJSON(data []byte) error {
	var raw windowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewWindow(raw.StartTime, raw.EndTime)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Entry is a single weekday of a doctor's availability.
type Entry struct {
	Day    time.Weekday
	Window Window
}

// Availability is a doctor's recurring weekly schedule, at most one window per weekday.
type Availability map[time.Weekday]Window

// Add declares a new weekday. An existing weekday is never overwritten or merged.
func (a Availability) Add(day time.Weekday, w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if _, ok := a[day]; ok {
		return fmt.Errorf("%w: %s", ErrDayAlreadySet, day)
	}
	a[day] = w
	return nil
}

// Edit replaces the window of a weekday that is already declared.
func (a Availability) Edit(day time.Weekday, w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if _, ok := a[day]; !ok {
		return fmt.Errorf("%w: %s", ErrDayNotSet, day)
	}
	a[day] = w
	return nil
}

func (a Availability) Remove(day time.Weekday) error {
	if _, ok := a[day]; !ok {
		return fmt.Errorf("%w: %s", ErrDayNotSet, day)
	}
	delete(a, day)
	return nil
}

// Entries returns the declared weekdays ordered Sunday first.
func (a Availability) Entries() []Entry {
	out := make([]Entry, 0, len(a))
	for d, w := range a {
		out = append(out, Entry{Day: d, Window: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// MarshalJSON keeps the document store layout: {"Monday":{"startTime":"09:00","endTime":"17:00"}}.
func (a Availability) MarshalJSON() ([]byte, error) {
	m := make(map[string]Window, len(a))
	for d, w := range a {
		m[d.String()] = w
	}
	return json.Marshal(m)
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	var m map[string]Window
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Availability, len(m))
	for name, w := range m {
		d, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		out[d] = w
	}
	*a = out
	return nil
}
