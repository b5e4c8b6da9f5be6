package schedule

import (
	"sort"
	"time"
)

// SlotLength is the fixed booking granularity.
const SlotLength = 15 * time.Minute

// Slot is a bookable (date, start time) pair. Date carries only year, month and day.
type Slot struct {
	Date  time.Time
	Start Clock
}

func (s Slot) Day() time.Weekday { return s.Date.Weekday() }

func (s Slot) Instant(loc *time.Location) time.Time {
	return s.Start.On(s.Date, loc)
}

func (s Slot) String() string {
	return s.Date.Format(time.DateOnly) + " " + s.Start.String()
}

func (s Slot) Equal(o Slot) bool {
	return SameDate(s.Date, o.Date) && s.Start == o.Start
}

// DateOf truncates t to midnight of its calendar day, keeping its location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// GenerateSlots expands one weekday entry into concrete slots on every matching
// date in [today, today+horizonDays]. A window whose length is not a multiple of
// SlotLength drops the trailing partial interval.
func GenerateSlots(e Entry, today time.Time, horizonDays int) []Slot {
	if e.Window.Start >= e.Window.End || horizonDays < 0 {
		return nil
	}

	step := Clock(SlotLength / time.Minute)
	first := DateOf(today)
	offset := (int(e.Day) - int(first.Weekday()) + 7) % 7

	var out []Slot
	for d := offset; d <= horizonDays; d += 7 {
		date := first.AddDate(0, 0, d)
		for t := e.Window.Start; t+step <= e.Window.End; t += step {
			out = append(out, Slot{Date: date, Start: t})
		}
	}
	return out
}

// GenerateAll expands every entry of a and orders the result by date, then time.
func GenerateAll(a Availability, today time.Time, horizonDays int) []Slot {
	var out []Slot
	for _, e := range a.Entries() {
		out = append(out, GenerateSlots(e, today, horizonDays)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !SameDate(out[i].Date, out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// Offers reports whether slot would be produced for a within the horizon.
func Offers(a Availability, today time.Time, horizonDays int, slot Slot) bool {
	w, ok := a[slot.Day()]
	if !ok {
		return false
	}
	for _, s := range GenerateSlots(Entry{Day: slot.Day(), Window: w}, today, horizonDays) {
		if s.Equal(slot) {
			return true
		}
	}
	return false
}
