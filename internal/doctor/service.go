package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// DefaultHorizonDays applies when ServiceConfig.HorizonDays is negative.
const DefaultHorizonDays = 14

type ServiceConfig struct {
	Location *time.Location
	// HorizonDays is the booking horizon. Listings never reach past it, so every
	// listed slot can be booked. Zero offers today only.
	HorizonDays   int
	RemoteTimeout time.Duration
	Now           func() time.Time
}

// Service edits a doctor's availability and expands it into slots.
type Service struct {
	repo   Repository
	cfg    ServiceConfig
	logger zerolog.Logger
}

func NewService(repo Repository, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 10 * time.Second
	}
	if cfg.HorizonDays < 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	return &Service{repo: repo, cfg: cfg, logger: logger}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()
	return s.repo.GetDoctor(ctx, id)
}

func (s *Service) Availability(ctx context.Context, id uuid.UUID) (schedule.Availability, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Timings, nil
}

// AddWindow declares a weekday that has no window yet.
func (s *Service) AddWindow(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) (schedule.Availability, error) {
	return s.update(ctx, id, day, func(a schedule.Availability) error { return a.Add(day, w) }, func(ctx context.Context) error {
		return s.repo.AddTiming(ctx, id, day, w)
	})
}

// EditWindow replaces the window of an already declared weekday.
func (s *Service) EditWindow(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) (schedule.Availability, error) {
	return s.update(ctx, id, day, func(a schedule.Availability) error { return a.Edit(day, w) }, func(ctx context.Context) error {
		return s.repo.EditTiming(ctx, id, day, w)
	})
}

func (s *Service) RemoveWindow(ctx context.Context, id uuid.UUID, day time.Weekday) (schedule.Availability, error) {
	return s.update(ctx, id, day, func(a schedule.Availability) error { return a.Remove(day) }, func(ctx context.Context) error {
		return s.repo.RemoveTiming(ctx, id, day)
	})
}

// update validates the change on a copy of the stored aggregate, then persists it
// with a single conditional write. A concurrent change to the same weekday fails
// the write instead of being overwritten. The returned availability is re-read
// from the store.
func (s *Service) update(ctx context.Context, id uuid.UUID, day time.Weekday, apply func(schedule.Availability) error, persist func(context.Context) error) (schedule.Availability, error) {
	current, err := s.Availability(ctx, id)
	if err != nil {
		return nil, err
	}

	next := make(schedule.Availability, len(current)+1)
	for d, w := range current {
		next[d] = w
	}
	if err := apply(next); err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()
	if err := persist(writeCtx); err != nil {
		return nil, fmt.Errorf("save availability: %w", err)
	}

	s.logger.Info().Str("doctor_id", id.String()).Str("day", day.String()).Msg("availability updated")
	return s.Availability(ctx, id)
}

// Slots lists bookable slots from today through horizonDays. A negative horizon,
// or one past the booking horizon, uses the booking horizon.
func (s *Service) Slots(ctx context.Context, id uuid.UUID, horizonDays int) ([]schedule.Slot, error) {
	av, err := s.Availability(ctx, id)
	if err != nil {
		return nil, err
	}
	return schedule.GenerateAll(av, s.Today(), s.horizon(horizonDays)), nil
}

func (s *Service) Today() time.Time {
	return schedule.DateOf(s.cfg.Now().In(s.cfg.Location))
}

func (s *Service) horizon(days int) int {
	if days < 0 || days > s.cfg.HorizonDays {
		return s.cfg.HorizonDays
	}
	return days
}
