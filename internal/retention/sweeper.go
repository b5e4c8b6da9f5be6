package retention

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

// leaseKey keeps concurrent sweeper instances from running the same pass.
const leaseKey = "sweep"

type Job interface {
	PurgeElapsed(ctx context.Context) (appointment.SweepReport, error)
}

type Config struct {
	At       schedule.Clock // local time of the daily run
	Startup  time.Duration  // delay of the opportunistic run after start
	Timeout  time.Duration  // budget of one run
	Location *time.Location
}

// Sweeper runs the retention job once shortly after start and then daily.
type Sweeper struct {
	job    Job
	locker redisclient.Locker
	cfg    Config
	logger zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewSweeper(job Job, locker redisclient.Locker, cfg Config, logger zerolog.Logger) *Sweeper {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Sweeper{
		job:    job,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// NextRun returns the first instant strictly after now whose local wall clock equals at.
func NextRun(now time.Time, at schedule.Clock, loc *time.Location) time.Time {
	now = now.In(loc)
	next := at.On(now, loc)
	if !next.After(now) {
		next = at.On(now.AddDate(0, 0, 1), loc)
	}
	return next
}

// Run blocks until ctx is cancelled. It returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Str("at", s.cfg.At.String()).
		Dur("startup_delay", s.cfg.Startup).
		Msg("retention sweeper started")

	wait := s.cfg.Startup
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info().Msg("retention sweeper stopping")
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retention sweeper stopping")
			return ctx.Err()
		case <-s.after(wait):
		}

		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("retention sweep failed")
		}

		now := s.now()
		next := NextRun(now, s.cfg.At, s.cfg.Location)
		wait = next.Sub(now)
		s.logger.Debug().Time("next_run", next).Msg("retention sweep scheduled")
	}
}

// RunOnce performs one sweep under the shared lease. A pass already running
// elsewhere is skipped without error.
func (s *Sweeper) RunOnce(ctx context.Context) (appointment.SweepReport, error) {
	var report appointment.SweepReport

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := s.locker.WithLock(ctx, leaseKey, func(ctx context.Context) error {
		var err error
		report, err = s.job.PurgeElapsed(ctx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.logger.Info().Msg("retention sweep already running elsewhere, skipping")
		return report, nil
	}
	return report, err
}
