package appointment

import (
	"context"
	"errors"
	"time"
)

// SweepReport summarises one retention pass. Gone counts rows removed by
// someone else between the scan and the delete.
type SweepReport struct {
	Cutoff  time.Time
	Scanned int
	Deleted int
	Gone    int
	Failed  int
}

// PurgeElapsed hard-deletes every appointment dated before today, whatever its
// status. A failed delete is logged and skipped; the rest of the batch continues.
func (s *Service) PurgeElapsed(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "appointment.purge_elapsed")
	defer span.End()

	started := time.Now()
	report := SweepReport{Cutoff: s.today()}

	elapsed, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) ([]Appointment, error) {
		return s.repo.ListDatedBefore(ctx, report.Cutoff)
	})
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	report.Scanned = len(elapsed)

	for _, a := range elapsed {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveSweep(report.Deleted, report.Failed, time.Since(started).Seconds())
			return report, err
		}

		err := func() error {
			delCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
			defer cancel()
			return s.repo.Delete(delCtx, a.ID)
		}()
		if errors.Is(err, ErrAppointmentNotFound) {
			report.Gone++
			s.cache.Invalidate(ctx, viewKeys(a)...)
			continue
		}
		if err != nil {
			report.Failed++
			s.logger.Error().Err(err).
				Str("appointment_id", a.ID.String()).
				Str("selected_date", a.SelectedDate.Format(time.DateOnly)).
				Msg("failed to purge appointment")
			continue
		}

		report.Deleted++
		s.cache.Invalidate(ctx, viewKeys(a)...)
		s.logEvent(ctx, a.ID, EventAppointmentPurged, map[string]any{
			"status":        string(a.Status),
			"selected_date": a.SelectedDate.Format(time.DateOnly),
		})
	}

	s.metrics.ObserveSweep(report.Deleted, report.Failed, time.Since(started).Seconds())
	s.logger.Info().
		Str("cutoff", report.Cutoff.Format(time.DateOnly)).
		Int("scanned", report.Scanned).
		Int("deleted", report.Deleted).
		Int("gone", report.Gone).
		Int("failed", report.Failed).
		Msg("retention sweep finished")
	return report, nil
}
