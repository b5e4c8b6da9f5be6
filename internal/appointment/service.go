package appointment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/internal/notify"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentPurged    = "APPOINTMENT_PURGED"
)

var tracer = otel.Tracer("telemed/appointment")

// DoctorDirectory resolves the doctor behind a booking or an invite.
type DoctorDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

type ServiceConfig struct {
	Location *time.Location
	// HorizonDays bounds bookable dates. Zero allows today only, negative uses
	// doctor.DefaultHorizonDays. It must match the doctor listing horizon.
	HorizonDays   int
	RemoteTimeout time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
}

type Dependencies struct {
	Repo     Repository
	Doctors  DoctorDirectory
	Locker   redisclient.Locker
	Cache    ListCache
	Notifier notify.InviteDispatcher
	Metrics  *metrics.SchedulingMetrics
}

type Service struct {
	repo     Repository
	doctors  DoctorDirectory
	locker   redisclient.Locker
	cache    ListCache
	notifier notify.InviteDispatcher
	metrics  *metrics.SchedulingMetrics
	cfg      ServiceConfig
	logger   zerolog.Logger
	random   io.Reader
}

func NewService(deps Dependencies, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 10 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.HorizonDays < 0 {
		cfg.HorizonDays = doctor.DefaultHorizonDays
	}
	if deps.Locker == nil {
		deps.Locker = redisclient.NoopLocker{}
	}
	if deps.Cache == nil {
		deps.Cache = NoopListCache{}
	}
	return &Service{
		repo:     deps.Repo,
		doctors:  deps.Doctors,
		locker:   deps.Locker,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger,
		random:   rand.Reader,
	}
}

type BookRequest struct {
	DoctorID     uuid.UUID
	PatientEmail string
	Date         string // YYYY-MM-DD
	Time         string // HH:MM
}

// Book creates a pending appointment for a slot the doctor currently offers.
// A per slot lock and a unique index keep two live appointments off the same slot.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book",
		trace.WithAttributes(attribute.String("doctor_id", req.DoctorID.String())))
	defer span.End()

	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookingOutcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	email, slot, err := s.parseBooking(req)
	if err != nil {
		return nil, err
	}

	doc, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) (*doctor.Doctor, error) {
		return s.doctors.Get(ctx, req.DoctorID)
	})
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doc.VerificationStatus != doctor.VerificationVerified {
		return nil, ErrDoctorUnavailable
	}
	if !schedule.Offers(doc.Timings, s.today(), s.cfg.HorizonDays, slot) {
		return nil, fmt.Errorf("%w: %s is not an offered slot", ErrValidation, slot)
	}

	var created *Appointment
	lockKey := fmt.Sprintf("slot:%s:%s", req.DoctorID, slot)

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		existing, err := withTimeout(lockCtx, s.cfg.RemoteTimeout, func(ctx context.Context) (*Appointment, error) {
			return s.repo.FindLiveForSlot(ctx, req.DoctorID, slot)
		})
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check live appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotAlreadyTaken
		}

		appt, err := withTimeout(lockCtx, s.cfg.RemoteTimeout, func(ctx context.Context) (*Appointment, error) {
			return s.repo.CreatePending(ctx, NewAppointment{
				ID:           uuid.New(),
				DoctorID:     req.DoctorID,
				PatientEmail: email,
				Slot:         slot,
				BookedAt:     s.cfg.Now(),
			})
		})
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyTaken) {
				return err
			}
			return fmt.Errorf("create pending appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotAlreadyTaken) || errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrRejected) {
			return nil, err
		}
		// lock backend failures
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":     created.DoctorID.String(),
		"patient_email": created.PatientEmail,
		"slot":          slot.String(),
	})
	s.cache.Invalidate(ctx, viewKeys(*created)...)
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("slot", slot.String()).
		Msg("appointment booked")

	return created, nil
}

func (s *Service) parseBooking(req BookRequest) (string, schedule.Slot, error) {
	if req.DoctorID == uuid.Nil {
		return "", schedule.Slot{}, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.PatientEmail))
	if err != nil {
		return "", schedule.Slot{}, fmt.Errorf("%w: patient email: %v", ErrValidation, err)
	}
	date, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(req.Date), s.cfg.Location)
	if err != nil {
		return "", schedule.Slot{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	clock, err := schedule.ParseClock(req.Time)
	if err != nil {
		return "", schedule.Slot{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if date.Before(s.today()) {
		return "", schedule.Slot{}, fmt.Errorf("%w: date is in the past", ErrValidation)
	}
	slot := schedule.Slot{Date: date, Start: clock}
	if slot.Instant(s.cfg.Location).Before(s.cfg.Now()) {
		return "", schedule.Slot{}, fmt.Errorf("%w: %s has already started", ErrValidation, slot)
	}
	return strings.ToLower(addr.Address), slot, nil
}

// ApprovalResult reports the confirmed appointment and whether the invite went out.
// A failed invite never undoes the approval.
type ApprovalResult struct {
	Appointment      *Appointment
	NotificationSent bool
	NotificationErr  error
}

// Approve confirms a pending appointment and provisions its session room.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*ApprovalResult, error) {
	ctx, span := tracer.Start(ctx, "appointment.approve",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer span.End()

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(ActorDoctor, appt.Status, StatusConfirmed) {
		s.metrics.ObserveTransition(string(StatusConfirmed), "invalid")
		s.logger.Warn().Str("appointment_id", id.String()).Str("status", string(appt.Status)).Msg("approve rejected: invalid transition")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusConfirmed)
	}

	updated, err := s.confirm(ctx, appt)
	if err != nil {
		return nil, err
	}
	roomID := updated.Room()

	result := &ApprovalResult{Appointment: updated}
	result.NotificationErr = s.sendInvite(ctx, updated)
	result.NotificationSent = result.NotificationErr == nil
	s.metrics.ObserveNotification(result.NotificationSent)
	if result.NotificationErr != nil {
		span.RecordError(result.NotificationErr)
		s.logger.Warn().Err(result.NotificationErr).
			Str("appointment_id", id.String()).
			Str("room_id", roomID).
			Msg("appointment approved but session invite failed")
	}

	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{
		"room_id":           roomID,
		"notification_sent": result.NotificationSent,
	})

	return result, nil
}

// Reject declines a pending appointment.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.reject",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer span.End()

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(ActorDoctor, appt.Status, StatusRejected) {
		s.metrics.ObserveTransition(string(StatusRejected), "invalid")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusRejected)
	}

	updated, err := s.transition(ctx, appt, StatusRejected, nil)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, id, EventAppointmentRejected, map[string]any{})
	return updated, nil
}

// Cancel withdraws a pending appointment on behalf of the patient who booked it.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, patientEmail string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer span.End()

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(patientEmail), appt.PatientEmail) {
		return nil, ErrNotOwner
	}
	if !CanTransition(ActorPatient, appt.Status, StatusCancelled) {
		s.metrics.ObserveTransition(string(StatusCancelled), "invalid")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	updated, err := s.transition(ctx, appt, StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{})
	return updated, nil
}

// transition performs the conditional write. A row that no longer holds appt.Status
// means someone else got there first.
func (s *Service) transition(ctx context.Context, appt *Appointment, to Status, roomID *string) (*Appointment, error) {
	updated, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) (*Appointment, error) {
		return s.repo.Transition(ctx, appt.ID, appt.Status, to, roomID)
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			s.metrics.ObserveTransition(string(to), "stale")
			return nil, ErrStaleState
		}
		if errors.Is(err, errRoomTaken) {
			s.metrics.ObserveTransition(string(to), "room_taken")
			return nil, err
		}
		s.metrics.ObserveTransition(string(to), "error")
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.metrics.ObserveTransition(string(to), "ok")
	s.cache.Invalidate(ctx, viewKeys(*updated)...)
	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return updated, nil
}

func (s *Service) sendInvite(ctx context.Context, appt *Appointment) error {
	if s.notifier == nil {
		return fmt.Errorf("%w: no dispatcher configured", ErrNotificationDeliveryFailed)
	}

	inv := notify.Invite{
		PatientEmail: appt.PatientEmail,
		RoomID:       appt.Room(),
		Date:         appt.SelectedDate.Format(time.DateOnly),
		Time:         appt.SelectedTime.String(),
	}
	if doc, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) (*doctor.Doctor, error) {
		return s.doctors.Get(ctx, appt.DoctorID)
	}); err == nil {
		inv.DoctorEmail = doc.Email
		inv.DoctorName = doc.Name
	} else {
		s.logger.Warn().Err(err).Str("doctor_id", appt.DoctorID.String()).Msg("invite sent without doctor details")
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.SendSessionInvite(notifyCtx, inv); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationDeliveryFailed, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) (*Appointment, error) {
		return s.repo.GetAppointmentByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// ListByDoctor returns the doctor's appointments ordered by slot.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.list(ctx, DoctorListKey(doctorID), func(ctx context.Context) ([]Appointment, error) {
		return s.repo.ListByDoctor(ctx, doctorID)
	})
}

// ListByPatient returns the patient's appointments ordered by slot.
func (s *Service) ListByPatient(ctx context.Context, patientEmail string) ([]Appointment, error) {
	return s.list(ctx, PatientListKey(patientEmail), func(ctx context.Context) ([]Appointment, error) {
		return s.repo.ListByPatient(ctx, strings.TrimSpace(patientEmail))
	})
}

// list serves key from the cache. On a miss it reads the store and fills the
// cache only if no write invalidated key since the miss.
func (s *Service) list(ctx context.Context, key string, load func(context.Context) ([]Appointment, error)) ([]Appointment, error) {
	cached, token, ok := s.cache.Get(ctx, key)
	if ok {
		return cached, nil
	}
	list, err := withTimeout(ctx, s.cfg.RemoteTimeout, load)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	s.cache.Fill(ctx, key, token, list)
	return list, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.cfg.Now(),
	}

	evCtx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()
	if err := s.repo.InsertEvent(evCtx, ev); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
}

func (s *Service) today() time.Time {
	return schedule.DateOf(s.cfg.Now().In(s.cfg.Location))
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotAlreadyTaken), errors.Is(err, ErrSlotBeingBooked):
		return "slot_taken"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDoctorUnavailable), errors.Is(err, doctor.ErrDoctorNotFound):
		return "invalid"
	default:
		return "error"
	}
}
