package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

type DoctorService interface {
	Availability(ctx context.Context, id uuid.UUID) (schedule.Availability, error)
	AddWindow(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) (schedule.Availability, error)
	EditWindow(ctx context.Context, id uuid.UUID, day time.Weekday, w schedule.Window) (schedule.Availability, error)
	RemoveWindow(ctx context.Context, id uuid.UUID, day time.Weekday) (schedule.Availability, error)
	Slots(ctx context.Context, id uuid.UUID, horizonDays int) ([]schedule.Slot, error)
}

type doctorHandlers struct {
	svc    DoctorService
	logger zerolog.Logger
}

func (h *doctorHandlers) availability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	av, err := h.svc.Availability(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{DoctorID: id, Timings: av})
}

// putWindow adds a weekday, or replaces an existing one with ?mode=edit.
func (h *doctorHandlers) putWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	day, err := schedule.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var req WindowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	win, err := schedule.NewWindow(req.StartTime, req.EndTime)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var (
		av   schedule.Availability
		verb string
	)
	switch r.URL.Query().Get("mode") {
	case "", "add":
		av, err = h.svc.AddWindow(r.Context(), id, day, win)
		verb = "added"
	case "edit":
		av, err = h.svc.EditWindow(r.Context(), id, day, win)
		verb = "updated"
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be add or edit")
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID: id,
		Timings:  av,
		Message:  fmt.Sprintf("%s availability %s: %s-%s", day, verb, win.Start, win.End),
	})
}

func (h *doctorHandlers) deleteWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	day, err := schedule.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	av, err := h.svc.RemoveWindow(r.Context(), id, day)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{DoctorID: id, Timings: av, Message: day.String() + " availability removed"})
}

func (h *doctorHandlers) slots(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// absent means the booking horizon, 0 means today only
	horizon := -1
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_horizon", "horizon must be a non-negative number of days")
			return
		}
		horizon = n
	}

	slots, err := h.svc.Slots(r.Context(), id, horizon)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, SlotResponse{
			Date: s.Date.Format(time.DateOnly),
			Time: s.Start.String(),
			Day:  s.Day().String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
