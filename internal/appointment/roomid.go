package appointment

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	RoomIDLength   = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDAttempts = 5
)

// unbiasedLimit is the largest multiple of the alphabet size that fits in a byte.
const unbiasedLimit = 256 - 256%len(roomIDAlphabet)

// newRoomID draws n characters uniformly from roomIDAlphabet.
func newRoomID(r io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	var b [1]byte
	for len(out) < n {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if int(b[0]) >= unbiasedLimit {
			continue
		}
		out = append(out, roomIDAlphabet[int(b[0])%len(roomIDAlphabet)])
	}
	return string(out), nil
}

// allocateRoomID returns a candidate that no confirmed appointment currently uses.
func (s *Service) allocateRoomID(ctx context.Context) (string, error) {
	for i := 0; i < roomIDAttempts; i++ {
		id, err := newRoomID(s.random, RoomIDLength)
		if err != nil {
			return "", err
		}

		inUse, err := withTimeout(ctx, s.cfg.RemoteTimeout, func(ctx context.Context) (bool, error) {
			return s.repo.RoomInUse(ctx, id)
		})
		if err != nil {
			return "", err
		}
		if !inUse {
			return id, nil
		}
		s.logger.Warn().Str("room_id", id).Msg("room id collision, drawing another")
	}
	return "", ErrRoomAllocation
}

// confirm allocates a room and writes the confirmation. A room id claimed by a
// concurrent approval after the availability check is redrawn.
func (s *Service) confirm(ctx context.Context, appt *Appointment) (*Appointment, error) {
	for i := 0; i < roomIDAttempts; i++ {
		roomID, err := s.allocateRoomID(ctx)
		if err != nil {
			return nil, err
		}

		updated, err := s.transition(ctx, appt, StatusConfirmed, &roomID)
		if errors.Is(err, errRoomTaken) {
			s.logger.Warn().Str("appointment_id", appt.ID.String()).Str("room_id", roomID).Msg("room id claimed concurrently, drawing another")
			continue
		}
		return updated, err
	}
	return nil, ErrRoomAllocation
}
