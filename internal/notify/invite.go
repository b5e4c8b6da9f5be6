package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Invite tells a patient which room to join for a confirmed appointment.
type Invite struct {
	PatientEmail string
	DoctorEmail  string
	DoctorName   string
	RoomID       string
	Date         string // YYYY-MM-DD
	Time         string // HH:MM
}

// InviteDispatcher is the best-effort session invite channel. A returned error
// never undoes the approval that triggered it.
type InviteDispatcher interface {
	SendSessionInvite(ctx context.Context, inv Invite) error
}

type EmailInviteDispatcher struct {
	sender EmailSender
}

func NewEmailInviteDispatcher(sender EmailSender) *EmailInviteDispatcher {
	return &EmailInviteDispatcher{sender: sender}
}

func (d *EmailInviteDispatcher) SendSessionInvite(ctx context.Context, inv Invite) error {
	if d == nil || d.sender == nil {
		return errors.New("notify: no email sender configured")
	}
	if strings.TrimSpace(inv.PatientEmail) == "" || inv.RoomID == "" {
		return fmt.Errorf("notify: invite needs a patient email and a room id")
	}
	return d.sender.Send(ctx, renderInvite(inv))
}

func renderInvite(inv Invite) EmailMessage {
	doctor := inv.DoctorName
	if doctor == "" {
		doctor = inv.DoctorEmail
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your appointment with %s on %s at %s is confirmed.\n\n", doctor, inv.Date, inv.Time)
	fmt.Fprintf(&b, "Session room: %s\n", inv.RoomID)
	b.WriteString("You can join from 10 minutes before the start time.\n")
	if inv.DoctorEmail != "" {
		fmt.Fprintf(&b, "\nQuestions? Contact %s.\n", inv.DoctorEmail)
	}

	return EmailMessage{
		To:      inv.PatientEmail,
		Subject: fmt.Sprintf("Appointment confirmed: room %s", inv.RoomID),
		Body:    b.String(),
	}
}
