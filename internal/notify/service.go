// Package notify tells the operator about a successful booking by e-mail.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/xbook/pkg/logging"
)

// Booking describes a confirmed participation.
type Booking struct {
	Category string
	Court    string
	Start    time.Time
	End      time.Time
	MemberID int64
	RunID    string
}

// Service sends booking notifications. A zero recipient disables it.
type Service struct {
	email     EmailSender
	recipient string
	location  *time.Location
	logger    *logging.Logger
}

// NewService creates a notification service. loc is used to render slot
// times; nil means UTC.
func NewService(email EmailSender, recipient string, loc *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		email:     email,
		recipient: strings.TrimSpace(recipient),
		location:  loc,
		logger:    logger,
	}
}

// NotifyBooked e-mails the booking details. It is a no-op when no sender or
// recipient is configured.
func (s *Service) NotifyBooked(ctx context.Context, b Booking) error {
	if s == nil || s.email == nil || s.recipient == "" {
		return nil
	}

	msg := Message{
		To:      s.recipient,
		Subject: bookedSubject(b, s.location),
		Text:    bookedBody(b, s.location),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: booking email failed", "error", err, "run_id", b.RunID)
		return fmt.Errorf("notify: send booking email: %w", err)
	}
	return nil
}

func bookedSubject(b Booking, loc *time.Location) string {
	return fmt.Sprintf("Booked: %s on %s", b.Category, b.Start.In(loc).Format("Mon 2 Jan 15:04"))
}

func bookedBody(b Booking, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("Your slot has been booked.\n\n")
	fmt.Fprintf(&sb, "Category: %s\n", b.Category)
	if b.Court != "" {
		fmt.Fprintf(&sb, "Court: %s\n", b.Court)
	}
	fmt.Fprintf(&sb, "Start: %s\n", b.Start.In(loc).Format("2006-01-02 15:04 MST"))
	if !b.End.IsZero() {
		fmt.Fprintf(&sb, "End: %s\n", b.End.In(loc).Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&sb, "Member: %d\n", b.MemberID)
	if b.RunID != "" {
		fmt.Fprintf(&sb, "Run: %s\n", b.RunID)
	}
	return sb.String()
}
