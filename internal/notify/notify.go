// Package notify turns registration and check-in events into queued mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"campusevents/internal/attendance"
	"campusevents/internal/mailer"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
)

const (
	TypeRegistrationConfirmed = "registration_confirmed"
	TypeCheckedIn             = "checked_in"
)

// Notice is the queued body of both message types.
type Notice struct {
	Email          string    `json:"email"`
	StudentName    string    `json:"student_name"`
	StudentID      string    `json:"student_id"`
	EventID        int64     `json:"event_id"`
	EventTitle     string    `json:"event_title"`
	EventDate      string    `json:"event_date"`
	EventTime      string    `json:"event_time"`
	Venue          string    `json:"venue"`
	RegistrationID string    `json:"registration_id,omitempty"`
	At             time.Time `json:"at"`
}

// DefaultPublishTimeout bounds how long a request waits on a full or slow queue.
const DefaultPublishTimeout = time.Second

// Publisher implements attendance.Notifier on top of a queue.
type Publisher struct {
	q queue.Queue
	// Timeout caps each publish. Zero or less means DefaultPublishTimeout.
	Timeout time.Duration
}

func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q, Timeout: DefaultPublishTimeout}
}

var _ attendance.Notifier = (*Publisher)(nil)

func (p *Publisher) Registered(ctx context.Context, s attendance.Student, e attendance.Event, reg attendance.Registration) error {
	return p.publish(ctx, TypeRegistrationConfirmed, Notice{
		Email:          s.Email,
		StudentName:    s.Name,
		StudentID:      s.StudentID,
		EventID:        e.ID,
		EventTitle:     e.Title,
		EventDate:      e.Date,
		EventTime:      e.Time,
		Venue:          e.Venue,
		RegistrationID: fmt.Sprintf("%s_%d", s.StudentID, e.ID),
		At:             reg.RegistrationTime,
	})
}

func (p *Publisher) CheckedIn(ctx context.Context, c attendance.CheckIn) error {
	return p.publish(ctx, TypeCheckedIn, Notice{
		Email:       c.StudentEmail,
		StudentName: c.StudentName,
		StudentID:   c.StudentID,
		EventID:     c.EventID,
		EventTitle:  c.EventTitle,
		EventDate:   c.EventDate,
		EventTime:   c.EventTime,
		Venue:       c.Venue,
		At:          c.CheckinTime,
	})
}

func (p *Publisher) publish(ctx context.Context, typ string, n Notice) error {
	msg, err := queue.NewMessage(typ, n)
	if err != nil {
		return err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	return nil
}

// ErrUnknownType is returned for messages this package does not handle.
var ErrUnknownType = errors.New("unknown notification type")

// Handler sends mail for queued notices.
type Handler struct {
	Mail    mailer.Sender
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Handle renders and sends the mail for one message.
func (h *Handler) Handle(ctx context.Context, msg queue.Message) error {
	var n Notice
	if err := msg.Decode(&n); err != nil {
		return fmt.Errorf("decode %s: %w", msg.ID, err)
	}
	m, err := render(msg.Type, n)
	if err != nil {
		return err
	}
	return h.Mail.Send(ctx, m)
}

// Run consumes q until ctx is done. Failed messages are logged and dropped.
func (h *Handler) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		if err := h.Handle(ctx, msg); err != nil {
			h.Metrics.Notification(msg.Type, "error")
			h.Log.Warn().Err(err).Str("id", msg.ID).Str("type", msg.Type).Msg("notification failed")
			continue
		}
		h.Metrics.Notification(msg.Type, "sent")
		h.Log.Debug().Str("id", msg.ID).Str("type", msg.Type).Msg("notification sent")
	}
	return ctx.Err()
}

func render(typ string, n Notice) (mailer.Mail, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", n.StudentName)
	var subject string
	switch typ {
	case TypeRegistrationConfirmed:
		subject = "Registered: " + n.EventTitle
		fmt.Fprintf(&b, "You are registered for %s.\n\n", n.EventTitle)
		writeEvent(&b, n)
		fmt.Fprintf(&b, "Registration ID: %s\n\n", n.RegistrationID)
		b.WriteString("Show your QR credential at the entrance to check in.\n")
	case TypeCheckedIn:
		subject = "Checked in: " + n.EventTitle
		fmt.Fprintf(&b, "Your attendance at %s was recorded at %s UTC.\n\n",
			n.EventTitle, n.At.UTC().Format("2006-01-02 15:04:05"))
		writeEvent(&b, n)
	default:
		return mailer.Mail{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return mailer.Mail{To: n.Email, Subject: subject, Body: b.String()}, nil
}

func writeEvent(b *strings.Builder, n Notice) {
	fmt.Fprintf(b, "Date: %s\n", n.EventDate)
	if n.EventTime != "" {
		fmt.Fprintf(b, "Time: %s\n", n.EventTime)
	}
	if n.Venue != "" {
		fmt.Fprintf(b, "Venue: %s\n", n.Venue)
	}
	b.WriteString("\n")
}
