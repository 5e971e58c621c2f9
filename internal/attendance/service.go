package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"campusevents/internal/auth"
	"campusevents/internal/credential"
	"campusevents/internal/export"
	"campusevents/internal/metrics"
)

// Notifier is told about completed registrations and check-ins. Failures are
// logged and never undo the operation.
type Notifier interface {
	Registered(ctx context.Context, s Student, e Event, reg Registration) error
	CheckedIn(ctx context.Context, c CheckIn) error
}

// Options configures a Service. Signer and Images are required for Register
// and Verify.
type Options struct {
	Signer   *credential.Signer
	Images   credential.ImageStore
	Exporter export.Exporter
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	// AcceptUnsigned lets Verify trust credentials issued without a Signature line.
	AcceptUnsigned bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service coordinates registration, check-in and reporting.
type Service struct {
	repo           *Repository
	signer         *credential.Signer
	images         credential.ImageStore
	exporter       export.Exporter
	notifier       Notifier
	metrics        *metrics.Metrics
	log            zerolog.Logger
	acceptUnsigned bool
	now            func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts Options) *Service {
	if opts.Images == nil {
		opts.Images = credential.InlineStore{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:           repo,
		signer:         opts.Signer,
		images:         opts.Images,
		exporter:       opts.Exporter,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		log:            opts.Logger,
		acceptUnsigned: opts.AcceptUnsigned,
		now:            opts.Clock,
	}
}

func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func authorize(caller auth.Identity, roles ...auth.Role) error {
	if !caller.Is(roles...) {
		return fmt.Errorf("%w: %s", ErrForbidden, caller.Role)
	}
	return nil
}

// Registered is the result of a successful registration.
type Registered struct {
	Registration Registration `json:"registration"`
	Event        Event        `json:"event"`
	Credential   string       `json:"credential"`
}

// Register signs the calling student up for eventID and issues the credential.
//
// The credential is rendered and stored before the registration transaction
// opens. Image keys derive from the registration reference, so an image left by
// a registration that then fails is overwritten by the next attempt.
func (s *Service) Register(ctx context.Context, caller auth.Identity, eventID int64) (Registered, error) {
	if err := authorize(caller, auth.RoleStudent); err != nil {
		return Registered{}, err
	}
	out, err := s.register(ctx, caller.ID, eventID)
	if err != nil {
		s.metrics.Registration(outcome(err))
		s.log.Info().Err(err).Int64("student", caller.ID).Int64("event", eventID).Msg("registration rejected")
		return Registered{}, err
	}
	s.metrics.Registration("ok")
	s.log.Info().Str("student_id", out.student.StudentID).Int64("event", eventID).Msg("registered")

	if s.notifier != nil {
		if err := s.notifier.Registered(ctx, out.student, out.Event, out.Registration); err != nil {
			s.log.Warn().Err(err).Int64("registration", out.Registration.ID).Msg("registration notification failed")
		}
	}
	return out.Registered, nil
}

type registration struct {
	Registered
	student Student
}

func (s *Service) register(ctx context.Context, studentID, eventID int64) (registration, error) {
	st, err := s.repo.StudentByID(ctx, studentID)
	if err != nil {
		return registration{}, err
	}
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return registration{}, err
	}
	// Fast rejections; the transaction below re-checks both.
	switch _, err := s.repo.FindByStudentAndEvent(ctx, studentID, eventID); {
	case err == nil:
		return registration{}, ErrAlreadyRegistered
	case !errors.Is(err, ErrNotRegistered):
		return registration{}, err
	}
	if ev.RegisteredCount >= ev.Capacity {
		return registration{}, ErrEventFull
	}

	text, ref, err := s.issue(ctx, st, ev)
	if err != nil {
		return registration{}, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	reg, ev, err := s.repo.Register(ctx, studentID, eventID, s.stamp(), ref)
	if err != nil {
		return registration{}, err
	}
	return registration{Registered: Registered{Registration: reg, Event: ev, Credential: text}, student: st}, nil
}

// issue renders the credential of st for ev and stores its image.
func (s *Service) issue(ctx context.Context, st Student, ev Event) (text, ref string, err error) {
	subject := credential.Subject{
		EventID:     ev.ID,
		EventTitle:  ev.Title,
		EventDate:   ev.Date,
		EventTime:   ev.Time,
		Venue:       ev.Venue,
		StudentID:   st.StudentID,
		StudentName: st.Name,
	}
	if s.signer == nil {
		text, err = credential.Text(subject)
	} else {
		text, err = s.signer.Encode(subject)
	}
	if err != nil {
		return "", "", err
	}
	png, err := credential.RenderPNG(text)
	if err != nil {
		return "", "", err
	}
	ref, err = s.images.Put(ctx, subject.RegistrationID(), png)
	if err != nil {
		return "", "", err
	}
	return text, ref, nil
}

// Credential returns the PNG image of the caller's credential for eventID.
// Remote references are returned as ref with a nil image.
func (s *Service) Credential(ctx context.Context, caller auth.Identity, eventID int64) (png []byte, ref string, err error) {
	if err := authorize(caller, auth.RoleStudent); err != nil {
		return nil, "", err
	}
	reg, err := s.repo.FindByStudentAndEvent(ctx, caller.ID, eventID)
	if err != nil {
		return nil, "", err
	}
	if reg.CredentialRef == "" {
		return nil, "", fmt.Errorf("%w: no credential stored", ErrEncodingFailure)
	}
	png, err = s.images.Get(ctx, reg.CredentialRef)
	if errors.Is(err, credential.ErrRemoteImage) {
		return nil, reg.CredentialRef, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	return png, reg.CredentialRef, nil
}

// Verify checks a scanned or typed credential in and returns the check-in snapshot.
// A registration is checked in at most once; later attempts fail with
// *AlreadyCheckedInError naming the student.
func (s *Service) Verify(ctx context.Context, caller auth.Identity, raw string) (CheckIn, error) {
	start := time.Now()
	c, err := s.verify(ctx, caller, raw)
	if err != nil {
		s.metrics.CheckIn(outcome(err), start)
		s.log.Info().Err(err).Str("by", caller.Name).Msg("verification rejected")
		return CheckIn{}, err
	}
	s.metrics.CheckIn("ok", start)
	s.log.Info().Str("student_id", c.StudentID).Int64("event", c.EventID).Str("by", caller.Name).Msg("checked in")

	if s.notifier != nil {
		if err := s.notifier.CheckedIn(ctx, c); err != nil {
			s.log.Warn().Err(err).Str("student_id", c.StudentID).Msg("check-in notification failed")
		}
	}
	return c, nil
}

func (s *Service) verify(ctx context.Context, caller auth.Identity, raw string) (CheckIn, error) {
	if err := authorize(caller, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return CheckIn{}, err
	}
	p, err := credential.Parse(raw)
	if err != nil {
		return CheckIn{}, err
	}

	signed := false
	if s.signer != nil {
		switch err := s.signer.Verify(p); {
		case err == nil:
			signed = true
		case errors.Is(err, credential.ErrUnsigned) && s.acceptUnsigned:
		default:
			return CheckIn{}, err
		}
	}

	event, err := s.resolveEvent(ctx, p, signed)
	if err != nil {
		return CheckIn{}, err
	}
	student, err := s.repo.StudentByExternalID(ctx, p.StudentID)
	if err != nil {
		return CheckIn{}, err
	}
	if _, err := s.repo.FindByStudentAndEvent(ctx, student.ID, event.ID); err != nil {
		return CheckIn{}, err
	}

	at := s.stamp()
	ok, err := s.repo.MarkAttended(ctx, student.ID, event.ID, at)
	if err != nil {
		return CheckIn{}, err
	}
	if !ok {
		dup := &AlreadyCheckedInError{StudentName: student.Name, StudentID: student.StudentID}
		if reg, err := s.repo.FindByStudentAndEvent(ctx, student.ID, event.ID); err == nil && reg.CheckinTime != nil {
			dup.CheckedInAt = *reg.CheckinTime
		}
		return CheckIn{}, dup
	}

	return CheckIn{
		StudentName:  student.Name,
		StudentID:    student.StudentID,
		StudentEmail: student.Email,
		Department:   student.Department,
		Year:         student.Year,
		EventID:      event.ID,
		EventTitle:   event.Title,
		EventDate:    event.Date,
		EventTime:    event.Time,
		Venue:        event.Venue,
		Organizer:    event.Organizer,
		CheckinTime:  at,
	}, nil
}

// resolveEvent prefers the event id carried by a signed Registration ID, so a
// renamed event still accepts its credentials. Otherwise the title must match
// exactly one event.
func (s *Service) resolveEvent(ctx context.Context, p credential.Payload, signed bool) (Event, error) {
	if id, ok := p.EventID(); ok && signed {
		return s.repo.GetEvent(ctx, id)
	}
	events, err := s.repo.EventsByTitle(ctx, p.EventTitle)
	if err != nil {
		return Event{}, err
	}
	switch len(events) {
	case 0:
		return Event{}, ErrEventNotFound
	case 1:
		return events[0], nil
	}
	return Event{}, fmt.Errorf("%w: %d events titled %q", ErrEventNotFound, len(events), p.EventTitle)
}

// SetAttendance is the administrative override: it checks a student in or
// resets the registration to registered.
func (s *Service) SetAttendance(ctx context.Context, caller auth.Identity, studentID string, eventID int64, attended bool) error {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return err
	}
	student, err := s.repo.StudentByExternalID(ctx, studentID)
	if err != nil {
		return err
	}
	if err := s.repo.SetAttended(ctx, student.ID, eventID, attended, s.stamp()); err != nil {
		return err
	}
	s.log.Info().Str("student_id", studentID).Int64("event", eventID).Bool("attended", attended).
		Str("by", caller.Name).Msg("attendance overridden")
	return nil
}

// EventInput holds the editable fields of an event.
type EventInput struct {
	Title       string
	Description string
	Date        string
	Time        string
	Venue       string
	Organizer   string
	Capacity    int
}

func (in EventInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	// Title and venue are printed one per line on the credential.
	if strings.ContainsAny(in.Title, "\r\n") || strings.ContainsAny(in.Venue, "\r\n") {
		return fmt.Errorf("%w: title and venue must be a single line", ErrInvalidEvent)
	}
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEvent)
	}
	if in.Time != "" {
		if _, err := time.Parse("15:04", in.Time); err != nil {
			return fmt.Errorf("%w: time must be HH:MM", ErrInvalidEvent)
		}
	}
	if in.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidEvent)
	}
	return nil
}

func (in EventInput) event() Event {
	return Event{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Date:        in.Date,
		Time:        in.Time,
		Venue:       strings.TrimSpace(in.Venue),
		Organizer:   in.Organizer,
		Capacity:    in.Capacity,
	}
}

// CreateEvent adds an event.
func (s *Service) CreateEvent(ctx context.Context, caller auth.Identity, in EventInput) (Event, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	e := in.event()
	e.CreatedAt = s.stamp()
	return s.repo.CreateEvent(ctx, e)
}

// UpdateEvent edits an event in place.
func (s *Service) UpdateEvent(ctx context.Context, caller auth.Identity, id int64, in EventInput) (Event, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return Event{}, err
	}
	if err := in.validate(); err != nil {
		return Event{}, err
	}
	e := in.event()
	e.ID = id
	if err := s.repo.UpdateEvent(ctx, e); err != nil {
		return Event{}, err
	}
	return s.repo.GetEvent(ctx, id)
}

// DeleteEvent removes an event with its registrations.
func (s *Service) DeleteEvent(ctx context.Context, caller auth.Identity, id int64) error {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return err
	}
	return s.repo.DeleteEvent(ctx, id)
}

// UpcomingEvents lists events from today on.
func (s *Service) UpcomingEvents(ctx context.Context) ([]Event, error) {
	return s.repo.ListEvents(ctx, s.now().Format("2006-01-02"))
}

// AllEvents lists every event.
func (s *Service) AllEvents(ctx context.Context, caller auth.Identity) ([]Event, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, "")
}

// Roster lists an event's registrations with student details.
func (s *Service) Roster(ctx context.Context, caller auth.Identity, eventID int64, attendedOnly bool) (Event, []Attendee, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return Event{}, nil, err
	}
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	list, err := s.repo.FindByEventID(ctx, eventID, attendedOnly)
	if err != nil {
		return Event{}, nil, err
	}
	return e, list, nil
}

// EventDetail returns an event and, when present, the caller's registration for it.
func (s *Service) EventDetail(ctx context.Context, caller auth.Identity, eventID int64) (Event, *Registration, error) {
	if err := authorize(caller, auth.RoleStudent); err != nil {
		return Event{}, nil, err
	}
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, nil, err
	}
	reg, err := s.repo.FindByStudentAndEvent(ctx, caller.ID, eventID)
	if errors.Is(err, ErrNotRegistered) {
		return e, nil, nil
	}
	if err != nil {
		return Event{}, nil, err
	}
	return e, &reg, nil
}

// MyRegistrations lists the caller's registrations.
func (s *Service) MyRegistrations(ctx context.Context, caller auth.Identity) ([]Enrollment, error) {
	if err := authorize(caller, auth.RoleStudent); err != nil {
		return nil, err
	}
	return s.repo.FindByStudentID(ctx, caller.ID)
}

// Dashboard is the admin overview.
type Dashboard struct {
	Stats  Stats           `json:"stats"`
	Recent []CheckInRecord `json:"recent"`
}

const recentLimit = 10

// Dashboard returns totals and the latest check-ins.
func (s *Service) Dashboard(ctx context.Context, caller auth.Identity) (Dashboard, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return Dashboard{}, err
	}
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.repo.CheckIns(ctx, recentLimit)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Stats: st, Recent: recent}, nil
}

// RecentCheckIns returns the latest check-ins for the verification desk.
func (s *Service) RecentCheckIns(ctx context.Context, caller auth.Identity, limit int) ([]CheckInRecord, error) {
	if err := authorize(caller, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = recentLimit
	}
	return s.repo.CheckIns(ctx, limit)
}

// CheckInHistory returns every check-in, latest first.
func (s *Service) CheckInHistory(ctx context.Context, caller auth.Identity) ([]CheckInRecord, error) {
	if err := authorize(caller, auth.RoleStaff, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.CheckIns(ctx, 0)
}

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrEventFull):
		return "full"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrStudentNotFound), errors.Is(err, ErrNotRegistered):
		return "not_found"
	case errors.Is(err, credential.ErrInvalidCredentialFormat):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrEncodingFailure):
		return "encoding_failure"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	}
	return "error"
}
