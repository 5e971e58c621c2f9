package attendance

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"campusevents/internal/auth"
	"campusevents/internal/credential"
	"campusevents/internal/export"
	"campusevents/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu         sync.Mutex
	registered []string
	checkedIn  []string
	err        error
}

func (n *recordingNotifier) Registered(_ context.Context, s Student, e Event, _ Registration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, s.StudentID+"@"+e.Title)
	return n.err
}

func (n *recordingNotifier) CheckedIn(_ context.Context, c CheckIn) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checkedIn = append(n.checkedIn, c.StudentID+"@"+c.EventTitle)
	return n.err
}

type failingImages struct{}

func (failingImages) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func (failingImages) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk full")
}

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	db     *store.DB
	repo   *Repository
	signer *credential.Signer
	clock  *fakeClock
	notes  *recordingNotifier
	svc    *Service

	staff auth.Identity
	admin auth.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := store.NewDB(s.ctx, "sqlite://"+filepath.Join(s.T().TempDir(), "events.db"))
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.ctx))
	s.db = db
	s.repo = NewRepository(db.Client)

	s.signer, err = credential.NewSigner("test-secret")
	s.Require().NoError(err)
	s.clock = &fakeClock{t: time.Date(2025, 3, 1, 13, 55, 0, 0, time.UTC)}
	s.notes = &recordingNotifier{}
	s.svc = s.newService(Options{})

	s.staff = auth.Identity{ID: 1, Role: auth.RoleStaff, Name: "Door Staff"}
	s.admin = auth.Identity{ID: 1, Role: auth.RoleAdmin, Name: "Admin"}
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *ServiceSuite) newService(opts Options) *Service {
	if opts.Signer == nil {
		opts.Signer = s.signer
	}
	if opts.Notifier == nil {
		opts.Notifier = s.notes
	}
	opts.Clock = s.clock.Now
	opts.Logger = zerolog.Nop()
	opts.Exporter.PDFEnabled = true
	return NewService(s.repo, opts)
}

func (s *ServiceSuite) addStudent(studentID, name string) auth.Identity {
	var id int64
	err := s.db.Client.QueryRowContext(s.ctx, `
		INSERT INTO students (student_id, name, email, password, department, year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, studentID, name, strings.ToLower(studentID)+"@campus.test", "x", "CS", "3", s.clock.Now()).Scan(&id)
	s.Require().NoError(err)
	return auth.Identity{ID: id, Role: auth.RoleStudent, Name: name}
}

func (s *ServiceSuite) addEvent(title string, capacity int) Event {
	e, err := s.svc.CreateEvent(s.ctx, s.admin, EventInput{
		Title:     title,
		Date:      "2025-03-01",
		Time:      "14:00",
		Venue:     "Hall A",
		Organizer: "CS Club",
		Capacity:  capacity,
	})
	s.Require().NoError(err)
	return e
}

func (s *ServiceSuite) registeredCount(eventID int64) int {
	e, err := s.repo.GetEvent(s.ctx, eventID)
	s.Require().NoError(err)
	return e.RegisteredCount
}

func (s *ServiceSuite) TestRegisterTwiceCountsOnce() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 10)

	_, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Register(s.ctx, ann, ev.ID)
	s.ErrorIs(err, ErrAlreadyRegistered)

	s.Equal(1, s.registeredCount(ev.ID))
	s.Equal([]string{"S100@Tech Talk"}, s.notes.registered)
}

func (s *ServiceSuite) TestTechTalkScenario() {
	ann := s.addStudent("S100", "Ann")
	bob := s.addStudent("S200", "Bob")
	ev := s.addEvent("Tech Talk", 1)

	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	s.Equal(1, res.Event.RegisteredCount)
	s.Equal(1, s.registeredCount(ev.ID))

	_, err = s.svc.Register(s.ctx, bob, ev.ID)
	s.ErrorIs(err, ErrEventFull)
	s.Equal(1, s.registeredCount(ev.ID))

	_, err = s.repo.FindByStudentAndEvent(s.ctx, bob.ID, ev.ID)
	s.ErrorIs(err, ErrNotRegistered)
}

func (s *ServiceSuite) TestFullEventNeverMutatesCount() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Closed Session", 0)

	for i := 0; i < 3; i++ {
		_, err := s.svc.Register(s.ctx, ann, ev.ID)
		s.ErrorIs(err, ErrEventFull)
	}
	s.Equal(0, s.registeredCount(ev.ID))
}

func (s *ServiceSuite) TestRegisterUnknownEventOrRole() {
	ann := s.addStudent("S100", "Ann")

	_, err := s.svc.Register(s.ctx, ann, 999)
	s.ErrorIs(err, ErrEventNotFound)

	ev := s.addEvent("Tech Talk", 1)
	_, err = s.svc.Register(s.ctx, s.staff, ev.ID)
	s.ErrorIs(err, ErrForbidden)

	ghost := auth.Identity{ID: 4242, Role: auth.RoleStudent}
	_, err = s.svc.Register(s.ctx, ghost, ev.ID)
	s.ErrorIs(err, ErrStudentNotFound)
}

func (s *ServiceSuite) TestEncodingFailureLeavesNoRegistration() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)

	svc := s.newService(Options{Images: failingImages{}})
	_, err := svc.Register(s.ctx, ann, ev.ID)
	s.ErrorIs(err, ErrEncodingFailure)

	_, err = s.repo.FindByStudentAndEvent(s.ctx, ann.ID, ev.ID)
	s.ErrorIs(err, ErrNotRegistered)
	s.Equal(0, s.registeredCount(ev.ID))

	_, err = s.svc.Register(s.ctx, ann, ev.ID)
	s.NoError(err, "a later attempt can still register")
}

func (s *ServiceSuite) TestLineBreaksNeverReachACredential() {
	for _, in := range []EventInput{
		{Title: "Tech\nStudent ID: S999", Date: "2025-03-01"},
		{Title: "Tech Talk\r", Date: "2025-03-01"},
		{Title: "Tech Talk", Date: "2025-03-01", Venue: "Hall A\nSignature: x"},
	} {
		_, err := s.svc.CreateEvent(s.ctx, s.admin, in)
		s.ErrorIs(err, ErrInvalidEvent, "%q", in.Title)
	}

	// Rows written around the service are refused at issue time.
	var id int64
	s.Require().NoError(s.db.Client.QueryRowContext(s.ctx, `
		INSERT INTO events (title, description, date, time, venue, organizer, capacity, registered_count, created_at)
		VALUES ($1, '', '2025-03-01', '14:00', 'Hall A', '', 5, 0, $2)
		RETURNING id
	`, "Tech\nTalk", s.clock.Now()).Scan(&id))
	ann := s.addStudent("S100", "Ann")

	_, err := s.svc.Register(s.ctx, ann, id)
	s.ErrorIs(err, ErrEncodingFailure)
	s.ErrorIs(err, credential.ErrUnencodable)
	_, err = s.repo.FindByStudentAndEvent(s.ctx, ann.ID, id)
	s.ErrorIs(err, ErrNotRegistered)
	s.Equal(0, s.registeredCount(id))
	s.Empty(s.notes.registered)
}

func (s *ServiceSuite) TestCredentialRoundTrip() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)

	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	p, err := credential.Parse(res.Credential)
	s.Require().NoError(err)
	s.Equal("Tech Talk", p.EventTitle)
	s.Equal("S100", p.StudentID)
	s.Equal(fmt.Sprintf("S100_%d", ev.ID), p.RegistrationID)
	s.NoError(s.signer.Verify(p))

	png, ref, err := s.svc.Credential(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	s.Equal(res.Registration.CredentialRef, ref)
	s.True(strings.HasPrefix(string(png), "\x89PNG"))
}

func (s *ServiceSuite) TestVerifyIsAtMostOnce() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)
	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	s.clock.Advance(1500 * time.Millisecond)
	first, err := s.svc.Verify(s.ctx, s.staff, res.Credential)
	s.Require().NoError(err)
	s.Equal("Ann", first.StudentName)
	s.Equal("Hall A", first.Venue)
	s.Equal("CS Club", first.Organizer)
	s.Equal(time.Date(2025, 3, 1, 13, 55, 1, 0, time.UTC), first.CheckinTime)

	s.clock.Advance(time.Hour)
	_, err = s.svc.Verify(s.ctx, s.admin, res.Credential)
	s.Require().ErrorIs(err, ErrAlreadyCheckedIn)
	var dup *AlreadyCheckedInError
	s.Require().ErrorAs(err, &dup)
	s.Equal("Ann", dup.StudentName)
	s.True(dup.CheckedInAt.Equal(first.CheckinTime))
	s.Contains(err.Error(), "Ann")

	reg, err := s.repo.FindByStudentAndEvent(s.ctx, ann.ID, ev.ID)
	s.Require().NoError(err)
	s.Equal(StateCheckedIn, reg.State())
	s.Require().NotNil(reg.CheckinTime)
	s.True(reg.CheckinTime.Equal(first.CheckinTime))
	s.Equal([]string{"S100@Tech Talk"}, s.notes.checkedIn)
}

func (s *ServiceSuite) TestVerifyRejections() {
	ann := s.addStudent("S100", "Ann")
	s.addStudent("S300", "Cy")
	ev := s.addEvent("Tech Talk", 5)
	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	_, err = s.svc.Verify(s.ctx, ann, res.Credential)
	s.ErrorIs(err, ErrForbidden)

	_, err = s.svc.Verify(s.ctx, s.staff, "Event: Tech Talk\n")
	s.ErrorIs(err, credential.ErrInvalidCredentialFormat)

	_, err = s.svc.Verify(s.ctx, s.staff, "Event: Tech Talk\nStudent ID: S100\n")
	s.ErrorIs(err, credential.ErrUnsigned)

	forged := strings.Replace(res.Credential, "Student ID: S100", "Student ID: S300", 1)
	_, err = s.svc.Verify(s.ctx, s.staff, forged)
	s.ErrorIs(err, credential.ErrBadSignature)

	reg, err := s.repo.FindByStudentAndEvent(s.ctx, ann.ID, ev.ID)
	s.Require().NoError(err)
	s.False(reg.Attended, "rejected attempts leave the registration untouched")
}

func (s *ServiceSuite) TestVerifyUnsignedWhenAllowed() {
	svc := s.newService(Options{AcceptUnsigned: true})
	ann := s.addStudent("S100", "Ann")
	s.addStudent("S300", "Cy")
	ev := s.addEvent("Tech Talk", 5)
	_, err := svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	_, err = svc.Verify(s.ctx, s.staff, "Event: Nope\nStudent ID: S100\n")
	s.ErrorIs(err, ErrEventNotFound)

	_, err = svc.Verify(s.ctx, s.staff, "Event: Tech Talk\nStudent ID: S999\n")
	s.ErrorIs(err, ErrStudentNotFound)

	_, err = svc.Verify(s.ctx, s.staff, "Event: Tech Talk\nStudent ID: S300\n")
	s.ErrorIs(err, ErrNotRegistered)

	c, err := svc.Verify(s.ctx, s.staff, "Event: Tech Talk\nStudent ID: S100\n")
	s.Require().NoError(err)
	s.Equal(ev.ID, c.EventID)

	_, err = svc.Verify(s.ctx, s.staff, "Event: Tech Talk\nStudent ID: S100\nSignature: AAAAAAAAAAAAAAAAAAAAAA")
	s.ErrorIs(err, credential.ErrBadSignature, "a present signature is always checked")
}

func (s *ServiceSuite) TestDuplicateTitles() {
	svc := s.newService(Options{AcceptUnsigned: true})
	ann := s.addStudent("S100", "Ann")
	s.addEvent("Workshop", 5)
	second := s.addEvent("Workshop", 5)
	res, err := svc.Register(s.ctx, ann, second.ID)
	s.Require().NoError(err)

	_, err = svc.Verify(s.ctx, s.staff, "Event: Workshop\nStudent ID: S100\n")
	s.ErrorIs(err, ErrEventNotFound, "an unsigned title lookup must be unambiguous")

	c, err := svc.Verify(s.ctx, s.staff, res.Credential)
	s.Require().NoError(err)
	s.Equal(second.ID, c.EventID, "signed credentials resolve by event id")
}

func (s *ServiceSuite) TestConcurrentVerifyChecksInOnce() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)
	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	const n = 16
	var ok, dup, other atomic.Int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := s.svc.Verify(s.ctx, s.staff, res.Credential)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyCheckedIn):
				dup.Add(1)
			default:
				other.Add(1)
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(n-1), dup.Load())
	s.Equal(int32(0), other.Load())
}

func (s *ServiceSuite) TestConcurrentRegistrationsNeverOversell() {
	ev := s.addEvent("Tech Talk", 3)
	const n = 10
	students := make([]auth.Identity, n)
	for i := range students {
		students[i] = s.addStudent(fmt.Sprintf("S%03d", i), fmt.Sprintf("Student %d", i))
	}

	var ok, full atomic.Int32
	var g errgroup.Group
	for _, st := range students {
		st := st
		g.Go(func() error {
			_, err := s.svc.Register(s.ctx, st, ev.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrEventFull):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int32(3), ok.Load())
	s.Equal(int32(n-3), full.Load())
	s.Equal(3, s.registeredCount(ev.ID))
}

func (s *ServiceSuite) TestSetAttendanceOverride() {
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)
	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)

	s.ErrorIs(s.svc.SetAttendance(s.ctx, s.staff, "S100", ev.ID, true), ErrForbidden)
	s.ErrorIs(s.svc.SetAttendance(s.ctx, s.admin, "S999", ev.ID, true), ErrStudentNotFound)
	s.ErrorIs(s.svc.SetAttendance(s.ctx, s.admin, "S100", 999, true), ErrNotRegistered)

	s.Require().NoError(s.svc.SetAttendance(s.ctx, s.admin, "S100", ev.ID, true))
	reg, err := s.repo.FindByStudentAndEvent(s.ctx, ann.ID, ev.ID)
	s.Require().NoError(err)
	s.Equal(StateCheckedIn, reg.State())
	s.NotNil(reg.CheckinTime)

	s.Require().NoError(s.svc.SetAttendance(s.ctx, s.admin, "S100", ev.ID, false))
	reg, err = s.repo.FindByStudentAndEvent(s.ctx, ann.ID, ev.ID)
	s.Require().NoError(err)
	s.Equal(StateRegistered, reg.State())
	s.Nil(reg.CheckinTime)

	_, err = s.svc.Verify(s.ctx, s.staff, res.Credential)
	s.NoError(err, "a reset registration can be checked in again")
}

func (s *ServiceSuite) TestEventLifecycle() {
	_, err := s.svc.CreateEvent(s.ctx, s.admin, EventInput{Title: " ", Date: "2025-03-01"})
	s.ErrorIs(err, ErrInvalidEvent)
	_, err = s.svc.CreateEvent(s.ctx, s.admin, EventInput{Title: "Talk", Date: "March 1st"})
	s.ErrorIs(err, ErrInvalidEvent)
	_, err = s.svc.CreateEvent(s.ctx, s.admin, EventInput{Title: "Talk", Date: "2025-03-01", Capacity: -1})
	s.ErrorIs(err, ErrInvalidEvent)
	_, err = s.svc.CreateEvent(s.ctx, s.staff, EventInput{Title: "Talk", Date: "2025-03-01"})
	s.ErrorIs(err, ErrForbidden)

	ann := s.addStudent("S100", "Ann")
	bob := s.addStudent("S200", "Bob")
	ev := s.addEvent("Tech Talk", 5)
	_, err = s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Register(s.ctx, bob, ev.ID)
	s.Require().NoError(err)

	in := EventInput{Title: "Tech Talk II", Date: "2025-03-02", Time: "10:00", Venue: "Hall B", Capacity: 1}
	_, err = s.svc.UpdateEvent(s.ctx, s.admin, ev.ID, in)
	s.ErrorIs(err, ErrCapacityTooLow)

	in.Capacity = 2
	updated, err := s.svc.UpdateEvent(s.ctx, s.admin, ev.ID, in)
	s.Require().NoError(err)
	s.Equal("Tech Talk II", updated.Title)
	s.Equal(2, updated.RegisteredCount)
	s.Equal(0, updated.SeatsLeft())

	_, err = s.svc.UpdateEvent(s.ctx, s.admin, 999, in)
	s.ErrorIs(err, ErrEventNotFound)

	s.Require().NoError(s.svc.DeleteEvent(s.ctx, s.admin, ev.ID))
	s.ErrorIs(s.svc.DeleteEvent(s.ctx, s.admin, ev.ID), ErrEventNotFound)
	mine, err := s.svc.MyRegistrations(s.ctx, ann)
	s.Require().NoError(err)
	s.Empty(mine, "registrations cascade with the event")
}

func (s *ServiceSuite) TestListingsAndDashboard() {
	ann := s.addStudent("S100", "Ann")
	bob := s.addStudent("S200", "Bob")
	past, err := s.svc.CreateEvent(s.ctx, s.admin, EventInput{Title: "Old Talk", Date: "2025-02-01", Capacity: 5})
	s.Require().NoError(err)
	ev := s.addEvent("Tech Talk", 5)

	upcoming, err := s.svc.UpcomingEvents(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(upcoming, 1)
	s.Equal(ev.ID, upcoming[0].ID)

	all, err := s.svc.AllEvents(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal(past.ID, all[0].ID)

	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Register(s.ctx, bob, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.ctx, s.staff, res.Credential)
	s.Require().NoError(err)

	_, roster, err := s.svc.Roster(s.ctx, s.admin, ev.ID, false)
	s.Require().NoError(err)
	s.Require().Len(roster, 2)
	s.Equal("Ann", roster[0].StudentName)
	s.Equal("S100", roster[0].StudentNumber)

	_, roster, err = s.svc.Roster(s.ctx, s.admin, ev.ID, true)
	s.Require().NoError(err)
	s.Len(roster, 1)

	mine, err := s.svc.MyRegistrations(s.ctx, bob)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal("Tech Talk", mine[0].Event.Title)
	s.Equal(StateRegistered, mine[0].State())

	dash, err := s.svc.Dashboard(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Equal(Stats{Events: 2, Students: 2, Registrations: 2, CheckIns: 1}, dash.Stats)
	s.Require().Len(dash.Recent, 1)
	s.Equal("Ann", dash.Recent[0].StudentName)

	recent, err := s.svc.RecentCheckIns(s.ctx, s.staff, 5)
	s.Require().NoError(err)
	s.Len(recent, 1)
	history, err := s.svc.CheckInHistory(s.ctx, s.staff)
	s.Require().NoError(err)
	s.Len(history, 1)

	_, err = s.svc.Dashboard(s.ctx, s.staff)
	s.ErrorIs(err, ErrForbidden)
}

func (s *ServiceSuite) TestExports() {
	ev := s.addEvent("Tech Talk", 5)

	f, err := s.svc.ExportEvent(s.ctx, s.admin, ev.ID, export.CSV, false)
	s.Require().NoError(err)
	s.Equal("Tech_Talk_registrations_20250301_135500.csv", f.Name)
	s.Equal("\ufeffStudent Name,Student ID,Department,Year,Registration Time,Attended,Check-in Time\n", string(f.Body))

	ann := s.addStudent("S100", "Ann")
	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.ctx, s.staff, res.Credential)
	s.Require().NoError(err)

	f, err = s.svc.ExportEvent(s.ctx, s.admin, ev.ID, export.CSV, true)
	s.Require().NoError(err)
	s.Contains(string(f.Body), "Ann,S100,CS,3,2025-03-01 13:55:00,Yes,2025-03-01 13:55:00")

	f, err = s.svc.ExportAttendance(s.ctx, s.admin, export.Excel)
	s.Require().NoError(err)
	s.Equal("attendance_all_20250301_135500.xlsx", f.Name)
	s.Empty(f.Warning)

	noPDF := NewService(s.repo, Options{Signer: s.signer, Clock: s.clock.Now, Logger: zerolog.Nop()})
	f, err = noPDF.ExportAttendance(s.ctx, s.admin, export.PDF)
	s.Require().NoError(err)
	s.Equal(export.CSV, f.Format)
	s.NotEmpty(f.Warning)

	_, err = s.svc.ExportEvent(s.ctx, s.admin, 999, export.CSV, false)
	s.ErrorIs(err, ErrEventNotFound)
	_, err = s.svc.ExportAttendance(s.ctx, s.staff, export.CSV)
	s.ErrorIs(err, ErrForbidden)
}

func (s *ServiceSuite) TestNotifierFailureDoesNotFailOperations() {
	s.notes.err = errors.New("queue down")
	ann := s.addStudent("S100", "Ann")
	ev := s.addEvent("Tech Talk", 5)

	res, err := s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.ctx, s.staff, res.Credential)
	s.NoError(err)
}

func (s *ServiceSuite) TestStorageErrorsAreWrapped() {
	s.Require().NoError(s.db.Close())
	_, err := s.repo.GetEvent(s.ctx, 1)
	s.ErrorIs(err, ErrStorageUnavailable)

	db, err := store.NewDB(s.ctx, "sqlite://"+filepath.Join(s.T().TempDir(), "reopen.db"))
	s.Require().NoError(err)
	s.db = db
}

func (s *ServiceSuite) TestEventDetail() {
	ann := s.addStudent("S1", "Ann")
	ev := s.addEvent("Tech Talk", 5)

	got, reg, err := s.svc.EventDetail(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	s.Equal(ev.ID, got.ID)
	s.Nil(reg)

	_, err = s.svc.Register(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	got, reg, err = s.svc.EventDetail(s.ctx, ann, ev.ID)
	s.Require().NoError(err)
	s.Require().NotNil(reg)
	s.Equal(StateRegistered, reg.State())
	s.Equal(1, got.RegisteredCount)

	_, _, err = s.svc.EventDetail(s.ctx, ann, ev.ID+100)
	s.ErrorIs(err, ErrEventNotFound)
	_, _, err = s.svc.EventDetail(s.ctx, s.staff, ev.ID)
	s.ErrorIs(err, ErrForbidden)
}
