package attendance

import "time"

// Student is a registered student as seen by the attendance flows.
type Student struct {
	ID         int64     `json:"id"`
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Year       string    `json:"year"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is an attendance-eligible activity. Date and Time are display text.
type Event struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Venue           string    `json:"venue"`
	Organizer       string    `json:"organizer"`
	Capacity        int       `json:"capacity"`
	RegisteredCount int       `json:"registered_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// SeatsLeft is never negative.
func (e Event) SeatsLeft() int {
	if n := e.Capacity - e.RegisteredCount; n > 0 {
		return n
	}
	return 0
}

// State is the attendance state of a registration.
type State string

const (
	StateRegistered State = "registered"
	StateCheckedIn  State = "checked_in"
)

// Registration links one student to one event.
type Registration struct {
	ID               int64      `json:"id"`
	StudentID        int64      `json:"student_id"`
	EventID          int64      `json:"event_id"`
	RegistrationTime time.Time  `json:"registration_time"`
	CredentialRef    string     `json:"credential_ref"`
	CheckinTime      *time.Time `json:"checkin_time,omitempty"`
	Attended         bool       `json:"attended"`
}

// State derives the attendance state from the attended flag.
func (r Registration) State() State {
	if r.Attended {
		return StateCheckedIn
	}
	return StateRegistered
}

// Attendee is a registration joined with its student, used for event rosters.
type Attendee struct {
	Registration
	StudentNumber string `json:"student_number"`
	StudentName   string `json:"student_name"`
	Department    string `json:"department"`
	Year          string `json:"year"`
}

// Enrollment is a registration joined with its event, used for a student's own list.
type Enrollment struct {
	Registration
	Event Event `json:"event"`
}

// CheckInRecord is one checked-in registration across events.
type CheckInRecord struct {
	StudentName string    `json:"student_name"`
	StudentID   string    `json:"student_id"`
	Department  string    `json:"department"`
	Year        string    `json:"year"`
	EventID     int64     `json:"event_id"`
	EventTitle  string    `json:"event_title"`
	EventDate   string    `json:"event_date"`
	CheckinTime time.Time `json:"checkin_time"`
}

// CheckIn is the snapshot returned by a successful verification.
type CheckIn struct {
	StudentName  string    `json:"student_name"`
	StudentID    string    `json:"student_id"`
	StudentEmail string    `json:"-"`
	Department   string    `json:"department"`
	Year         string    `json:"year"`
	EventID      int64     `json:"event_id"`
	EventTitle   string    `json:"event_title"`
	EventDate    string    `json:"event_date"`
	EventTime    string    `json:"event_time"`
	Venue        string    `json:"venue"`
	Organizer    string    `json:"organizer"`
	CheckinTime  time.Time `json:"checkin_time"`
}

// Stats are the dashboard totals.
type Stats struct {
	Events        int `json:"events"`
	Students      int `json:"students"`
	Registrations int `json:"registrations"`
	CheckIns      int `json:"check_ins"`
}
