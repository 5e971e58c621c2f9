// Package credential builds and reads the text payload printed into a
// registration QR code, and renders and stores the QR image.
//
// A payload is a block of "Key: Value" lines:
//
//	Event: Tech Talk
//	Student: Ann
//	Student ID: S100
//	Event Date: 2025-03-01
//	Event Time: 14:00
//	Venue: Hall A
//	Registration ID: S100_7
//	Signature: 3q2-7wAAAAAAAAAAAAAAAA
//
// Values are not escaped, so Text refuses values with line breaks. Readers split
// each line on its first colon only and trim the value, so the signed fields must
// not carry surrounding whitespace either.
package credential

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Payload keys.
const (
	KeyEvent          = "Event"
	KeyStudent        = "Student"
	KeyStudentID      = "Student ID"
	KeyEventDate      = "Event Date"
	KeyEventTime      = "Event Time"
	KeyVenue          = "Venue"
	KeyRegistrationID = "Registration ID"
	KeySignature      = "Signature"
)

var (
	// ErrInvalidCredentialFormat is returned for text that is not a usable credential.
	ErrInvalidCredentialFormat = errors.New("invalid credential format")
	// ErrUnencodable is returned by Text for a subject that would not parse back intact.
	ErrUnencodable = errors.New("credential value cannot be encoded")
)

// Subject is the registration a credential is issued for.
type Subject struct {
	EventID     int64
	EventTitle  string
	EventDate   string
	EventTime   string
	Venue       string
	StudentID   string
	StudentName string
}

// RegistrationID is the "<student id>_<event id>" reference printed on the credential.
func (s Subject) RegistrationID() string {
	return s.StudentID + "_" + strconv.FormatInt(s.EventID, 10)
}

// Text renders the unsigned payload lines for s.
func Text(s Subject) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	lines := []string{
		KeyEvent + ": " + s.EventTitle,
		KeyStudent + ": " + s.StudentName,
		KeyStudentID + ": " + s.StudentID,
		KeyEventDate + ": " + s.EventDate,
		KeyEventTime + ": " + s.EventTime,
		KeyVenue + ": " + s.Venue,
		KeyRegistrationID + ": " + s.RegistrationID(),
	}
	return strings.Join(lines, "\n"), nil
}

func (s Subject) check() error {
	values := []struct{ key, value string }{
		{KeyEvent, s.EventTitle},
		{KeyStudent, s.StudentName},
		{KeyStudentID, s.StudentID},
		{KeyEventDate, s.EventDate},
		{KeyEventTime, s.EventTime},
		{KeyVenue, s.Venue},
	}
	for _, v := range values {
		if strings.ContainsAny(v.value, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrUnencodable, v.key)
		}
	}
	// Parse trims values, which would break the signature over these two.
	for _, v := range []struct{ key, value string }{{KeyEvent, s.EventTitle}, {KeyStudentID, s.StudentID}} {
		if v.value == "" || strings.TrimSpace(v.value) != v.value {
			return fmt.Errorf("%w: %s is empty or padded", ErrUnencodable, v.key)
		}
	}
	return nil
}

// Payload is a parsed credential.
type Payload struct {
	EventTitle     string
	StudentID      string
	RegistrationID string
	Signature      string
	// Fields holds every key found, including ones this package does not know.
	Fields map[string]string
}

// Parse reads credential text. Event and Student ID are required; anything else
// is optional and unknown keys are kept in Fields but otherwise ignored.
func Parse(text string) (Payload, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	p := Payload{
		EventTitle:     fields[KeyEvent],
		StudentID:      fields[KeyStudentID],
		RegistrationID: fields[KeyRegistrationID],
		Signature:      fields[KeySignature],
		Fields:         fields,
	}
	if p.EventTitle == "" || p.StudentID == "" {
		return Payload{}, fmt.Errorf("%w: %q and %q are required", ErrInvalidCredentialFormat, KeyEvent, KeyStudentID)
	}
	return p, nil
}

// EventID extracts the event id from the registration reference. It reports false
// when the reference is missing, malformed or names a different student.
func (p Payload) EventID() (int64, bool) {
	i := strings.LastIndex(p.RegistrationID, "_")
	if i <= 0 || p.RegistrationID[:i] != p.StudentID {
		return 0, false
	}
	id, err := strconv.ParseInt(p.RegistrationID[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
