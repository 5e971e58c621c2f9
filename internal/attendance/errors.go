package attendance

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyRegistered  = errors.New("already registered for this event")
	ErrEventFull          = errors.New("event is full")
	ErrEventNotFound      = errors.New("event not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrNotRegistered      = errors.New("student is not registered for this event")
	ErrAlreadyCheckedIn   = errors.New("attendance already marked")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEncodingFailure    = errors.New("credential generation failed")
	ErrForbidden          = errors.New("operation not permitted for this role")
	ErrCapacityTooLow     = errors.New("capacity is below the number of registrations")
	ErrInvalidEvent       = errors.New("invalid event")
)

// AlreadyCheckedInError names the student and the original check-in so staff can
// resolve a duplicate scan by hand.
type AlreadyCheckedInError struct {
	StudentName string
	StudentID   string
	CheckedInAt time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("attendance already marked for %s (%s) at %s",
		e.StudentName, e.StudentID, e.CheckedInAt.Format("2006-01-02 15:04:05"))
}

func (e *AlreadyCheckedInError) Is(target error) bool {
	return target == ErrAlreadyCheckedIn
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
