package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists students, events and registrations.
//
// Queries run on Postgres and SQLite. SQLite numbers $n parameters by first
// appearance, so each query introduces $1, $2, ... in ascending order.
type Repository struct {
	db *sql.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// InTx runs fn against a repository bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const studentCols = `id, student_id, name, email, department, year, created_at`

func scanStudent(row rowScanner) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Email, &s.Department, &s.Year, &s.CreatedAt)
	return s, err
}

// StudentByID returns a student by internal id.
func (r *Repository) StudentByID(ctx context.Context, id int64) (Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	if err != nil {
		return Student{}, storageErr("get student", err)
	}
	return s, nil
}

// StudentByExternalID returns a student by the printed student identifier.
func (r *Repository) StudentByExternalID(ctx context.Context, studentID string) (Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE student_id = $1`, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	if err != nil {
		return Student{}, storageErr("get student", err)
	}
	return s, nil
}

const eventCols = `id, title, description, date, time, venue, organizer, capacity, registered_count, created_at`

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Time, &e.Venue, &e.Organizer,
		&e.Capacity, &e.RegisteredCount, &e.CreatedAt)
	return e, err
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("scan event", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list events", err)
	}
	return res, nil
}

// CreateEvent inserts e and returns it with its id.
func (r *Repository) CreateEvent(ctx context.Context, e Event) (Event, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO events (title, description, date, time, venue, organizer, capacity, registered_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		RETURNING id
	`, e.Title, e.Description, e.Date, e.Time, e.Venue, e.Organizer, e.Capacity, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return Event{}, storageErr("insert event", err)
	}
	e.RegisteredCount = 0
	return e, nil
}

// UpdateEvent rewrites the editable fields of e. The capacity may not drop
// below the number of registrations already taken.
func (r *Repository) UpdateEvent(ctx context.Context, e Event) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, date = $3, time = $4, venue = $5, organizer = $6, capacity = $7
		WHERE id = $8 AND registered_count <= $7
	`, e.Title, e.Description, e.Date, e.Time, e.Venue, e.Organizer, e.Capacity, e.ID)
	if err != nil {
		return storageErr("update event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update event", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetEvent(ctx, e.ID); err != nil {
		return err
	}
	return ErrCapacityTooLow
}

// DeleteEvent removes an event and, by cascade, its registrations.
func (r *Repository) DeleteEvent(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete event", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetEvent returns a single event by id.
func (r *Repository) GetEvent(ctx context.Context, id int64) (Event, error) {
	e, err := scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, storageErr("get event", err)
	}
	return e, nil
}

// ListEvents returns events dated on or after from (YYYY-MM-DD), or all events
// when from is empty, earliest first.
func (r *Repository) ListEvents(ctx context.Context, from string) ([]Event, error) {
	if from == "" {
		return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events ORDER BY date, time, id`)
	}
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE date >= $1 ORDER BY date, time, id`, from)
}

// EventsByTitle returns every event whose title matches exactly.
func (r *Repository) EventsByTitle(ctx context.Context, title string) ([]Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE title = $1 ORDER BY id`, title)
}

// Register creates the registration of studentID for eventID in one transaction
// and stores ref as its credential. The pair must be new and the event must have
// a free seat. Any failure leaves no registration behind and the seat count
// unchanged. The returned event carries the new seat count.
func (r *Repository) Register(ctx context.Context, studentID, eventID int64, at time.Time, ref string) (Registration, Event, error) {
	var (
		reg Registration
		e   Event
	)
	err := r.InTx(ctx, func(tx *Repository) error {
		var id int64
		err := tx.q.QueryRowContext(ctx, `
			INSERT INTO registrations (student_id, event_id, registration_time, qr_code_path, attended)
			VALUES ($1, $2, $3, $4, FALSE)
			ON CONFLICT (student_id, event_id) DO NOTHING
			RETURNING id
		`, studentID, eventID, at, ref).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyRegistered
		}
		if err != nil {
			return storageErr("insert registration", err)
		}

		res, err := tx.q.ExecContext(ctx, `
			UPDATE events SET registered_count = registered_count + 1
			WHERE id = $1 AND registered_count < capacity
		`, eventID)
		if err != nil {
			return storageErr("reserve seat", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("reserve seat", err)
		}
		if n == 0 {
			return ErrEventFull
		}

		if e, err = tx.GetEvent(ctx, eventID); err != nil {
			return err
		}
		reg = Registration{
			ID:               id,
			StudentID:        studentID,
			EventID:          eventID,
			RegistrationTime: at,
			CredentialRef:    ref,
		}
		return nil
	})
	if err != nil {
		return Registration{}, Event{}, err
	}
	return reg, e, nil
}

const registrationCols = `r.id, r.student_id, r.event_id, r.registration_time, r.qr_code_path, r.checkin_time, r.attended`

func scanRegistration(row rowScanner, extra ...any) (Registration, error) {
	var (
		reg     Registration
		checkin sql.NullTime
	)
	dest := append([]any{&reg.ID, &reg.StudentID, &reg.EventID, &reg.RegistrationTime, &reg.CredentialRef, &checkin, &reg.Attended}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Registration{}, err
	}
	if checkin.Valid {
		t := checkin.Time
		reg.CheckinTime = &t
	}
	return reg, nil
}

// FindByStudentAndEvent returns the registration of a student for an event.
func (r *Repository) FindByStudentAndEvent(ctx context.Context, studentID, eventID int64) (Registration, error) {
	reg, err := scanRegistration(r.q.QueryRowContext(ctx, `
		SELECT `+registrationCols+`
		FROM registrations r
		WHERE r.student_id = $1 AND r.event_id = $2
	`, studentID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrNotRegistered
	}
	if err != nil {
		return Registration{}, storageErr("get registration", err)
	}
	return reg, nil
}

// FindByEventID returns the roster of an event in registration order,
// optionally restricted to students who attended.
func (r *Repository) FindByEventID(ctx context.Context, eventID int64, attendedOnly bool) ([]Attendee, error) {
	query := `
		SELECT ` + registrationCols + `, s.student_id, s.name, s.department, s.year
		FROM registrations r
		JOIN students s ON s.id = r.student_id
		WHERE r.event_id = $1`
	if attendedOnly {
		query += ` AND r.attended = TRUE`
	}
	query += ` ORDER BY r.registration_time, r.id`

	rows, err := r.q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, storageErr("list registrations", err)
	}
	defer rows.Close()
	var res []Attendee
	for rows.Next() {
		var a Attendee
		reg, err := scanRegistration(rows, &a.StudentNumber, &a.StudentName, &a.Department, &a.Year)
		if err != nil {
			return nil, storageErr("scan registration", err)
		}
		a.Registration = reg
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list registrations", err)
	}
	return res, nil
}

// FindByStudentID returns a student's registrations with their events, soonest first.
func (r *Repository) FindByStudentID(ctx context.Context, studentID int64) ([]Enrollment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+registrationCols+`,
			e.id, e.title, e.description, e.date, e.time, e.venue, e.organizer, e.capacity, e.registered_count, e.created_at
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.student_id = $1
		ORDER BY e.date, e.time, e.id
	`, studentID)
	if err != nil {
		return nil, storageErr("list enrollments", err)
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		var en Enrollment
		e := &en.Event
		reg, err := scanRegistration(rows, &e.ID, &e.Title, &e.Description, &e.Date, &e.Time, &e.Venue,
			&e.Organizer, &e.Capacity, &e.RegisteredCount, &e.CreatedAt)
		if err != nil {
			return nil, storageErr("scan enrollment", err)
		}
		en.Registration = reg
		res = append(res, en)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list enrollments", err)
	}
	return res, nil
}

// MarkAttended moves a registration from registered to checked in. It reports
// false when no registration in the registered state matched.
func (r *Repository) MarkAttended(ctx context.Context, studentID, eventID int64, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE registrations SET attended = TRUE, checkin_time = $1
		WHERE student_id = $2 AND event_id = $3 AND attended = FALSE
	`, at, studentID, eventID)
	if err != nil {
		return false, storageErr("mark attended", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark attended", err)
	}
	return n == 1, nil
}

// SetAttended forces the attendance state. Setting true keeps an existing
// check-in time; setting false clears it.
func (r *Repository) SetAttended(ctx context.Context, studentID, eventID int64, attended bool, at time.Time) error {
	var (
		res sql.Result
		err error
	)
	if attended {
		res, err = r.q.ExecContext(ctx, `
			UPDATE registrations SET attended = TRUE, checkin_time = COALESCE(checkin_time, $1)
			WHERE student_id = $2 AND event_id = $3
		`, at, studentID, eventID)
	} else {
		res, err = r.q.ExecContext(ctx, `
			UPDATE registrations SET attended = FALSE, checkin_time = NULL
			WHERE student_id = $1 AND event_id = $2
		`, studentID, eventID)
	}
	if err != nil {
		return storageErr("set attendance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("set attendance", err)
	}
	if n == 0 {
		return ErrNotRegistered
	}
	return nil
}

// Stats returns dashboard totals.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM registrations),
			(SELECT COUNT(*) FROM registrations WHERE attended = TRUE)
	`).Scan(&st.Events, &st.Students, &st.Registrations, &st.CheckIns)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return st, nil
}

// CheckIns returns checked-in registrations across events, latest first.
// A limit of zero or less returns all of them.
func (r *Repository) CheckIns(ctx context.Context, limit int) ([]CheckInRecord, error) {
	query := `
		SELECT s.name, s.student_id, s.department, s.year, e.id, e.title, e.date, r.checkin_time
		FROM registrations r
		JOIN students s ON s.id = r.student_id
		JOIN events e ON e.id = r.event_id
		WHERE r.attended = TRUE AND r.checkin_time IS NOT NULL
		ORDER BY r.checkin_time DESC, r.id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list check-ins", err)
	}
	defer rows.Close()
	var res []CheckInRecord
	for rows.Next() {
		var c CheckInRecord
		if err := rows.Scan(&c.StudentName, &c.StudentID, &c.Department, &c.Year,
			&c.EventID, &c.EventTitle, &c.EventDate, &c.CheckinTime); err != nil {
			return nil, storageErr("scan check-in", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list check-ins", err)
	}
	return res, nil
}
