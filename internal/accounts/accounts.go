// Package accounts manages student sign-up and the logins of all three roles.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusevents/internal/auth"
	"campusevents/internal/store"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidSignup      = errors.New("invalid signup")
)

// Signup is the self-registration form of a student.
type Signup struct {
	StudentID  string `json:"student_id" validate:"required,max=32,singleline"`
	Name       string `json:"name" validate:"required,max=120,singleline"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Department string `json:"department" validate:"max=120"`
	Year       string `json:"year" validate:"max=16"`
}

// Service stores accounts with bcrypt password hashes.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates an accounts service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// SignupStudent creates a student and returns the identity to log in as.
func (s *Service) SignupStudent(ctx context.Context, in Signup) (auth.Identity, error) {
	// Both are printed one per line on registration credentials.
	if strings.ContainsAny(in.StudentID+in.Name, "\r\n") || strings.TrimSpace(in.StudentID) == "" {
		return auth.Identity{}, fmt.Errorf("%w: student id and name must be a single line", ErrInvalidSignup)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return auth.Identity{}, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO students (student_id, name, email, password, department, year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, strings.TrimSpace(in.StudentID), strings.TrimSpace(in.Name), normalizeEmail(in.Email), hash,
		in.Department, in.Year, s.now().UTC()).Scan(&id)
	if store.IsUniqueViolation(err) {
		return auth.Identity{}, fmt.Errorf("%w: student id or email taken", ErrAccountExists)
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return auth.Identity{ID: id, Role: auth.RoleStudent, Name: strings.TrimSpace(in.Name)}, nil
}

// Login checks a password. Students log in by email, staff and admins by username.
func (s *Service) Login(ctx context.Context, role auth.Role, login, password string) (auth.Identity, error) {
	var query string
	switch role {
	case auth.RoleStudent:
		query = `SELECT id, name, password FROM students WHERE email = $1`
		login = normalizeEmail(login)
	case auth.RoleStaff:
		query = `SELECT id, name, password FROM staff WHERE username = $1`
	case auth.RoleAdmin:
		query = `SELECT id, name, password FROM admins WHERE username = $1`
	default:
		return auth.Identity{}, ErrInvalidCredentials
	}

	var (
		id   int64
		name string
		hash string
	)
	err := s.db.QueryRowContext(ctx, query, login).Scan(&id, &name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := auth.CheckPassword(password, hash); err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}
	return auth.Identity{ID: id, Role: role, Name: name}, nil
}

// EnsureAccount creates a staff or admin account unless the username exists.
// It reports whether an account was created.
func (s *Service) EnsureAccount(ctx context.Context, role auth.Role, username, password, name string) (bool, error) {
	var table string
	switch role {
	case auth.RoleStaff:
		table = "staff"
	case auth.RoleAdmin:
		table = "admins"
	default:
		return false, fmt.Errorf("cannot seed %s accounts", role)
	}
	if username == "" {
		return false, errors.New("username is required")
	}
	if name == "" {
		name = username
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (username, password, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, username, hash, name, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return n == 1, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
