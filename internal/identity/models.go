package identity

import (
	"database/sql"
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/google/uuid"
)

var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = apperrors.New(apperrors.KindNotFound, "user not found")

	// ErrEmailTaken is returned when a verified account already owns the email
	ErrEmailTaken = apperrors.New(apperrors.KindConflict, "email address already registered")
)

// User represents an identity record. Verified=false marks a placeholder
// created ahead of real sign-in by an invitation; it cannot authenticate
// until the reconciler (or direct signup) flips it to verified.
type User struct {
	ID           uuid.UUID      `db:"id"`
	Email        string         `db:"email"`
	Name         sql.NullString `db:"name"`
	Image        sql.NullString `db:"image"`
	PasswordHash sql.NullString `db:"password_hash"`
	Verified     bool           `db:"verified"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// Profile carries the identity fields an external provider reports on an
// authentication event. Empty strings mean the provider did not supply the
// field.
type Profile struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}
