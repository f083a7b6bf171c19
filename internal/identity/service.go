package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, email, name, image, password_hash, verified, created_at, updated_at`

// Service provides identity-store operations.
type Service struct {
	db store.DB
}

// NewService creates a new identity service
func NewService(db store.DB) *Service {
	return &Service{db: db}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Image,
		&u.PasswordHash,
		&u.Verified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID)
	return scanUser(row)
}

// GetByEmail retrieves a user by email. The email must already be normalized
// (see validation.NormalizeEmail).
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)
	return scanUser(row)
}

// CreateVerified inserts a verified user, as happens on direct sign-up.
// passwordHash may be empty for IdP-only accounts.
func (s *Service) CreateVerified(ctx context.Context, email, name, image, passwordHash string) (*User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (email, name, image, password_hash, verified)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), TRUE)
		RETURNING `+userColumns+`
	`, email, name, image, passwordHash)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// SetPassword replaces the stored password hash for a user.
func (s *Service) SetPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
