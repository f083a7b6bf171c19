package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Reconciler folds a placeholder identity into a verified account when the
// person behind the email actually authenticates. It runs as an explicit
// step at the start of every authentication callback, before any membership
// rows could be attributed to a freshly minted user id.
type Reconciler struct {
	db store.DB
}

// NewReconciler creates a new identity reconciler
func NewReconciler(db store.DB) *Reconciler {
	return &Reconciler{db: db}
}

// Resolve inspects an authentication event for the given email. If an
// unverified placeholder exists, it is verified in place, the profile is
// merged, and the upgraded user is returned with reconciled=true so the
// caller attaches the new credential to the existing id. If a verified user
// exists, it is returned untouched. If no user exists, (nil, false, nil) is
// returned and the caller proceeds with normal account creation.
//
// Idempotent: re-running for an already-verified user is a passthrough.
func (r *Reconciler) Resolve(ctx context.Context, email string, profile Profile) (*User, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var user User
	err = tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
		FOR UPDATE
	`, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Image,
		&user.PasswordHash,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Verified {
		return &user, false, tx.Commit(ctx)
	}

	name, image := mergeProfile(&user, profile)

	err = tx.QueryRow(ctx, `
		UPDATE users
		SET verified = TRUE,
		    name = NULLIF($2, ''),
		    image = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, user.ID, name, image).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Image,
		&user.PasswordHash,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to verify placeholder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Msg("Reconciled placeholder identity into verified account")

	return &user, true, nil
}

// mergeProfile resolves the post-reconciliation name and image: incoming
// fields win when present, existing values are retained otherwise. A present
// field is never overwritten by an absent one.
func mergeProfile(existing *User, incoming Profile) (name, image string) {
	name = incoming.Name
	if name == "" && existing.Name.Valid {
		name = existing.Name.String
	}
	image = incoming.Image
	if image == "" && existing.Image.Valid {
		image = existing.Image.String
	}
	return name, image
}
