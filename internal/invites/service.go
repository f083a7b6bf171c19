package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/crewbasehq/crewbase/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const invitationColumns = `id, org_id, email, role, status, invited_by_user_id, created_at, expires_at`

// Service drives the invitation lifecycle.
type Service struct {
	db  store.DB
	ttl time.Duration
}

// NewService creates a new invitation service. ttlDays bounds how long a
// pending invitation stays acceptable.
func NewService(db store.DB, ttlDays int) *Service {
	return &Service{
		db:  db,
		ttl: time.Duration(ttlDays) * 24 * time.Hour,
	}
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.OrgID,
		&inv.Email,
		&inv.Role,
		&inv.Status,
		&inv.InvitedByUserID,
		&inv.CreatedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}
	return &inv, nil
}

// CreateResult reports what Create did beyond the invitation row itself.
type CreateResult struct {
	Invitation         *Invitation
	PlaceholderCreated bool
	PlaceholderUserID  uuid.UUID
}

// Create issues an invitation. The actor must hold ADMIN or OWNER. When no
// user owns the email yet, a placeholder identity and a membership with the
// invited role are pre-created in the same transaction, so member lists show
// the invitee immediately. When a user already exists, acceptance creates
// the membership instead. At most one pending invitation may exist per
// (org, email).
func (s *Service) Create(ctx context.Context, orgID, actorUserID uuid.UUID, email string, role orgs.OrgRole) (*CreateResult, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	if !role.IsValid() {
		return nil, orgs.ErrInvalidOrgRole
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var actorRole orgs.OrgRole
	if err := tx.QueryRow(ctx, `
		SELECT role
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, actorUserID).Scan(&actorRole); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orgs.ErrNotMember
		}
		return nil, fmt.Errorf("failed to load actor role: %w", err)
	}
	if !actorRole.CanManage() {
		return nil, orgs.ErrInsufficientRole
	}

	result := &CreateResult{}

	var existingUserID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id
		FROM users
		WHERE LOWER(email) = LOWER($1)
		FOR UPDATE
	`, email).Scan(&existingUserID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		// Pre-create the placeholder identity and its membership.
		var placeholderID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (email, verified)
			VALUES ($1, FALSE)
			RETURNING id
		`, email).Scan(&placeholderID); err != nil {
			return nil, fmt.Errorf("failed to create placeholder user: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO org_memberships (org_id, user_id, role)
			VALUES ($1, $2, $3)
		`, orgID, placeholderID, role); err != nil {
			return nil, fmt.Errorf("failed to create placeholder membership: %w", err)
		}

		result.PlaceholderCreated = true
		result.PlaceholderUserID = placeholderID
	}

	inv, err := scanInvitation(tx.QueryRow(ctx, `
		INSERT INTO invitations (org_id, email, role, invited_by_user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+invitationColumns+`
	`, orgID, email, role, actorUserID, time.Now().UTC().Add(s.ttl)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // partial unique index on pending
			return nil, ErrDuplicatePending
		}
		return nil, err
	}
	result.Invitation = inv

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// GetByID retrieves an invitation by ID
func (s *Service) GetByID(ctx context.Context, invitationID uuid.UUID) (*Invitation, error) {
	return scanInvitation(s.db.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
	`, invitationID))
}

// Accept transitions a pending invitation to ACCEPTED and ensures the
// accepting user holds the invited membership. Idempotent: accepting an
// already-accepted invitation is a no-op success.
func (s *Service) Accept(ctx context.Context, invitationID, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
		FOR UPDATE
	`, invitationID))
	if err != nil {
		return err
	}

	// The email gate comes before the status switch so the idempotent
	// accepted path never reports success to anyone but the invited user.
	var userEmail string
	if err := tx.QueryRow(ctx, `
		SELECT email FROM users WHERE id = $1
	`, userID).Scan(&userEmail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !strings.EqualFold(userEmail, inv.Email) {
		return ErrEmailMismatch
	}

	switch inv.Status {
	case StatusAccepted:
		return tx.Commit(ctx)
	case StatusDismissed:
		return ErrInviteDismissed
	}

	if !inv.ExpiresAt.After(time.Now().UTC()) {
		return ErrInviteExpired
	}

	// The placeholder path already created the membership; this covers the
	// existing-user path and is a no-op otherwise.
	if _, err := tx.Exec(ctx, `
		INSERT INTO org_memberships (org_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO NOTHING
	`, inv.OrgID, userID, inv.Role); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = $2, resolved_at = NOW(), resolved_by_user_id = $3
		WHERE id = $1
	`, inv.ID, StatusAccepted, userID); err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Dismiss transitions a pending invitation to DISMISSED. The actor must be
// the invited user or an org ADMIN/OWNER. A pre-created placeholder that
// nothing else references is deleted along with its membership.
func (s *Service) Dismiss(ctx context.Context, invitationID, actorUserID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1
		FOR UPDATE
	`, invitationID))
	if err != nil {
		return err
	}

	switch inv.Status {
	case StatusDismissed:
		return tx.Commit(ctx)
	case StatusAccepted:
		return ErrInviteAccepted
	}

	var actorEmail string
	if err := tx.QueryRow(ctx, `
		SELECT email FROM users WHERE id = $1
	`, actorUserID).Scan(&actorEmail); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to load actor: %w", err)
	}

	if !strings.EqualFold(actorEmail, inv.Email) {
		var actorRole orgs.OrgRole
		err := tx.QueryRow(ctx, `
			SELECT role
			FROM org_memberships
			WHERE org_id = $1 AND user_id = $2
		`, inv.OrgID, actorUserID).Scan(&actorRole)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return orgs.ErrInsufficientRole
			}
			return fmt.Errorf("failed to load actor role: %w", err)
		}
		if !actorRole.CanManage() {
			return orgs.ErrInsufficientRole
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE invitations
		SET status = $2, resolved_at = NOW(), resolved_by_user_id = $3
		WHERE id = $1
	`, inv.ID, StatusDismissed, actorUserID); err != nil {
		return fmt.Errorf("failed to mark invitation dismissed: %w", err)
	}

	if err := cleanupPlaceholder(ctx, tx, inv.OrgID, inv.Email); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// cleanupPlaceholder removes a pre-created placeholder identity once nothing
// references it: the user must be unverified, hold no membership outside
// this org, and have no other pending invitation anywhere.
func cleanupPlaceholder(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, email string) error {
	var userID uuid.UUID
	var verified bool
	err := tx.QueryRow(ctx, `
		SELECT id, verified
		FROM users
		WHERE LOWER(email) = LOWER($1)
		FOR UPDATE
	`, email).Scan(&userID, &verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to load placeholder: %w", err)
	}
	if verified {
		return nil
	}

	var otherRefs int
	err = tx.QueryRow(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM org_memberships WHERE user_id = $1 AND org_id <> $2)
		+ (SELECT COUNT(*) FROM invitations WHERE LOWER(email) = LOWER($3) AND status = 'PENDING')
	`, userID, orgID, email).Scan(&otherRefs)
	if err != nil {
		return fmt.Errorf("failed to count placeholder references: %w", err)
	}
	if otherRefs > 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID); err != nil {
		return fmt.Errorf("failed to delete placeholder membership: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM users
		WHERE id = $1 AND verified = FALSE
	`, userID); err != nil {
		return fmt.Errorf("failed to delete placeholder user: %w", err)
	}

	return nil
}

// ListPending returns the live pending invitations for an organization. The
// actor must hold ADMIN or OWNER.
func (s *Service) ListPending(ctx context.Context, orgID, actorUserID uuid.UUID) ([]PendingListItem, error) {
	var actorRole orgs.OrgRole
	err := s.db.QueryRow(ctx, `
		SELECT role
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, actorUserID).Scan(&actorRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orgs.ErrNotMember
		}
		return nil, fmt.Errorf("failed to load actor role: %w", err)
	}
	if !actorRole.CanManage() {
		return nil, orgs.ErrInsufficientRole
	}

	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.email, i.role, i.created_at, i.expires_at, u.email AS invited_by_email
		FROM invitations i
		INNER JOIN users u ON u.id = i.invited_by_user_id
		WHERE i.org_id = $1
		  AND i.status = 'PENDING'
		  AND i.expires_at > NOW()
		ORDER BY i.created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var items []PendingListItem
	for rows.Next() {
		var item PendingListItem
		if err := rows.Scan(&item.ID, &item.Email, &item.Role, &item.CreatedAt, &item.ExpiresAt, &item.InvitedByEmail); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}

	return items, nil
}
