package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const orgColumns = `id, name, slug, logo, metadata, created_by_user_id, created_at, updated_at`

// Service provides organization-related operations
type Service struct {
	db store.DB
}

// NewService creates a new organization service
func NewService(db store.DB) *Service {
	return &Service{db: db}
}

func scanOrg(row pgx.Row) (*Org, error) {
	var org Org
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Logo,
		&org.Metadata,
		&org.CreatedByUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	return &org, nil
}

// GetByID retrieves an organization by ID
func (s *Service) GetByID(ctx context.Context, orgID uuid.UUID) (*Org, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orgColumns+`
		FROM orgs
		WHERE id = $1
	`, orgID)
	return scanOrg(row)
}

// GetBySlug retrieves an organization by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Org, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orgColumns+`
		FROM orgs
		WHERE slug = $1
	`, slug)
	return scanOrg(row)
}

// ListUserOrgs retrieves all organizations for a user with their roles
func (s *Service) ListUserOrgs(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error) {
	rows, err := s.db.Query(ctx, `
		SELECT o.id, o.name, o.slug, o.logo, o.metadata, o.created_by_user_id, o.created_at, o.updated_at, m.role
		FROM orgs o
		INNER JOIN org_memberships m ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orgs: %w", err)
	}
	defer rows.Close()

	var result []OrgWithRole
	for rows.Next() {
		var org OrgWithRole
		err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Slug,
			&org.Logo,
			&org.Metadata,
			&org.CreatedByUserID,
			&org.CreatedAt,
			&org.UpdatedAt,
			&org.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan org: %w", err)
		}
		result = append(result, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating org rows: %w", err)
	}

	return result, nil
}

// CreateWithOwner creates a new organization and makes the creator its OWNER.
// The org row and the owner membership commit in one transaction; no other
// membership may exist beforehand since the org id is fresh.
func (s *Service) CreateWithOwner(ctx context.Context, name, slug string, userID uuid.UUID) (*Org, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	org, err := scanOrg(tx.QueryRow(ctx, `
		INSERT INTO orgs (name, slug, created_by_user_id)
		VALUES ($1, $2, $3)
		RETURNING `+orgColumns+`
	`, name, slug, userID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO org_memberships (org_id, user_id, role)
		VALUES ($1, $2, $3)
	`, org.ID, userID, RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return org, nil
}

// Delete removes an organization and everything scoped to it. Only an OWNER
// may delete, and the caller must retype the organization's exact name as
// confirmation. Placeholder members whose identity only existed for this
// org's invitations are deleted in the same transaction.
func (s *Service) Delete(ctx context.Context, orgID uuid.UUID, confirmationName string, actorUserID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var actorRole OrgRole
	if err := tx.QueryRow(ctx, `
		SELECT role
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, actorUserID).Scan(&actorRole); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotMember
		}
		return fmt.Errorf("failed to load actor role: %w", err)
	}
	if actorRole != RoleOwner {
		return ErrInsufficientRole
	}

	var name string
	if err := tx.QueryRow(ctx, `
		SELECT name
		FROM orgs
		WHERE id = $1
		FOR UPDATE
	`, orgID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrgNotFound
		}
		return fmt.Errorf("failed to load organization: %w", err)
	}
	if name != confirmationName {
		return ErrNameMismatch
	}

	// Placeholder identities existed only for this org's invitations; drop
	// them before the cascade removes their linkage.
	if _, err := tx.Exec(ctx, `
		DELETE FROM users u
		USING org_memberships m
		WHERE m.user_id = u.id
		  AND m.org_id = $1
		  AND u.verified = FALSE
	`, orgID); err != nil {
		return fmt.Errorf("failed to delete placeholder users: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM orgs
		WHERE id = $1
	`, orgID); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListMembers retrieves all members of an organization
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]MemberInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.user_id, u.email, COALESCE(u.name, ''), m.role, u.verified, m.created_at
		FROM org_memberships m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.org_id = $1
		ORDER BY m.created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var member MemberInfo
		err := rows.Scan(
			&member.UserID,
			&member.Email,
			&member.Name,
			&member.Role,
			&member.Verified,
			&member.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// GetMemberRole retrieves a user's role in an organization.
// Returns ErrNotMember if the user is not a member.
func (s *Service) GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (OrgRole, error) {
	var role OrgRole
	err := s.db.QueryRow(ctx, `
		SELECT role FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotMember
		}
		return "", fmt.Errorf("failed to get org role: %w", err)
	}
	return role, nil
}
