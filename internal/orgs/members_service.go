package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memberState is a target membership loaded under FOR UPDATE, with the
// identity fields the last-owner check and the removal cascade need.
type memberState struct {
	Role     OrgRole
	Verified bool
	Email    string
}

func loadMemberForUpdate(ctx context.Context, tx pgx.Tx, orgID, userID uuid.UUID) (*memberState, error) {
	var st memberState
	err := tx.QueryRow(ctx, `
		SELECT m.role, u.verified, u.email
		FROM org_memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.org_id = $1 AND m.user_id = $2
		FOR UPDATE OF m
	`, orgID, userID).Scan(&st.Role, &st.Verified, &st.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return &st, nil
}

func loadActorRole(ctx context.Context, tx pgx.Tx, orgID, actorUserID uuid.UUID) (OrgRole, error) {
	var role OrgRole
	err := tx.QueryRow(ctx, `
		SELECT role
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, actorUserID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotMember
		}
		return "", fmt.Errorf("failed to load actor role: %w", err)
	}
	return role, nil
}

// countOtherVerifiedOwners locks every OWNER membership of the org and counts
// those backed by verified users, excluding the target. Locking the rows
// closes the race where two concurrent demotions of the last two owners each
// observe the other owner still present. A placeholder holding OWNER never
// counts: it cannot authenticate yet.
func countOtherVerifiedOwners(ctx context.Context, tx pgx.Tx, orgID, targetUserID uuid.UUID) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT m.user_id, u.verified
		FROM org_memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.org_id = $1 AND m.role = $2
		FOR UPDATE OF m
	`, orgID, RoleOwner)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	var others int
	for rows.Next() {
		var userID uuid.UUID
		var verified bool
		if err := rows.Scan(&userID, &verified); err != nil {
			return 0, fmt.Errorf("failed to scan owner: %w", err)
		}
		if verified && userID != targetUserID {
			others++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}

	return others, nil
}

// UpdateMemberRole changes a member's organization role. The actor must hold
// ADMIN or OWNER. Demoting the last verified owner fails; the verified-owner
// count and the role update share one transaction.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, newRole OrgRole) (previousRole OrgRole, err error) {
	if !newRole.IsValid() {
		return "", ErrInvalidOrgRole
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	actorRole, err := loadActorRole(ctx, tx, orgID, actorUserID)
	if err != nil {
		return "", err
	}
	if !actorRole.CanManage() {
		return "", ErrInsufficientRole
	}

	target, err := loadMemberForUpdate(ctx, tx, orgID, targetUserID)
	if err != nil {
		return "", err
	}

	if target.Role == RoleOwner && newRole != RoleOwner && target.Verified {
		others, err := countOtherVerifiedOwners(ctx, tx, orgID, targetUserID)
		if err != nil {
			return "", err
		}
		if others == 0 {
			return "", ErrCannotDemoteLastOwner
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE org_memberships
		SET role = $3, updated_at = NOW()
		WHERE org_id = $1 AND user_id = $2
	`, orgID, targetUserID, newRole); err != nil {
		return "", fmt.Errorf("failed to update member role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return target.Role, nil
}

// RemoveMember removes a member from an organization. The actor must hold
// ADMIN or OWNER and cannot remove themselves. Removing the last verified
// owner fails. The member's project permissions and pending invitations in
// this org are deleted in the same transaction; a placeholder member's user
// row goes with them.
func (s *Service) RemoveMember(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID) (removedRole OrgRole, err error) {
	if actorUserID == targetUserID {
		return "", ErrSelfRemoval
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	actorRole, err := loadActorRole(ctx, tx, orgID, actorUserID)
	if err != nil {
		return "", err
	}
	if !actorRole.CanManage() {
		return "", ErrInsufficientRole
	}

	target, err := loadMemberForUpdate(ctx, tx, orgID, targetUserID)
	if err != nil {
		return "", err
	}

	if target.Role == RoleOwner && target.Verified {
		others, err := countOtherVerifiedOwners(ctx, tx, orgID, targetUserID)
		if err != nil {
			return "", err
		}
		if others == 0 {
			return "", ErrCannotRemoveLastOwner
		}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM project_permissions pp
		USING projects p
		WHERE pp.project_id = p.id
		  AND p.org_id = $1
		  AND pp.user_id = $2
	`, orgID, targetUserID); err != nil {
		return "", fmt.Errorf("failed to delete project permissions: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM invitations
		WHERE org_id = $1
		  AND LOWER(email) = LOWER($2)
		  AND status = 'PENDING'
	`, orgID, target.Email); err != nil {
		return "", fmt.Errorf("failed to delete pending invitations: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, targetUserID)
	if err != nil {
		return "", fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrMemberNotFound
	}

	if !target.Verified {
		if _, err := tx.Exec(ctx, `
			DELETE FROM users
			WHERE id = $1 AND verified = FALSE
		`, targetUserID); err != nil {
			return "", fmt.Errorf("failed to delete placeholder user: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return target.Role, nil
}
