// Package authz is the single source of truth for access decisions. Every
// mutation path checks here first; the resolver itself never writes, so its
// checks are safe to repeat and to call from read paths.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProjectRole is the resolved access level for a user on a project.
type ProjectRole string

const (
	ProjectNoAccess ProjectRole = "NO_ACCESS"
	ProjectViewer   ProjectRole = "VIEWER"
	ProjectEditor   ProjectRole = "EDITOR"
	ProjectAdmin    ProjectRole = "ADMIN"
)

// Level places project roles on the total order
// Admin > Editor > Viewer > NoAccess.
func (r ProjectRole) Level() int {
	switch r {
	case ProjectAdmin:
		return 3
	case ProjectEditor:
		return 2
	case ProjectViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the role satisfies the required level.
func (r ProjectRole) AtLeast(required ProjectRole) bool {
	return r.Level() >= required.Level()
}

var (
	// ErrProjectNotFound is returned when the project does not exist
	ErrProjectNotFound = apperrors.New(apperrors.KindNotFound, "project not found")

	// ErrForbidden is returned when the principal lacks the required access
	ErrForbidden = apperrors.New(apperrors.KindForbidden, "insufficient permissions")
)

// Resolver answers "can principal P perform action A on resource R".
type Resolver struct {
	db store.DB
}

// NewResolver creates a new authorization resolver
func NewResolver(db store.DB) *Resolver {
	return &Resolver{db: db}
}

// OrgRole returns the principal's role in the organization, or
// orgs.ErrNotMember.
func (r *Resolver) OrgRole(ctx context.Context, orgID, userID uuid.UUID) (orgs.OrgRole, error) {
	var role orgs.OrgRole
	err := r.db.QueryRow(ctx, `
		SELECT role FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", orgs.ErrNotMember
		}
		return "", fmt.Errorf("failed to check org membership: %w", err)
	}
	return role, nil
}

// RequireMember verifies org membership and returns the role.
func (r *Resolver) RequireMember(ctx context.Context, orgID, userID uuid.UUID) (orgs.OrgRole, error) {
	return r.OrgRole(ctx, orgID, userID)
}

// RequireAdminOrOwner verifies the principal holds ADMIN or OWNER.
func (r *Resolver) RequireAdminOrOwner(ctx context.Context, orgID, userID uuid.UUID) (orgs.OrgRole, error) {
	role, err := r.OrgRole(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	if !role.CanManage() {
		return role, ErrForbidden
	}
	return role, nil
}

// EffectiveProjectRole resolves the access level for a user on a project.
// Organization OWNER and ADMIN always resolve to project Admin; explicit
// grants are only consulted for plain MEMBER users, so a stale or
// conflicting grant row can never lower (or raise) an org admin's access.
// Non-members resolve to NoAccess regardless of any grant row.
func (r *Resolver) EffectiveProjectRole(ctx context.Context, projectID, userID uuid.UUID) (ProjectRole, error) {
	var orgID uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT org_id FROM projects
		WHERE id = $1
	`, projectID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectNoAccess, ErrProjectNotFound
		}
		return ProjectNoAccess, fmt.Errorf("failed to load project: %w", err)
	}

	var orgRole orgs.OrgRole
	err = r.db.QueryRow(ctx, `
		SELECT role FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&orgRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectNoAccess, nil
		}
		return ProjectNoAccess, fmt.Errorf("failed to check org membership: %w", err)
	}

	if orgRole.CanManage() {
		return ProjectAdmin, nil
	}

	var granted ProjectRole
	err = r.db.QueryRow(ctx, `
		SELECT role FROM project_permissions
		WHERE project_id = $1 AND user_id = $2
	`, projectID, userID).Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectNoAccess, nil
		}
		return ProjectNoAccess, fmt.Errorf("failed to check project permission: %w", err)
	}

	return granted, nil
}

// RequireProjectRole verifies the principal's effective role meets the
// required level.
func (r *Resolver) RequireProjectRole(ctx context.Context, projectID, userID uuid.UUID, required ProjectRole) (ProjectRole, error) {
	role, err := r.EffectiveProjectRole(ctx, projectID, userID)
	if err != nil {
		return ProjectNoAccess, err
	}
	if !role.AtLeast(required) {
		return role, ErrForbidden
	}
	return role, nil
}

// CanManageProject verifies the principal may administer the project's
// explicit grants.
func (r *Resolver) CanManageProject(ctx context.Context, projectID, userID uuid.UUID) error {
	_, err := r.RequireProjectRole(ctx, projectID, userID, ProjectAdmin)
	return err
}
