package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Grant upserts an explicit per-project permission row. Callers must have
// passed the resolver's CanManageProject check first; this is a pure
// projection of explicit grants and deliberately knows nothing about org
// roles.
func (s *Service) Grant(ctx context.Context, projectID, userID uuid.UUID, role PermissionRole) error {
	if !role.IsValid() {
		return ErrInvalidPermissionRole
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO project_permissions (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`, projectID, userID, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to grant project role: %w", err)
	}

	return nil
}

// Revoke deletes an explicit grant.
func (s *Service) Revoke(ctx context.Context, projectID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM project_permissions
		WHERE project_id = $1 AND user_id = $2
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke project role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPermissionNotFound
	}

	return nil
}

// ListVisibleToUser returns the org's projects a plain member can see, i.e.
// those with an explicit grant for the user. Admins and owners see every
// project and go through ListByOrg instead.
func (s *Service) ListVisibleToUser(ctx context.Context, orgID, userID uuid.UUID) ([]Project, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.org_id, p.name, p.slug, p.created_by_user_id, p.created_at, p.updated_at
		FROM projects p
		INNER JOIN project_permissions pp ON pp.project_id = p.id
		WHERE p.org_id = $1 AND pp.user_id = $2
		ORDER BY p.created_at ASC
	`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Slug, &p.CreatedByUserID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return out, nil
}

// ListForProject returns all explicit grants on a project. Display only; the
// access decision always goes through the authz resolver.
func (s *Service) ListForProject(ctx context.Context, projectID uuid.UUID) ([]PermissionInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pp.user_id, u.email, pp.role, pp.created_at
		FROM project_permissions pp
		INNER JOIN users u ON u.id = pp.user_id
		WHERE pp.project_id = $1
		ORDER BY pp.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project permissions: %w", err)
	}
	defer rows.Close()

	var grants []PermissionInfo
	for rows.Next() {
		var grant PermissionInfo
		if err := rows.Scan(&grant.UserID, &grant.Email, &grant.Role, &grant.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project permission: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}

	return grants, nil
}
