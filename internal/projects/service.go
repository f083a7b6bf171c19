package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const projectColumns = `id, org_id, name, slug, created_by_user_id, created_at, updated_at`

// Service provides project-related operations
type Service struct {
	db store.DB
}

// NewService creates a new project service
func NewService(db store.DB) *Service {
	return &Service{db: db}
}

func scanProject(row pgx.Row) (*Project, error) {
	var project Project
	err := row.Scan(
		&project.ID,
		&project.OrgID,
		&project.Name,
		&project.Slug,
		&project.CreatedByUserID,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &project, nil
}

// GetByID retrieves a project by ID
func (s *Service) GetByID(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id = $1
	`, projectID)
	return scanProject(row)
}

// GetByOrgAndSlug retrieves a project by organization ID and slug
func (s *Service) GetByOrgAndSlug(ctx context.Context, orgID uuid.UUID, slug string) (*Project, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE org_id = $1 AND slug = $2
	`, orgID, slug)
	return scanProject(row)
}

// ListByOrg retrieves all projects for an organization
func (s *Service) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]Project, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var result []Project
	for rows.Next() {
		var project Project
		err := rows.Scan(
			&project.ID,
			&project.OrgID,
			&project.Name,
			&project.Slug,
			&project.CreatedByUserID,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return result, nil
}

// Create creates a new project owned by the organization. The org binding is
// set once here and never updated.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, name, slug string, userID uuid.UUID) (*Project, error) {
	project, err := scanProject(s.db.QueryRow(ctx, `
		INSERT INTO projects (org_id, name, slug, created_by_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+projectColumns+`
	`, orgID, name, slug, userID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrSlugConflict
		}
		return nil, err
	}
	return project, nil
}
