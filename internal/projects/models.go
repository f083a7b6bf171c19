package projects

import (
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/google/uuid"
)

var (
	// ErrProjectNotFound is returned when a project is not found
	ErrProjectNotFound = apperrors.New(apperrors.KindNotFound, "project not found")

	// ErrSlugConflict is returned when a project slug already exists in the organization
	ErrSlugConflict = apperrors.New(apperrors.KindConflict, "project slug already exists in organization")

	// ErrInvalidPermissionRole is returned for a role outside the closed enumeration
	ErrInvalidPermissionRole = apperrors.New(apperrors.KindBadRequest, "invalid project role")

	// ErrPermissionNotFound is returned when no explicit grant exists
	ErrPermissionNotFound = apperrors.New(apperrors.KindNotFound, "project permission not found")
)

// PermissionRole is an explicit per-project grant level. Absence of a grant
// means no access unless the org role overrides; that composition lives in
// the authz resolver, not here.
type PermissionRole string

const (
	PermissionViewer PermissionRole = "VIEWER"
	PermissionEditor PermissionRole = "EDITOR"
	PermissionAdmin  PermissionRole = "ADMIN"
)

// IsValid reports whether the role is one of the closed enumeration.
func (r PermissionRole) IsValid() bool {
	switch r {
	case PermissionViewer, PermissionEditor, PermissionAdmin:
		return true
	}
	return false
}

// Project represents a project within an organization. The owning org never
// changes after creation.
type Project struct {
	ID              uuid.UUID `db:"id"`
	OrgID           uuid.UUID `db:"org_id"`
	Name            string    `db:"name"`
	Slug            string    `db:"slug"`
	CreatedByUserID uuid.UUID `db:"created_by_user_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Permission represents an explicit per-project grant
type Permission struct {
	ProjectID uuid.UUID      `db:"project_id" json:"project_id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Role      PermissionRole `db:"role" json:"role"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// PermissionInfo is a grant joined with user details for display
type PermissionInfo struct {
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Email     string         `db:"email" json:"email"`
	Role      PermissionRole `db:"role" json:"role"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
