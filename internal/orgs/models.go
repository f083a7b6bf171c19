package orgs

import (
	"database/sql"
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/google/uuid"
)

// OrgRole represents a user's role within an organization
type OrgRole string

const (
	RoleOwner  OrgRole = "OWNER"
	RoleAdmin  OrgRole = "ADMIN"
	RoleMember OrgRole = "MEMBER"
)

// IsValid reports whether the role is one of the closed enumeration.
func (r OrgRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManage returns true if the role has permission to modify organization
// memberships and resources
func (r OrgRole) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

var (
	// ErrOrgNotFound is returned when an organization is not found
	ErrOrgNotFound = apperrors.New(apperrors.KindNotFound, "organization not found")

	// ErrSlugConflict is returned when an organization slug already exists
	ErrSlugConflict = apperrors.New(apperrors.KindConflict, "organization slug already exists")

	// ErrNotMember is returned when a user is not a member of an organization
	ErrNotMember = apperrors.New(apperrors.KindNotFound, "user is not a member of this organization")

	// ErrInsufficientRole is returned when the actor lacks the required role
	ErrInsufficientRole = apperrors.New(apperrors.KindForbidden, "insufficient permissions")

	// ErrMemberNotFound is returned when the target membership does not exist
	ErrMemberNotFound = apperrors.New(apperrors.KindNotFound, "member not found")

	// ErrInvalidOrgRole is returned for a role outside the closed enumeration
	ErrInvalidOrgRole = apperrors.New(apperrors.KindBadRequest, "invalid organization role")

	// ErrCannotDemoteLastOwner guards the last verified owner on role changes
	ErrCannotDemoteLastOwner = apperrors.New(apperrors.KindInvariantViolation, "cannot demote the last owner")

	// ErrCannotRemoveLastOwner guards the last verified owner on removal
	ErrCannotRemoveLastOwner = apperrors.New(apperrors.KindInvariantViolation, "cannot remove the last owner")

	// ErrSelfRemoval is returned when a member tries to remove themselves
	ErrSelfRemoval = apperrors.New(apperrors.KindBadRequest, "cannot remove yourself from the organization")

	// ErrNameMismatch is returned when the deletion confirmation does not
	// match the organization name
	ErrNameMismatch = apperrors.New(apperrors.KindForbidden, "confirmation does not match organization name")
)

// Org represents an organization, the root tenant boundary
type Org struct {
	ID              uuid.UUID      `db:"id"`
	Name            string         `db:"name"`
	Slug            string         `db:"slug"`
	Logo            sql.NullString `db:"logo"`
	Metadata        []byte         `db:"metadata"`
	CreatedByUserID uuid.UUID      `db:"created_by_user_id"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// Membership represents a user's role assignment in an organization
type Membership struct {
	OrgID     uuid.UUID `db:"org_id"`
	UserID    uuid.UUID `db:"user_id"`
	Role      OrgRole   `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OrgWithRole combines org information with the user's role
type OrgWithRole struct {
	Org
	Role OrgRole `db:"role"`
}

// MemberInfo represents a member of an organization with their details.
// Verified=false marks invited members who have not signed in yet.
type MemberInfo struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name,omitempty"`
	Role      OrgRole   `db:"role" json:"role"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
