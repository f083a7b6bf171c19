package invites

import (
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/google/uuid"
)

// Status is the invitation lifecycle state. PENDING transitions exactly once
// to ACCEPTED or DISMISSED; both are terminal. Re-inviting the same email
// after dismissal creates a new row, the old one stays as history.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDismissed Status = "DISMISSED"
)

var (
	// ErrInviteNotFound is returned when an invitation is not found
	ErrInviteNotFound = apperrors.New(apperrors.KindNotFound, "invitation not found")

	// ErrDuplicatePending is returned when the (org, email) pair already has
	// a live pending invitation
	ErrDuplicatePending = apperrors.New(apperrors.KindConflict, "a pending invitation already exists for this email")

	// ErrInviteDismissed is returned when accepting a dismissed invitation
	ErrInviteDismissed = apperrors.New(apperrors.KindConflict, "invitation was dismissed")

	// ErrInviteAccepted is returned when dismissing an accepted invitation
	ErrInviteAccepted = apperrors.New(apperrors.KindConflict, "invitation was already accepted")

	// ErrInviteExpired is returned when accepting an expired invitation
	ErrInviteExpired = apperrors.New(apperrors.KindConflict, "invitation expired")

	// ErrEmailMismatch is returned when the accepting user's email does not
	// match the invited email
	ErrEmailMismatch = apperrors.New(apperrors.KindForbidden, "invitation email does not match user")

	// ErrInvalidEmail is returned for malformed invitation emails
	ErrInvalidEmail = apperrors.New(apperrors.KindBadRequest, "invalid email address")
)

// Invitation represents one invitation row
type Invitation struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	OrgID           uuid.UUID    `db:"org_id" json:"org_id"`
	Email           string       `db:"email" json:"email"`
	Role            orgs.OrgRole `db:"role" json:"role"`
	Status          Status       `db:"status" json:"status"`
	InvitedByUserID uuid.UUID    `db:"invited_by_user_id" json:"invited_by_user_id"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time    `db:"expires_at" json:"expires_at"`
}

// PendingListItem is a pending invitation joined with the inviter's email
// for display
type PendingListItem struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	Email          string       `db:"email" json:"email"`
	Role           orgs.OrgRole `db:"role" json:"role"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time    `db:"expires_at" json:"expires_at"`
	InvitedByEmail string       `db:"invited_by_email" json:"invited_by_email"`
}
