package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup          = "user.signup"
	EventLoginFailed         = "auth.login_failed"
	EventUserReconciled      = "user.reconciled"
	EventOrgCreated          = "org.created"
	EventOrgDeleted          = "org.deleted"
	EventMemberRoleUpdated   = "org.member_role_updated"
	EventMemberRemoved       = "org.member_removed"
	EventInvitationCreated   = "invitation.created"
	EventInvitationAccepted  = "invitation.accepted"
	EventInvitationDismissed = "invitation.dismissed"
	EventProjectCreated      = "project.created"
	EventProjectRoleGranted  = "project.role_granted"
	EventProjectRoleRevoked  = "project.role_revoked"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	OrgID       uuid.NullUUID          `db:"org_id" json:"org_id"`
	ProjectID   uuid.NullUUID          `db:"project_id" json:"project_id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id" json:"actor_user_id"`
	Action      string                 `db:"action" json:"action"`
	Meta        map[string]interface{} `db:"meta" json:"meta"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	db store.DB
}

func NewWriter(db store.DB) *Writer {
	return &Writer{db: db}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OrgID       *uuid.UUID
	ProjectID   *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO audit_log (org_id, project_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, toNullUUID(params.OrgID), toNullUUID(params.ProjectID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit event")
		return err
	}

	return nil
}

// LogOrgEvent is a shorthand for org-scoped events.
func (w *Writer) LogOrgEvent(ctx context.Context, orgID, actorUserID uuid.UUID, action string, meta map[string]interface{}) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorUserID,
		Action:      action,
		Meta:        meta,
	})
}

// LogProjectEvent is a shorthand for project-scoped events.
func (w *Writer) LogProjectEvent(ctx context.Context, orgID, projectID, actorUserID uuid.UUID, action string, meta map[string]interface{}) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ProjectID:   &projectID,
		ActorUserID: &actorUserID,
		Action:      action,
		Meta:        meta,
	})
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
