package orgs

import (
	"encoding/json"
	"net/http"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type MemberRoleUpdateRequest struct {
	Role OrgRole `json:"role"`
}

// HandleUpdateMemberRole handles PUT /api/v1/orgs/{org_id}/members/{user_id}
func HandleUpdateMemberRole(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		var req MemberRoleUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if !req.Role.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid role")
			return
		}

		service := NewService(db)
		prevRole, err := service.UpdateMemberRole(ctx, orgID, actorUserID, targetUserID, req.Role)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if err := auditor.LogOrgEvent(ctx, orgID, actorUserID, audit.EventMemberRoleUpdated, map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"previous_role":  string(prevRole),
			"new_role":       string(req.Role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"updated":       true,
			"previous_role": prevRole,
		})
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{org_id}/members/{user_id}
func HandleRemoveMember(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		service := NewService(db)
		removedRole, err := service.RemoveMember(ctx, orgID, actorUserID, targetUserID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if err := auditor.LogOrgEvent(ctx, orgID, actorUserID, audit.EventMemberRemoved, map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"removed_role":   string(removedRole),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}
