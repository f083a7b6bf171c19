package projects

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/authz"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/crewbasehq/crewbase/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ProjectCreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/projects
// Restricted to org ADMIN and OWNER.
func HandleCreate(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req ProjectCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Project name is required")
			return
		}

		req.Slug = validation.NormalizeSlug(req.Slug)
		if err := validation.ValidateSlug(req.Slug); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		resolver := authz.NewResolver(db)
		if _, err := resolver.RequireAdminOrOwner(ctx, orgID, userID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		project, err := service.Create(ctx, orgID, req.Name, req.Slug, userID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if err := auditor.LogProjectEvent(ctx, orgID, project.ID, userID, audit.EventProjectCreated, map[string]interface{}{
			"slug": project.Slug,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"project": project,
		})
	}
}

// HandleList handles GET /api/v1/orgs/{org_id}/projects
// Admins and owners see every project; plain members only see projects they
// hold an explicit grant on.
func HandleList(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		resolver := authz.NewResolver(db)
		role, err := resolver.RequireMember(ctx, orgID, userID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		var items []Project
		if role.CanManage() {
			items, err = service.ListByOrg(ctx, orgID)
		} else {
			items, err = service.ListVisibleToUser(ctx, orgID, userID)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to list projects")
			apperrors.WriteInternalError(w, r, "Failed to list projects")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"projects": items,
		})
	}
}

// HandleGet handles GET /api/v1/projects/{project_id}
// Requires at least Viewer effective access.
func HandleGet(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		resolver := authz.NewResolver(db)
		role, err := resolver.RequireProjectRole(ctx, projectID, userID, authz.ProjectViewer)
		if err != nil {
			if errors.Is(err, authz.ErrForbidden) {
				// No access reads as absence.
				apperrors.WriteNotFound(w, r, "Project not found")
				return
			}
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		project, err := service.GetByID(ctx, projectID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project": project,
			"role":    role,
		})
	}
}

type PermissionGrantRequest struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   PermissionRole `json:"role"`
}

// HandleGrantPermission handles PUT /api/v1/projects/{project_id}/permissions
// The grantee must already be a member of the project's organization.
func HandleGrantPermission(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		var req PermissionGrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if !req.Role.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid role")
			return
		}

		resolver := authz.NewResolver(db)
		if err := resolver.CanManageProject(ctx, projectID, actorUserID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		project, err := service.GetByID(ctx, projectID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if _, err := orgs.NewService(db).GetMemberRole(ctx, project.OrgID, req.UserID); err != nil {
			if errors.Is(err, orgs.ErrNotMember) {
				apperrors.WriteBadRequest(w, r, "Grantee is not a member of the organization")
				return
			}
			log.Error().Err(err).Msg("Failed to check grantee membership")
			apperrors.WriteInternalError(w, r, "Failed to grant project role")
			return
		}

		if err := service.Grant(ctx, projectID, req.UserID, req.Role); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if err := auditor.LogProjectEvent(ctx, project.OrgID, projectID, actorUserID, audit.EventProjectRoleGranted, map[string]interface{}{
			"target_user_id": req.UserID.String(),
			"role":           string(req.Role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"granted": true,
		})
	}
}

// HandleRevokePermission handles DELETE /api/v1/projects/{project_id}/permissions/{user_id}
func HandleRevokePermission(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		resolver := authz.NewResolver(db)
		if err := resolver.CanManageProject(ctx, projectID, actorUserID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		if err := service.Revoke(ctx, projectID, targetUserID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if project, err := service.GetByID(ctx, projectID); err == nil {
			if err := auditor.LogProjectEvent(ctx, project.OrgID, projectID, actorUserID, audit.EventProjectRoleRevoked, map[string]interface{}{
				"target_user_id": targetUserID.String(),
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"revoked": true,
		})
	}
}

// HandleListPermissions handles GET /api/v1/projects/{project_id}/permissions
func HandleListPermissions(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		resolver := authz.NewResolver(db)
		if err := resolver.CanManageProject(ctx, projectID, userID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		service := NewService(db)
		grants, err := service.ListForProject(ctx, projectID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list project permissions")
			apperrors.WriteInternalError(w, r, "Failed to list project permissions")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"permissions": grants,
		})
	}
}

// HandleEffectiveRole handles GET /api/v1/projects/{project_id}/access
// Callers always may ask about themselves; asking about another user
// requires manage access on the project.
func HandleEffectiveRole(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid project ID")
			return
		}

		subjectID := userID
		if raw := r.URL.Query().Get("user_id"); raw != "" {
			subjectID, err = uuid.Parse(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid user ID")
				return
			}
		}

		resolver := authz.NewResolver(db)
		if subjectID != userID {
			if err := resolver.CanManageProject(ctx, projectID, userID); err != nil {
				apperrors.WriteKind(w, r, err)
				return
			}
		}

		role, err := resolver.EffectiveProjectRole(ctx, projectID, subjectID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"user_id": subjectID,
			"role":    role,
		})
	}
}
