package orgs

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/crewbasehq/crewbase/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateRequest represents the request to create an organization
type CreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type OrgResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type OrgListItemResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
	Role OrgRole   `json:"role"`
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Organization name is required")
			return
		}
		if req.Slug == "" {
			apperrors.WriteBadRequest(w, r, "Organization slug is required")
			return
		}

		req.Slug = validation.NormalizeSlug(req.Slug)
		if err := validation.ValidateSlug(req.Slug); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(db)
		org, err := service.CreateWithOwner(ctx, req.Name, req.Slug, userID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		if err := auditor.LogOrgEvent(ctx, org.ID, userID, audit.EventOrgCreated, map[string]interface{}{
			"slug": org.Slug,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"org": OrgResponse{
				ID:        org.ID,
				Name:      org.Name,
				Slug:      org.Slug,
				CreatedAt: org.CreatedAt,
			},
		})
	}
}

// HandleList handles GET /api/v1/orgs
func HandleList(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(db)
		withRoles, err := service.ListUserOrgs(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list organizations")
			apperrors.WriteInternalError(w, r, "Failed to list organizations")
			return
		}

		items := make([]OrgListItemResponse, 0, len(withRoles))
		for _, o := range withRoles {
			items = append(items, OrgListItemResponse{
				ID:   o.ID,
				Name: o.Name,
				Slug: o.Slug,
				Role: o.Role,
			})
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"orgs": items,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}
func HandleGet(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		service := NewService(db)

		role, err := service.GetMemberRole(ctx, orgID, userID)
		if err != nil {
			if errors.Is(err, ErrNotMember) {
				// Non-members learn nothing, not even existence.
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Failed to load organization")
			return
		}

		org, err := service.GetByID(ctx, orgID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"org": OrgResponse{
				ID:        org.ID,
				Name:      org.Name,
				Slug:      org.Slug,
				CreatedAt: org.CreatedAt,
			},
			"role": role,
		})
	}
}

// DeleteRequest carries the confirmation for organization deletion. The
// caller must retype the organization name exactly.
type DeleteRequest struct {
	Name string `json:"name"`
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}
func HandleDelete(db store.DB, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(db)
		if err := service.Delete(ctx, orgID, req.Name, userID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		// The org row is gone; log without the FK reference.
		if err := auditor.Log(ctx, audit.LogParams{
			ActorUserID: &userID,
			Action:      audit.EventOrgDeleted,
			Meta:        map[string]interface{}{"org_id": orgID.String(), "name": req.Name},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

// HandleListMembers handles GET /api/v1/orgs/{org_id}/members
func HandleListMembers(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		service := NewService(db)

		if _, err := service.GetMemberRole(ctx, orgID, userID); err != nil {
			if errors.Is(err, ErrNotMember) {
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		members, err := service.ListMembers(ctx, orgID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}
