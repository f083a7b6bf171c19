package invites

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/identity"
	"github.com/crewbasehq/crewbase/internal/mailer"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type InviteCreateRequest struct {
	Email string       `json:"email"`
	Role  orgs.OrgRole `json:"role"`
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/invitations
// Email delivery happens after commit and never affects the outcome.
func HandleCreate(db store.DB, auditor *audit.Writer, mail *mailer.Client, ttlDays int, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req InviteCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(db, ttlDays)
		result, err := service.Create(ctx, orgID, actorUserID, req.Email, req.Role)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}
		inv := result.Invitation

		if err := auditor.LogOrgEvent(ctx, orgID, actorUserID, audit.EventInvitationCreated, map[string]interface{}{
			"invitation_id":       inv.ID.String(),
			"email":               inv.Email,
			"role":                string(inv.Role),
			"placeholder_created": result.PlaceholderCreated,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		go sendInvitationEmail(db, mail, inv, actorUserID, baseURL)

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invitation": inv,
		})
	}
}

// sendInvitationEmail runs detached from the request. It looks up display
// data with its own deadline so a slow mail provider cannot hold a request
// open.
func sendInvitationEmail(db store.DB, mail *mailer.Client, inv *Invitation, actorUserID uuid.UUID, baseURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	org, err := orgs.NewService(db).GetByID(ctx, inv.OrgID)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping invitation email, failed to load org")
		return
	}

	inviterEmail := ""
	if inviter, err := identity.NewService(db).GetByID(ctx, actorUserID); err == nil {
		inviterEmail = inviter.Email
	}

	mail.SendInvitation(ctx, mailer.InvitationEmail{
		To:             inv.Email,
		OrgName:        org.Name,
		Role:           string(inv.Role),
		InvitedByEmail: inviterEmail,
		AcceptURL:      fmt.Sprintf("%s/invitations/%s", baseURL, inv.ID),
	})
}

// HandleListPending handles GET /api/v1/orgs/{org_id}/invitations
func HandleListPending(db store.DB, ttlDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		service := NewService(db, ttlDays)
		items, err := service.ListPending(ctx, orgID, actorUserID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": items,
		})
	}
}

// HandleAccept handles POST /api/v1/invitations/{invitation_id}/accept
func HandleAccept(db store.DB, auditor *audit.Writer, ttlDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		invitationID, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		service := NewService(db, ttlDays)
		if err := service.Accept(ctx, invitationID, userID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		inv, err := service.GetByID(ctx, invitationID)
		if err == nil {
			if err := auditor.LogOrgEvent(ctx, inv.OrgID, userID, audit.EventInvitationAccepted, map[string]interface{}{
				"invitation_id": invitationID.String(),
				"role":          string(inv.Role),
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"accepted": true,
		})
	}
}

// HandleDismiss handles POST /api/v1/invitations/{invitation_id}/dismiss
func HandleDismiss(db store.DB, auditor *audit.Writer, ttlDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		invitationID, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		service := NewService(db, ttlDays)
		if err := service.Dismiss(ctx, invitationID, actorUserID); err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		inv, err := service.GetByID(ctx, invitationID)
		if err == nil {
			if err := auditor.LogOrgEvent(ctx, inv.OrgID, actorUserID, audit.EventInvitationDismissed, map[string]interface{}{
				"invitation_id": invitationID.String(),
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"dismissed": true,
		})
	}
}

// HandleGet handles GET /api/v1/invitations/{invitation_id}
// Visible to the invited user and to managers of the inviting org.
func HandleGet(db store.DB, ttlDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		invitationID, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		service := NewService(db, ttlDays)
		inv, err := service.GetByID(ctx, invitationID)
		if err != nil {
			apperrors.WriteKind(w, r, err)
			return
		}

		allowed := false
		if user, err := identity.NewService(db).GetByID(ctx, userID); err == nil && strings.EqualFold(user.Email, inv.Email) {
			allowed = true
		}
		if !allowed {
			role, err := orgs.NewService(db).GetMemberRole(ctx, inv.OrgID, userID)
			allowed = err == nil && role.CanManage()
		}
		if !allowed {
			apperrors.WriteNotFound(w, r, "Invitation not found")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}
