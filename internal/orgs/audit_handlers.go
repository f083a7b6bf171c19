package orgs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HandleListAudit handles GET /api/v1/orgs/{org_id}/audit
// Restricted to ADMIN and OWNER.
func HandleListAudit(db store.DB) http.HandlerFunc {
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
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to check membership")
			apperrors.WriteInternalError(w, r, "Failed to list audit events")
			return
		}
		if !role.CanManage() {
			apperrors.WriteForbidden(w, r, "Insufficient permissions")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}

		reader := audit.NewReader(db)
		items, err := reader.ListByOrg(ctx, orgID, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit events")
			apperrors.WriteInternalError(w, r, "Failed to list audit events")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": items,
		})
	}
}
