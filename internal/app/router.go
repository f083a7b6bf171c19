package app

import (
	"net/http"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/auth"
	"github.com/crewbasehq/crewbase/internal/config"
	"github.com/crewbasehq/crewbase/internal/invites"
	"github.com/crewbasehq/crewbase/internal/mailer"
	"github.com/crewbasehq/crewbase/internal/orgs"
	"github.com/crewbasehq/crewbase/internal/projects"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(db store.DB, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware(cfg.JWTSecret))

	auditor := audit.NewWriter(db)
	mail := mailer.NewClient(cfg.MailerURL, cfg.MailerToken, cfg.MailerTimeoutMS)

	// Health checks (no authentication)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(db))

	// Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		r.With(LoginRateLimitMiddleware()).Post("/signup", auth.HandleSignup(db, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(db, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(auth.RequireAuth).Post("/logout", auth.HandleLogout)

		// Identity-provider callback, authenticated by shared secret
		// instead of a session.
		r.Post("/callback", auth.HandleIdPCallback(db, auditor, cfg.IdPSecret, cfg.JWTSecret, cfg.SessionDays, isProduction))
	})

	// Organizations
	r.Route("/api/v1/orgs", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)
		r.Use(APIRateLimitMiddleware(cfg.RateLimitRPM))

		r.Post("/", orgs.HandleCreate(db, auditor))
		r.Get("/", orgs.HandleList(db))
		r.Get("/{org_id}", orgs.HandleGet(db))
		r.Delete("/{org_id}", orgs.HandleDelete(db, auditor))

		r.Get("/{org_id}/members", orgs.HandleListMembers(db))
		r.Put("/{org_id}/members/{user_id}", orgs.HandleUpdateMemberRole(db, auditor))
		r.Delete("/{org_id}/members/{user_id}", orgs.HandleRemoveMember(db, auditor))

		r.Get("/{org_id}/audit", orgs.HandleListAudit(db))

		r.Post("/{org_id}/invitations", invites.HandleCreate(db, auditor, mail, cfg.InviteTTLDays, cfg.BaseURL))
		r.Get("/{org_id}/invitations", invites.HandleListPending(db, cfg.InviteTTLDays))

		r.Post("/{org_id}/projects", projects.HandleCreate(db, auditor))
		r.Get("/{org_id}/projects", projects.HandleList(db))
	})

	// Invitations addressed directly
	r.Route("/api/v1/invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)
		r.Use(APIRateLimitMiddleware(cfg.RateLimitRPM))

		r.Get("/{invitation_id}", invites.HandleGet(db, cfg.InviteTTLDays))
		r.Post("/{invitation_id}/accept", invites.HandleAccept(db, auditor, cfg.InviteTTLDays))
		r.Post("/{invitation_id}/dismiss", invites.HandleDismiss(db, auditor, cfg.InviteTTLDays))
	})

	// Projects
	r.Route("/api/v1/projects", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)
		r.Use(APIRateLimitMiddleware(cfg.RateLimitRPM))

		r.Get("/{project_id}", projects.HandleGet(db))
		r.Get("/{project_id}/access", projects.HandleEffectiveRole(db))

		r.Get("/{project_id}/permissions", projects.HandleListPermissions(db))
		r.Put("/{project_id}/permissions", projects.HandleGrantPermission(db, auditor))
		r.Delete("/{project_id}/permissions/{user_id}", projects.HandleRevokePermission(db, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(db store.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
