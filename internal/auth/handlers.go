package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crewbasehq/crewbase/internal/apperrors"
	"github.com/crewbasehq/crewbase/internal/audit"
	"github.com/crewbasehq/crewbase/internal/identity"
	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/crewbasehq/crewbase/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IdPSecretHeader carries the shared secret on identity-provider callbacks.
const IdPSecretHeader = "X-Idp-Secret"

// SignupRequest represents the signup request payload
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SessionResponse is returned whenever a session is established
type SessionResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Verified bool      `json:"verified"`
}

// HandleSignup processes direct email/password registration. If a placeholder
// account already holds the email, the placeholder is upgraded in place so
// memberships attached to it survive.
func HandleSignup(db store.DB, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}
		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		users := identity.NewService(db)

		existing, err := users.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
			log.Error().Err(err).Msg("Failed to look up user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		var user *identity.User
		switch {
		case existing == nil:
			user, err = users.CreateVerified(ctx, email, req.Name, "", passwordHash)
			if err != nil {
				if errors.Is(err, identity.ErrEmailTaken) {
					apperrors.WriteConflict(w, r, "Email address already registered")
					return
				}
				log.Error().Err(err).Msg("Failed to create user")
				apperrors.WriteInternalError(w, r, "Failed to create account")
				return
			}

		case existing.Verified:
			apperrors.WriteConflict(w, r, "Email address already registered")
			return

		default:
			// Placeholder account: verify it, keep its id, attach credentials.
			reconciler := identity.NewReconciler(db)
			user, _, err = reconciler.Resolve(ctx, email, identity.Profile{Name: req.Name})
			if err != nil || user == nil {
				log.Error().Err(err).Msg("Failed to reconcile placeholder on signup")
				apperrors.WriteInternalError(w, r, "Failed to create account")
				return
			}
			if err := users.SetPassword(ctx, user.ID, passwordHash); err != nil {
				log.Error().Err(err).Msg("Failed to set password")
				apperrors.WriteInternalError(w, r, "Failed to create account")
				return
			}
			if err := auditor.Log(ctx, audit.LogParams{
				ActorUserID: &user.ID,
				Action:      audit.EventUserReconciled,
				Meta:        map[string]interface{}{"via": "signup"},
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		if err := auditor.Log(ctx, audit.LogParams{
			ActorUserID: &user.ID,
			Action:      audit.EventUserSignup,
			Meta:        map[string]interface{}{"email": user.Email},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		token, err := CreateToken(user.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("User signed up successfully")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SessionResponse{
			UserID:   user.ID,
			Email:    user.Email,
			Verified: true,
		})
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin processes email/password authentication. Placeholder accounts
// have no credentials and fail with the same generic error as a wrong
// password.
func HandleLogin(db store.DB, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		logFailure := func(reason string) {
			if err := auditor.Log(ctx, audit.LogParams{
				Action: audit.EventLoginFailed,
				Meta:   map[string]interface{}{"email": email, "reason": reason},
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		users := identity.NewService(db)
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				log.Debug().Str("email", email).Msg("Login failed: user not found")
				logFailure("unknown_user")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Msg("Failed to query user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if !user.Verified || !user.PasswordHash.Valid {
			log.Debug().Str("email", email).Msg("Login failed: no credentials on account")
			logFailure("no_credentials")
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		if err := VerifyPassword(user.PasswordHash.String, req.Password); err != nil {
			log.Debug().Str("email", email).Msg("Login failed: wrong password")
			logFailure("wrong_password")
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		token, err := CreateToken(user.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{
			UserID:   user.ID,
			Email:    user.Email,
			Verified: user.Verified,
		})
	}
}

// HandleLogout clears the session cookie
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	userID := GetUserID(r.Context())
	if userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"logged_out": true,
	})
}

// CallbackRequest is the payload posted by the identity provider after a
// successful external authentication.
type CallbackRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// HandleIdPCallback processes an identity-provider callback. Reconciliation
// runs before anything else so a placeholder created by an invitation is
// upgraded instead of shadowed by a second account.
func HandleIdPCallback(db store.DB, auditor *audit.Writer, idpSecret, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		secret := r.Header.Get(IdPSecretHeader)
		if subtle.ConstantTimeCompare([]byte(secret), []byte(idpSecret)) != 1 {
			apperrors.WriteUnauthorized(w, r, "Invalid callback secret")
			return
		}

		var req CallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}

		reconciler := identity.NewReconciler(db)
		user, reconciled, err := reconciler.Resolve(ctx, email, identity.Profile{
			Name:  req.Name,
			Image: req.Image,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to reconcile identity")
			apperrors.WriteInternalError(w, r, "Authentication failed")
			return
		}

		if user == nil {
			users := identity.NewService(db)
			user, err = users.CreateVerified(ctx, email, req.Name, req.Image, "")
			if err != nil {
				log.Error().Err(err).Msg("Failed to create user from callback")
				apperrors.WriteInternalError(w, r, "Authentication failed")
				return
			}
		}

		if reconciled {
			if err := auditor.Log(ctx, audit.LogParams{
				ActorUserID: &user.ID,
				Action:      audit.EventUserReconciled,
				Meta:        map[string]interface{}{"via": "idp_callback"},
			}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		token, err := CreateToken(user.ID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", user.ID.String()).
			Bool("reconciled", reconciled).
			Msg("Identity provider callback processed")

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{
			UserID:   user.ID,
			Email:    user.Email,
			Verified: user.Verified,
		})
	}
}
