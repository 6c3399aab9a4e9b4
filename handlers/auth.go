package handlers

import (
	"errors"
	"guardpost/activity"
	"guardpost/auth"
	"guardpost/db"
	"guardpost/logging"
	"guardpost/models"
	"guardpost/shift"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const invalidCredentials = "Invalid email or password"

type AuthHandler struct {
	users      db.UserStore
	jwtManager *auth.JWTManager
	recorder   shift.Recorder
	locator    locator
	logger     *zap.Logger
}

func NewAuthHandler(users db.UserStore, jwtManager *auth.JWTManager, recorder shift.Recorder, locations LocationResolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtManager: jwtManager,
		recorder:   recorder,
		locator:    newLocator(locations),
		logger:     logging.WithComponent(logger, "auth"),
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	LocationInput
}

type LoginResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// Login authenticates by email and password. Every attempt, successful or
// not, is recorded with the request's device metadata and location.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := decode(r, w, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	meta := activity.RequestMetaFrom(r)
	loc := h.locator.resolve(r, req.LocationInput)

	failed := func(user *models.User, reason string) {
		ev := activity.Event{
			Meta:     meta,
			Action:   activity.ActionLoginFailed,
			Details:  activity.ActionFailed{Error: reason, Email: email},
			Location: loc,
		}
		if user != nil {
			ev.Actor = user.Identity()
		}
		h.recorder.Record(r.Context(), ev)
	}

	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.logger.Error("failed to look up user", zap.String("email", email), zap.Error(err))
			writeError(w, "Failed to authenticate", http.StatusInternalServerError)
			return
		}
		h.logger.Info("login failed: unknown email", zap.String("email", email))
		failed(nil, "user not found")
		writeError(w, invalidCredentials, http.StatusUnauthorized)
		return
	}

	passwordHash, err := h.users.GetPasswordHash(r.Context(), user.UserID)
	if err != nil {
		h.logger.Info("login failed: password hash not found", zap.String("user_id", user.UserID), zap.Error(err))
		failed(user, "password not set")
		writeError(w, invalidCredentials, http.StatusUnauthorized)
		return
	}

	if err := auth.CheckPassword(req.Password, passwordHash); err != nil {
		h.logger.Info("login failed: invalid password", zap.String("user_id", user.UserID))
		failed(user, "invalid password")
		writeError(w, invalidCredentials, http.StatusUnauthorized)
		return
	}

	if !user.Active {
		failed(user, "account deactivated")
		writeError(w, "Account is deactivated", http.StatusForbidden)
		return
	}

	user.LastLogin = time.Now().UTC()
	if err := h.users.UpdateUser(r.Context(), user); err != nil {
		h.logger.Warn("failed to update last login", zap.String("user_id", user.UserID), zap.Error(err))
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Error("failed to generate token", zap.String("user_id", user.UserID), zap.Error(err))
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user)
	if err != nil {
		h.logger.Error("failed to generate refresh token", zap.String("user_id", user.UserID), zap.Error(err))
		writeError(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	h.recorder.Record(r.Context(), activity.Event{
		Actor:    user.Identity(),
		Meta:     meta,
		Action:   activity.ActionLogin,
		Details:  activity.LoginSucceeded{Email: user.Email},
		Location: loc,
	})
	logging.WithUserID(h.logger, user.UserID).Info("user logged in", zap.String("role", string(user.Role)))

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         user,
	})
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type RefreshTokenResponse struct {
	Token string `json:"token"`
}

// RefreshToken issues a new access token for a valid refresh token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RefreshTokenRequest
	if err := decode(r, w, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken, auth.RefreshToken)
	if err != nil {
		writeError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUser(r.Context(), claims.UserID)
	if err != nil || !user.Active {
		writeError(w, "User not found", http.StatusUnauthorized)
		return
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		h.logger.Error("failed to generate token", zap.String("user_id", user.UserID), zap.Error(err))
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RefreshTokenResponse{
		Token: token,
	})
}

// Logout records the logout. Tokens are stateless and simply discarded by the client.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actor, _, ok := currentActor(r)
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req LocationInput
	if err := decode(r, w, &req, true); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.recorder.Record(r.Context(), activity.Event{
		Actor:    actor.Identity,
		Meta:     actor.Meta,
		Action:   activity.ActionLogout,
		Details:  activity.LoggedOut{},
		Location: h.locator.resolve(r, req),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}
