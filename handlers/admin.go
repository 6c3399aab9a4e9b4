package handlers

import (
	"errors"
	"guardpost/auth"
	"guardpost/db"
	"guardpost/logging"
	"guardpost/middleware"
	"guardpost/models"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StaffHandler manages staff accounts.
type StaffHandler struct {
	users  db.UserStore
	logger *zap.Logger
}

func NewStaffHandler(users db.UserStore, logger *zap.Logger) *StaffHandler {
	return &StaffHandler{
		users:  users,
		logger: logging.WithComponent(logger, "staff_handler"),
	}
}

type CreateStaffRequest struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN MANAGER GUARD"`
}

type UpdateStaffRequest struct {
	UserID string          `json:"user_id" validate:"required"`
	Name   string          `json:"name,omitempty" validate:"max=100"`
	Role   models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=ADMIN MANAGER GUARD"`
	Active *bool           `json:"active,omitempty"`
}

type ResetPasswordRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ListStaff returns all staff accounts. The optional "role" query parameter
// narrows the list.
func (h *StaffHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := h.users.GetAllUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to get users", zap.Error(err))
		writeError(w, "Failed to retrieve users", http.StatusInternalServerError)
		return
	}

	if role := models.UserRole(r.URL.Query().Get("role")); role != "" {
		filtered := make([]models.User, 0, len(users))
		for _, u := range users {
			if u.Role == role {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// CreateStaff creates an account with an initial password.
func (h *StaffHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	adminUser, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req CreateStaffRequest
	if err := decode(r, w, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := h.users.GetUserByEmail(r.Context(), email)
	if err == nil && existing != nil {
		writeError(w, "Email already exists", http.StatusConflict)
		return
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		h.logger.Error("failed to check email", zap.Error(err))
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	// Hash first so a rejected password never leaves an account without one.
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		UserID:    uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Role:      req.Role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		h.logger.Error("failed to create user", zap.Error(err))
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := h.users.StorePasswordHash(r.Context(), user.UserID, passwordHash); err != nil {
		h.logger.Error("failed to store password", zap.String("user_id", user.UserID), zap.Error(err))
		writeError(w, "Failed to store password", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user created",
		zap.String("by", adminUser.UserID),
		zap.String("user_id", user.UserID),
		zap.String("role", string(user.Role)))

	writeJSON(w, http.StatusCreated, user)
}

// UpdateStaff changes name, role or active status. Accounts are deactivated
// rather than deleted so their shifts and activity keep a valid owner.
func (h *StaffHandler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	adminUser, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req UpdateStaffRequest
	if err := decode(r, w, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == adminUser.UserID && req.Active != nil && !*req.Active {
		writeError(w, "Cannot deactivate your own account", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, "User not found", http.StatusNotFound)
		return
	}

	if req.Name != "" {
		user.Name = strings.TrimSpace(req.Name)
	}
	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := h.users.UpdateUser(r.Context(), user); err != nil {
		h.logger.Error("failed to update user", zap.String("user_id", user.UserID), zap.Error(err))
		writeError(w, "Failed to update user", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user updated", zap.String("by", adminUser.UserID), zap.String("user_id", user.UserID))

	writeJSON(w, http.StatusOK, user)
}

// ResetPassword sets a new password. Managers may only reset guard accounts.
func (h *StaffHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req ResetPasswordRequest
	if err := decode(r, w, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := h.users.GetUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, "User not found", http.StatusNotFound)
		return
	}
	if caller.Role != models.RoleAdmin && target.Role != models.RoleGuard {
		writeError(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	passwordHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.users.StorePasswordHash(r.Context(), target.UserID, passwordHash); err != nil {
		h.logger.Error("failed to store password", zap.String("user_id", target.UserID), zap.Error(err))
		writeError(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	h.logger.Info("password reset", zap.String("by", caller.UserID), zap.String("user_id", target.UserID))

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
