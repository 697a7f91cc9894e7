package handlers

import (
	"errors"
	"net/http"

	"github.com/eventdesk/apiserver/internal/rbac"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UserHandler provides the admin user management endpoints.
type UserHandler struct {
	userService *services.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *services.UserService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers user management routes.
func UserRouter(r chi.Router, handler *UserHandler, guard *Guard) {
	r.Use(guard.RequireAuth)

	r.With(guard.Require(rbac.ManageUsers, "")).Get("/", handler.ListUsers)
	r.With(guard.Require(rbac.ChangeRole, "")).Post("/{userID}/role", handler.ChangeRole)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.userService.List(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.User]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// ChangeRole replaces the target user's role.
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseID(r, "userID")
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	var req ChangeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.ChangeRole(r.Context(), targetID, req.Role)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("change role", zap.Int("target_id", targetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to change role")
		return
	}

	admin, _ := userFromContext(r.Context())
	h.logger.Info("role changed",
		zap.Int("admin_id", admin.ID),
		zap.Int("target_id", updated.ID),
		zap.String("role", string(updated.Role)),
	)
	writeJSON(w, http.StatusOK, updated)
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}
