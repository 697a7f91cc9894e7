package handlers

import (
	"net/http"

	"github.com/eventdesk/apiserver/internal/rbac"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/types"
	"go.uber.org/zap"
)

// DashboardHandler renders the role-scoped landing view.
type DashboardHandler struct {
	eventService    *services.EventService
	categoryService *services.CategoryService
	userService     *services.UserService
	logger          *zap.Logger
}

func NewDashboardHandler(events *services.EventService, categories *services.CategoryService, users *services.UserService, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		eventService:    events,
		categoryService: categories,
		userService:     users,
		logger:          logger,
	}
}

// DashboardResponse lists what the subject works with. Categories are
// included for roles that can create events, users for roles that manage them.
type DashboardResponse struct {
	User       types.User       `json:"user"`
	Events     []types.Event    `json:"events"`
	Categories []types.Category `json:"categories,omitempty"`
	Users      []types.User     `json:"users,omitempty"`
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	ctx := r.Context()

	events, _, err := h.eventService.Visible(ctx, user, services.ScopeDashboard, 0, 0)
	if err != nil {
		h.logger.Error("dashboard events", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	resp := DashboardResponse{User: user, Events: events}

	if rbac.Allowed(user.Role, rbac.CreateEvent, false) {
		resp.Categories, err = h.categoryService.List(ctx)
		if err != nil {
			h.logger.Error("dashboard categories", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load dashboard")
			return
		}
	}
	if rbac.Allowed(user.Role, rbac.ManageUsers, false) {
		resp.Users, _, err = h.userService.List(ctx, 0, maxLimit)
		if err != nil {
			h.logger.Error("dashboard users", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load dashboard")
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
