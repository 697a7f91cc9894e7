package handlers

import (
	"errors"
	"net/http"

	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const formFieldProfilePicture = "profile_picture"

// ProfileHandler serves the authenticated user's own account.
type ProfileHandler struct {
	userService   *services.UserService
	maxImageBytes int64
	logger        *zap.Logger
}

func NewProfileHandler(userService *services.UserService, maxImageBytes int64, logger *zap.Logger) *ProfileHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{userService: userService, maxImageBytes: maxImageBytes, logger: logger}
}

// ProfileRouter registers profile routes. Only authentication is required.
func ProfileRouter(r chi.Router, handler *ProfileHandler, guard *Guard) {
	r.Use(guard.RequireAuth)

	r.Get("/", handler.GetProfile)
	r.Put("/", handler.UpdateProfile)
	r.Post("/password", handler.ChangePassword)
	r.Get("/picture", handler.GetPicture)
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+maxMultipartMemory)
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	picture, err := formFile(r, formFieldProfilePicture, h.maxImageBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, services.ProfileInput{
		Email:       r.FormValue("email"),
		FirstName:   r.FormValue("first_name"),
		LastName:    r.FormValue("last_name"),
		PhoneNumber: r.FormValue("phone_number"),
	}, picture)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		h.logger.Error("update profile", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.userService.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword1, req.NewPassword2)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		h.logger.Error("change password", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to change password")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Your password was successfully updated!"})
}

func (h *ProfileHandler) GetPicture(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	rc, contentType, err := h.userService.OpenProfilePicture(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "picture not found")
			return
		}
		h.logger.Error("open profile picture", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch picture")
		return
	}
	streamImage(w, rc, contentType)
}

type ChangePasswordRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword1 string `json:"new_password1"`
	NewPassword2 string `json:"new_password2"`
}
