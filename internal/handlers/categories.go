package handlers

import (
	"errors"
	"net/http"

	"github.com/eventdesk/apiserver/internal/rbac"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CategoryHandler provides HTTP handlers for categories.
type CategoryHandler struct {
	categoryService *services.CategoryService
	logger          *zap.Logger
}

func NewCategoryHandler(categoryService *services.CategoryService, logger *zap.Logger) *CategoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryHandler{categoryService: categoryService, logger: logger}
}

// CategoryRouter registers category routes.
func CategoryRouter(r chi.Router, handler *CategoryHandler, guard *Guard) {
	r.Use(guard.RequireAuth)

	r.With(guard.Require(rbac.ViewEvents, "")).Get("/", handler.ListCategories)
	r.With(guard.Require(rbac.CreateCategory, "")).Post("/", handler.CreateCategory)
	r.With(guard.Require(rbac.DeleteCategory, "")).Delete("/{categoryID}", handler.DeleteCategory)
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.categoryService.List(r.Context())
	if err != nil {
		h.logger.Error("list categories", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.categoryService.Create(r.Context(), req.Name)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		h.logger.Error("create category", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "categoryID")
	if !ok {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}

	if err := h.categoryService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		h.logger.Error("delete category", zap.Int("category_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CategoryRequest struct {
	Name string `json:"name"`
}
