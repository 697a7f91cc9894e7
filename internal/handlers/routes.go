package handlers

import (
	"net/http"
	"time"

	"github.com/eventdesk/apiserver/internal/revoke"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// API bundles what the HTTP surface needs.
type API struct {
	Users         *services.UserService
	Events        *services.EventService
	Categories    *services.CategoryService
	JWTSecret     string
	TokenTTL      time.Duration
	MaxImageBytes int64
	// Throttle wraps the anonymous auth routes. Nil disables throttling.
	Throttle func(http.Handler) http.Handler
	// Revocations holds logged-out token ids. Nil uses an in-process store.
	Revocations revoke.Store
	Logger      *zap.Logger
}

// Mount registers every application route on r.
func Mount(r chi.Router, api API) {
	logger := api.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	revocations := api.Revocations
	if revocations == nil {
		revocations = revoke.NewMemory()
	}
	guard := NewGuard(api.Users, api.Events, revocations, api.JWTSecret, logger)

	auth := NewAuthHandler(api.Users, revocations, api.JWTSecret, api.TokenTTL, logger)
	AuthRouter(r, auth, api.Throttle)
	r.With(guard.RequireAuth).Post("/logout", auth.Logout)

	dashboard := NewDashboardHandler(api.Events, api.Categories, api.Users, logger)
	r.With(guard.RequireAuth).Get(dashboardPath, dashboard.Dashboard)

	r.Route("/events", func(r chi.Router) {
		EventRouter(r, NewEventHandler(api.Events, api.MaxImageBytes, logger), guard)
	})
	r.Route("/categories", func(r chi.Router) {
		CategoryRouter(r, NewCategoryHandler(api.Categories, logger), guard)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(api.Users, logger), guard)
	})
	r.Route("/profile", func(r chi.Router) {
		ProfileRouter(r, NewProfileHandler(api.Users, api.MaxImageBytes, logger), guard)
	})
}
