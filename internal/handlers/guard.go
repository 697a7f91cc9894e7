package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/eventdesk/apiserver/internal/rbac"
	"github.com/eventdesk/apiserver/internal/revoke"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"go.uber.org/zap"
)

const loginPath = "/login"

// UserLookup resolves the subject of a login token.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// EventLookup loads the event an ownership check is evaluated against.
type EventLookup interface {
	Get(ctx context.Context, id int) (types.Event, error)
}

// Guard composes the authentication and authorization checks in front of
// handlers. RequireAuth must run before Require or RequireEvent.
type Guard struct {
	users       UserLookup
	events      EventLookup
	revocations revoke.Store
	secret      []byte
	logger      *zap.Logger
}

func NewGuard(users UserLookup, events EventLookup, revocations revoke.Store, jwtSecret string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		users:       users,
		events:      events,
		revocations: revocations,
		secret:      []byte(jwtSecret),
		logger:      logger,
	}
}

// RequireAuth accepts an unrevoked bearer token for a known, active user and
// stores that user and the token claims in the request context. A failing
// revocation lookup denies the request.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			unauthenticated(w)
			return
		}
		claims, err := parseToken(tokenString, g.secret)
		if err != nil {
			unauthenticated(w)
			return
		}
		userID, err := strconv.Atoi(claims.Subject)
		if err != nil || userID < 1 {
			unauthenticated(w)
			return
		}

		revoked, err := g.revocations.Revoked(r.Context(), claims.ID)
		if err != nil {
			g.logger.Error("check token revocation", zap.Int("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to verify token")
			return
		}
		if revoked {
			unauthenticated(w)
			return
		}

		user, err := g.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				unauthenticated(w)
				return
			}
			g.logger.Error("load session user", zap.Int("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		if !user.IsActive {
			unauthenticated(w)
			return
		}

		ctx := withToken(withUser(r.Context(), user), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require denies the request unless the subject's role allows action.
// A denied request is redirected to landing when it is set, otherwise it
// receives 403.
func (g *Guard) Require(action rbac.Action, landing string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				unauthenticated(w)
				return
			}
			if !rbac.Allowed(user.Role, action, false) {
				g.deny(w, r, user, action, landing)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireEvent loads {eventID} and evaluates action with the ownership fact.
// A missing event never reaches the handler. On success the event is stored
// in the request context.
func (g *Guard) RequireEvent(action rbac.Action, landing string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				unauthenticated(w)
				return
			}
			eventID, ok := parseID(r, "eventID")
			if !ok {
				writeError(w, http.StatusNotFound, "event not found")
				return
			}

			event, err := g.events.Get(r.Context(), eventID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "event not found")
					return
				}
				g.logger.Error("load event", zap.Int("event_id", eventID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to fetch event")
				return
			}

			owns := event.OrganizerID == user.ID
			if !rbac.Allowed(user.Role, action, owns) {
				g.deny(w, r, user, action, landing)
				return
			}
			next.ServeHTTP(w, r.WithContext(withEvent(r.Context(), event)))
		})
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, user types.User, action rbac.Action, landing string) {
	g.logger.Info("access denied",
		zap.Int("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	if landing != "" {
		writeRedirect(w, http.StatusSeeOther, "You do not have permission to perform this action.", landing)
		return
	}
	writeError(w, http.StatusForbidden, "forbidden")
}

func unauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Redirect: loginPath})
}
