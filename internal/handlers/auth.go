package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventdesk/apiserver/internal/revoke"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler provides signup, activation, JWT login and logout endpoints.
type AuthHandler struct {
	userService *services.UserService
	revocations revoke.Store
	secret      []byte
	tokenTTL    time.Duration
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, revocations revoke.Store, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		userService: userService,
		revocations: revocations,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

// AuthRouter registers the anonymous auth routes behind throttle.
func AuthRouter(r chi.Router, handler *AuthHandler, throttle func(http.Handler) http.Handler) {
	if throttle != nil {
		r = r.With(throttle)
	}
	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Get("/activate/{uidb64}/{token}", handler.Activate)
}

// Signup registers an inactive account and mails its activation link.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := h.userService.Signup(r.Context(), services.SignupInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password1: req.Password1,
		Password2: req.Password2,
	})
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		h.logger.Error("signup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Please check your email to activate your account."})
}

// Activate consumes an emailed activation link.
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Activate(r.Context(), chi.URLParam(r, "uidb64"), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidActivation) {
			writeError(w, http.StatusBadRequest, "Activation link is invalid!")
			return
		}
		h.logger.Error("activate", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to activate account")
		return
	}

	h.logger.Info("account activated", zap.Int("user_id", user.ID))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Your account has been activated. You can now log in."})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout revokes the presented token until it expires. Other tokens of the
// same user stay valid.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := tokenFromContext(r.Context())
	if !ok {
		unauthenticated(w)
		return
	}
	if err := h.revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.logger.Error("logout", zap.String("subject", claims.Subject), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "You have been logged out."})
}

type SignupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseToken verifies signature and expiry and requires a subject and id.
func parseToken(tokenString string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	if claims.ID == "" {
		return nil, errors.New("missing token id")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
