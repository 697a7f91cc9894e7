package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eventdesk/apiserver/internal/notify"
	"github.com/eventdesk/apiserver/internal/throttle"
	"github.com/eventdesk/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

func signupRequest(username string) SignupRequest {
	return SignupRequest{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Erin",
		LastName:  "Example",
		Password1: "correct-horse",
		Password2: "correct-horse",
	}
}

func TestSignupActivateLogin(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.doJSON(http.MethodPost, "/signup", "", signupRequest("erin"))
	expectStatus(t, rec, http.StatusCreated)
	if msg := decode[MessageResponse](t, rec); msg.Message != "Please check your email to activate your account." {
		t.Fatalf("message = %q", msg.Message)
	}

	user, err := h.db.Users().GetByUsername(context.Background(), "erin")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.IsActive || user.Role != types.RoleParticipant {
		t.Fatalf("new user = %+v", user)
	}

	login := LoginRequest{Username: "erin", Password: "correct-horse"}
	rec = h.doJSON(http.MethodPost, "/login", "", login)
	expectStatus(t, rec, http.StatusUnauthorized)

	mails := h.outbox.kind(notify.KindActivation)
	if len(mails) != 1 || mails[0].To != "erin@example.com" {
		t.Fatalf("activation mails = %+v", mails)
	}
	match := activationPath.FindStringSubmatch(mails[0].Body)
	if match == nil {
		t.Fatalf("no activation link in %q", mails[0].Body)
	}
	link := match[1]

	rec = h.do(http.MethodGet, link, "", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[MessageResponse](t, rec); msg.Message != "Your account has been activated. You can now log in." {
		t.Fatalf("message = %q", msg.Message)
	}

	rec = h.do(http.MethodGet, link, "", nil, "")
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[ErrorResponse](t, rec); resp.Error != "Activation link is invalid!" {
		t.Fatalf("reused link body = %+v", resp)
	}

	rec = h.doJSON(http.MethodPost, "/login", "", login)
	expectStatus(t, rec, http.StatusOK)
	auth := decode[AuthResponse](t, rec)
	if auth.Token == "" || auth.User.Username != "erin" {
		t.Fatalf("login response = %+v", auth)
	}

	rec = h.do(http.MethodGet, "/profile", auth.Token, nil, "")
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("profile leaks password hash: %s", rec.Body.String())
	}
}

func TestActivationFailuresAreUniform(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.doJSON(http.MethodPost, "/signup", "", signupRequest("frank"))
	expectStatus(t, rec, http.StatusCreated)
	link := activationPath.FindStringSubmatch(h.outbox.kind(notify.KindActivation)[0].Body)[1]
	parts := strings.Split(strings.TrimPrefix(link, "/activate/"), "/")
	uid, token := parts[0], parts[1]

	paths := []string{
		"/activate/" + uid + "/" + token[:strings.LastIndex(token, ".")] + ".forged-signature",
		"/activate/" + uid + "/garbage",
		"/activate/%21%21/" + token,
		"/activate/OTk5OQ/" + token,
	}
	for _, path := range paths {
		rec := h.do(http.MethodGet, path, "", nil, "")
		expectStatus(t, rec, http.StatusBadRequest)
		if resp := decode[ErrorResponse](t, rec); resp.Error != "Activation link is invalid!" {
			t.Fatalf("%s: body = %+v", path, resp)
		}
	}

	user, _ := h.db.Users().GetByUsername(context.Background(), "frank")
	if user.IsActive {
		t.Fatal("account activated by an invalid link")
	}
}

func TestSignupValidationErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.seed("taken", types.RoleParticipant, true)

	req := signupRequest("taken")
	req.Password2 = "mismatch-123"
	rec := h.doJSON(http.MethodPost, "/signup", "", req)
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decode[ValidationResponse](t, rec)
	if resp.Error != "validation failed" {
		t.Fatalf("error = %q", resp.Error)
	}
	if _, ok := resp.Fields["password2"]; !ok {
		t.Fatalf("fields = %v, want password2", resp.Fields)
	}

	rec = h.doJSON(http.MethodPost, "/signup", "", signupRequest("taken"))
	expectStatus(t, rec, http.StatusBadRequest)
	if resp := decode[ValidationResponse](t, rec); resp.Fields["username"] == "" {
		t.Fatalf("fields = %v, want username", resp.Fields)
	}

	rec = h.do(http.MethodPost, "/signup", "", strings.NewReader("{"), "application/json")
	expectStatus(t, rec, http.StatusBadRequest)

	if n := len(h.outbox.kind(notify.KindActivation)); n != 0 {
		t.Fatalf("activation mails = %d, want 0", n)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	h := newHarness(t, nil)
	h.seed("bob", types.RoleOrganizer, true)

	rec := h.doJSON(http.MethodPost, "/login", "", LoginRequest{Username: "bob", Password: "nope"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if resp := decode[ErrorResponse](t, rec); resp.Error != "invalid credentials" {
		t.Fatalf("body = %+v", resp)
	}
}

func TestAuthRoutesAreThrottled(t *testing.T) {
	limiter := throttle.NewLocal(0.001, 2, time.Minute)
	h := newHarness(t, throttle.Middleware(limiter, "auth", nil))
	h.seed("bob", types.RoleOrganizer, true)

	login := LoginRequest{Username: "bob", Password: "password123"}
	for i := 0; i < 2; i++ {
		rec := h.doJSON(http.MethodPost, "/login", "", login)
		expectStatus(t, rec, http.StatusOK)
	}
	rec := h.doJSON(http.MethodPost, "/login", "", login)
	expectStatus(t, rec, http.StatusTooManyRequests)

	rec = h.do(http.MethodGet, "/dashboard", "", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestLogoutRevokesOnlyThatToken(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.seed("alice", types.RoleParticipant, true)

	login := func() string {
		rec := h.doJSON(http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: "password123"})
		expectStatus(t, rec, http.StatusOK)
		return decode[AuthResponse](t, rec).Token
	}
	phone, laptop := login(), login()
	if phone == laptop {
		t.Fatal("two logins produced the same token")
	}

	rec := h.do(http.MethodPost, "/logout", phone, nil, "")
	expectStatus(t, rec, http.StatusOK)

	rec = h.do(http.MethodGet, "/dashboard", phone, nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
	rec = h.do(http.MethodPost, "/logout", phone, nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = h.do(http.MethodGet, "/dashboard", laptop, nil, "")
	expectStatus(t, rec, http.StatusOK)
	rec = h.do(http.MethodGet, "/dashboard", h.token(alice), nil, "")
	expectStatus(t, rec, http.StatusOK)
}

func TestTokenWithoutIDIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.seed("alice", types.RoleParticipant, true)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.Itoa(alice.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec := h.do(http.MethodGet, "/dashboard", token, nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
}
