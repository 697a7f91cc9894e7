package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eventdesk/apiserver/internal/notify"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store/storetest"
	"github.com/eventdesk/apiserver/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) kind(kind string) []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Message
	for _, m := range o.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

var activationPath = regexp.MustCompile(`http://events\.test(/activate/\S+)`)

type harness struct {
	t      *testing.T
	db     *storetest.DB
	images *storage.Memory
	outbox *outbox
	router chi.Router
}

func newHarness(t *testing.T, throttle func(http.Handler) http.Handler) *harness {
	t.Helper()
	db := storetest.New()
	images := storage.NewMemory("test")
	imageStore := storage.NewStorage(images)
	box := &outbox{}
	notifier := notify.NewNotifier(box, nil)

	users := services.NewUserService(db.Users(), services.NewActivationTokens("activation-secret", 0), notifier, imageStore,
		services.UserServiceConfig{BaseURL: "http://events.test", BcryptCost: bcrypt.MinCost})
	events := services.NewEventService(db.Events(), db.Categories(), imageStore, notifier, nil)
	categories := services.NewCategoryService(db.Categories())

	router := chi.NewRouter()
	Mount(router, API{
		Users:         users,
		Events:        events,
		Categories:    categories,
		JWTSecret:     testSecret,
		TokenTTL:      time.Hour,
		MaxImageBytes: 1 << 20,
		Throttle:      throttle,
	})

	return &harness{t: t, db: db, images: images, outbox: box, router: router}
}

// seed stores a user with password "password123".
func (h *harness) seed(username string, role types.Role, active bool) types.User {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		h.t.Fatalf("hash: %v", err)
	}
	user, err := h.db.Users().Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    username,
		LastName:     "Test",
		Role:         role,
		IsActive:     active,
		PasswordHash: string(hash),
	})
	if err != nil {
		h.t.Fatalf("seed %s: %v", username, err)
	}
	return user
}

func (h *harness) category(name string) types.Category {
	h.t.Helper()
	c, err := h.db.Categories().Create(context.Background(), types.Category{Name: name})
	if err != nil {
		h.t.Fatalf("seed category: %v", err)
	}
	return c
}

func (h *harness) token(user types.User) string {
	h.t.Helper()
	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return token
}

func (h *harness) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return h.do(method, path, token, body, "application/json")
}

func (h *harness) doForm(method, path, token string, fields map[string]string, fileField string, file []byte) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if file != nil {
		part, err := writer.CreateFormFile(fileField, "upload.png")
		if err != nil {
			h.t.Fatalf("form file: %v", err)
		}
		_, _ = part.Write(file)
	}
	if err := writer.Close(); err != nil {
		h.t.Fatalf("close form: %v", err)
	}
	return h.do(method, path, token, &buf, writer.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, strings.TrimSpace(rec.Body.String()))
	}
}

func eventFields(categoryID int, title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "Talks and pizza",
		"date":        "2026-11-20",
		"time":        "18:30",
		"location":    "Room 101",
		"category":    strconv.Itoa(categoryID),
	}
}

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
