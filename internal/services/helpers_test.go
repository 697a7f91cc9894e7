package services

import (
	"context"
	"sync"
	"testing"

	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store/storetest"
	"github.com/eventdesk/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type sentActivation struct {
	user types.User
	link string
}

type sentRSVP struct {
	user  types.User
	event types.Event
}

type fakeNotifier struct {
	mu          sync.Mutex
	activations []sentActivation
	rsvps       []sentRSVP
}

func (f *fakeNotifier) Activation(ctx context.Context, user types.User, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, sentActivation{user: user, link: link})
}

func (f *fakeNotifier) RSVPConfirmation(ctx context.Context, user types.User, event types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rsvps = append(f.rsvps, sentRSVP{user: user, event: event})
}

type fixture struct {
	db         *storetest.DB
	notifier   *fakeNotifier
	images     *storage.Memory
	tokens     *ActivationTokens
	users      *UserService
	events     *EventService
	categories *CategoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New()
	notifier := &fakeNotifier{}
	images := storage.NewMemory("test")
	imageStore := storage.NewStorage(images)
	tokens := NewActivationTokens("activation-secret", 0)
	return &fixture{
		db:       db,
		notifier: notifier,
		images:   images,
		tokens:   tokens,
		users: NewUserService(db.Users(), tokens, notifier, imageStore, UserServiceConfig{
			BaseURL:    "http://events.test/",
			BcryptCost: bcrypt.MinCost,
		}),
		events:     NewEventService(db.Events(), db.Categories(), imageStore, notifier, nil),
		categories: NewCategoryService(db.Categories()),
	}
}

// seedUser stores an active user with password "password123".
func (f *fixture) seedUser(t *testing.T, username string, role types.Role) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := f.db.Users().Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    username,
		LastName:     "Test",
		Role:         role,
		IsActive:     true,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func (f *fixture) seedCategory(t *testing.T, name string) types.Category {
	t.Helper()
	c, err := f.db.Categories().Create(context.Background(), types.Category{Name: name})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return c
}

func validationField(t *testing.T, err error, field string) {
	t.Helper()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ValidationError", err, err)
	}
	if _, ok := verr.Fields[field]; !ok {
		t.Fatalf("validation fields = %v, want %q", verr.Fields, field)
	}
}

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
