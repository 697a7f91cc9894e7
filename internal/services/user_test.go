package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
)

func validSignup(username string) SignupInput {
	return SignupInput{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
		Password1: "correct-horse",
		Password2: "correct-horse",
	}
}

func TestSignupCreatesInactiveParticipantAndSendsActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, validSignup("alice"))
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.IsActive {
		t.Error("new user is active")
	}
	if user.Role != types.RoleParticipant {
		t.Errorf("role = %q, want Participant", user.Role)
	}
	if user.PasswordHash == "correct-horse" || user.PasswordHash == "" {
		t.Error("password not hashed")
	}

	if len(f.notifier.activations) != 1 {
		t.Fatalf("activations sent = %d, want 1", len(f.notifier.activations))
	}
	link := f.notifier.activations[0].link
	prefix := "http://events.test/activate/" + EncodeUID(user.ID) + "/"
	if !strings.HasPrefix(link, prefix) {
		t.Fatalf("link = %q, want prefix %q", link, prefix)
	}
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "taken", types.RoleParticipant)

	tests := []struct {
		name  string
		edit  func(*SignupInput)
		field string
	}{
		{"duplicate username", func(in *SignupInput) { in.Username = "taken" }, "username"},
		{"missing username", func(in *SignupInput) { in.Username = " " }, "username"},
		{"bad username", func(in *SignupInput) { in.Username = "has space" }, "username"},
		{"bad email", func(in *SignupInput) { in.Email = "nope" }, "email"},
		{"long email", func(in *SignupInput) { in.Email = strings.Repeat("a", 64) + "@" + strings.Repeat("b", 190) + ".com" }, "email"},
		{"long first name", func(in *SignupInput) { in.FirstName = strings.Repeat("a", 31) }, "first_name"},
		{"missing last name", func(in *SignupInput) { in.LastName = "" }, "last_name"},
		{"short password", func(in *SignupInput) { in.Password1, in.Password2 = "short", "short" }, "password1"},
		{"mismatched password", func(in *SignupInput) { in.Password2 = "different-one" }, "password2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSignup("newbie")
			tt.edit(&in)
			_, err := f.users.Signup(ctx, in)
			validationField(t, err, tt.field)
		})
	}
	if len(f.notifier.activations) != 0 {
		t.Errorf("activation sent for rejected signup")
	}
}

func TestActivateFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, validSignup("alice"))
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	link := f.notifier.activations[0].link
	parts := strings.Split(strings.TrimPrefix(link, "http://events.test/activate/"), "/")
	uid, token := parts[0], parts[1]

	if _, err := f.users.Authenticate(ctx, "alice", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive login err = %v, want ErrInvalidCredentials", err)
	}

	activated, err := f.users.Activate(ctx, uid, token)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !activated.IsActive || activated.ID != user.ID {
		t.Fatalf("activated = %+v", activated)
	}
	stored, _ := f.db.Users().GetByID(ctx, user.ID)
	if !stored.IsActive || stored.Role != types.RoleParticipant {
		t.Fatalf("stored = %+v", stored)
	}

	if _, err := f.users.Activate(ctx, uid, token); !errors.Is(err, ErrInvalidActivation) {
		t.Fatalf("second activation err = %v, want ErrInvalidActivation", err)
	}

	if _, err := f.users.Authenticate(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("login after activation: %v", err)
	}
}

func TestActivateRejectsUniformly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, validSignup("bob"))
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	token, _ := f.tokens.Issue(user)

	tests := []struct {
		name, uid, token string
	}{
		{"malformed uid", "!!!", token},
		{"unknown user", EncodeUID(9999), token},
		{"tampered token", EncodeUID(user.ID), token + "x"},
		{"token for another uid", EncodeUID(user.ID), mustIssue(t, f, types.User{ID: 9999})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.users.Activate(ctx, tt.uid, tt.token); !errors.Is(err, ErrInvalidActivation) {
				t.Fatalf("err = %v, want ErrInvalidActivation", err)
			}
		})
	}

	stored, _ := f.db.Users().GetByID(ctx, user.ID)
	if stored.IsActive {
		t.Fatal("user activated by a rejected link")
	}
}

func mustIssue(t *testing.T, f *fixture, user types.User) string {
	t.Helper()
	token, err := f.tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, "carol", types.RoleOrganizer)

	if _, err := f.users.Authenticate(ctx, "carol", "password123"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	for _, tc := range [][2]string{{"carol", "wrong"}, {"nobody", "password123"}, {"", ""}} {
		if _, err := f.users.Authenticate(ctx, tc[0], tc[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q) err = %v", tc[0], err)
		}
	}
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.seedUser(t, "erin", types.RoleParticipant)

	updated, err := f.users.ChangeRole(ctx, target.ID, "  organizer ")
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if updated.Role != types.RoleOrganizer {
		t.Errorf("role = %q, want Organizer", updated.Role)
	}

	for _, bad := range []string{"Superuser", "", "Admins"} {
		_, err := f.users.ChangeRole(ctx, target.ID, bad)
		validationField(t, err, "role")
	}
	stored, _ := f.db.Users().GetByID(ctx, target.ID)
	if stored.Role != types.RoleOrganizer {
		t.Errorf("role after rejected changes = %q, want Organizer", stored.Role)
	}

	if _, err := f.users.ChangeRole(ctx, 9999, "Admin"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown target err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "frank", types.RoleParticipant)

	updated, err := f.users.UpdateProfile(ctx, user.ID, ProfileInput{
		Email:       "frank@new.example.com",
		FirstName:   "Frank",
		LastName:    "Ocean",
		PhoneNumber: "+14155550123",
	}, &Upload{Filename: "me.png", Data: pngData})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Email != "frank@new.example.com" || updated.PhoneNumber != "+14155550123" {
		t.Errorf("updated = %+v", updated)
	}
	if !strings.HasPrefix(updated.ProfilePicture, "profile_pictures/") || !f.images.Has(updated.ProfilePicture) {
		t.Errorf("picture %q not stored", updated.ProfilePicture)
	}

	_, err = f.users.UpdateProfile(ctx, user.ID, ProfileInput{
		Email: "frank@new.example.com", FirstName: "Frank", LastName: "Ocean", PhoneNumber: "12-34",
	}, nil)
	validationField(t, err, "phone_number")

	_, err = f.users.UpdateProfile(ctx, user.ID, ProfileInput{
		Email: strings.Repeat("f", 250) + "@x.io", FirstName: "Frank", LastName: "Ocean",
	}, nil)
	validationField(t, err, "email")

	_, err = f.users.UpdateProfile(ctx, user.ID, ProfileInput{
		Email: "frank@new.example.com", FirstName: "Frank", LastName: "Ocean",
	}, &Upload{Filename: "x.png", Data: []byte("not an image at all")})
	validationField(t, err, "profile_picture")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "gina", types.RoleParticipant)

	err := f.users.ChangePassword(ctx, user.ID, "wrong", "new-password", "new-password")
	validationField(t, err, "old_password")

	err = f.users.ChangePassword(ctx, user.ID, "password123", "new-password", "other-password")
	validationField(t, err, "new_password2")

	if err := f.users.ChangePassword(ctx, user.ID, "password123", "new-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.users.Authenticate(ctx, "gina", "new-password"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestCreateUserProvisionsActiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.users.CreateUser(ctx, validSignup("root"), types.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !admin.IsActive || admin.Role != types.RoleAdmin {
		t.Fatalf("admin = %+v", admin)
	}
	if len(f.notifier.activations) != 0 {
		t.Error("activation mail sent for provisioned account")
	}
	if _, err := f.users.Authenticate(ctx, "root", "correct-horse"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	_, err = f.users.CreateUser(ctx, validSignup("other"), types.Role("Superuser"))
	validationField(t, err, "role")
}

func TestStoreConstraintBecomesValidationError(t *testing.T) {
	err := fromStoreError(fmt.Errorf("update: %w", store.ErrConstraint), "update profile", "email", "Enter a valid email address.")
	validationField(t, err, "email")

	boom := errors.New("connection reset")
	if err := fromStoreError(boom, "update profile", "email", "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
