package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"

	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	SetRole(ctx context.Context, id int, role types.Role) error
	Activate(ctx context.Context, id int) error
}

// Notifications is the fire-and-forget mail surface used by services.
type Notifications interface {
	Activation(ctx context.Context, user types.User, link string)
	RSVPConfirmation(ctx context.Context, user types.User, event types.Event)
}

// ImageStore persists uploaded images.
type ImageStore interface {
	Enabled() bool
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// UserServiceConfig carries the settings UserService needs beyond its collaborators.
type UserServiceConfig struct {
	BaseURL    string
	BcryptCost int
	Logger     *zap.Logger
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo       UserRepository
	tokens     *ActivationTokens
	notifier   Notifications
	images     ImageStore
	baseURL    string
	bcryptCost int
	logger     *zap.Logger
}

func NewUserService(repo UserRepository, tokens *ActivationTokens, notifier Notifications, images ImageStore, cfg UserServiceConfig) *UserService {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:       repo,
		tokens:     tokens,
		notifier:   notifier,
		images:     images,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		bcryptCost: cost,
		logger:     logger,
	}
}

const (
	maxUsernameLen = 150
	maxNameLen     = 30
	maxPhoneLen    = 15
	maxEmailLen    = 254
	minPasswordLen = 8
)

var (
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
	phonePattern    = regexp.MustCompile(`^\+?1?\d{9,15}$`)
)

// SignupInput is the registration form.
type SignupInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password1 string
	Password2 string
}

// ProfileInput is the editable part of a user's profile.
type ProfileInput struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// Signup registers an inactive Participant and mails the activation link.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	user, err := s.register(ctx, in, types.RoleParticipant, false)
	if err != nil {
		return types.User{}, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("issue activation token", zap.Int("user_id", user.ID), zap.Error(err))
		return user, nil
	}
	s.notifier.Activation(ctx, user, s.ActivationLink(user.ID, token))
	return user, nil
}

// CreateUser provisions an already active account with the given role.
// No activation mail is sent.
func (s *UserService) CreateUser(ctx context.Context, in SignupInput, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, invalid("role", fmt.Sprintf("Select a valid choice. %q is not one of the available choices.", role))
	}
	return s.register(ctx, in, role, true)
}

func (s *UserService) register(ctx context.Context, in SignupInput, role types.Role, active bool) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	verr := &ValidationError{}
	switch {
	case in.Username == "":
		verr.Add("username", "This field is required.")
	case len(in.Username) > maxUsernameLen:
		verr.Add("username", fmt.Sprintf("Ensure this value has at most %d characters.", maxUsernameLen))
	case !usernamePattern.MatchString(in.Username):
		verr.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	validateEmail(verr, in.Email)
	validateName(verr, "first_name", in.FirstName)
	validateName(verr, "last_name", in.LastName)
	validateNewPassword(verr, "password", in.Password1, in.Password2)
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return types.User{}, invalid("username", "A user with that username already exists.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.bcryptCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:       in.Username,
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Role:           role,
		IsActive:       active,
		ProfilePicture: types.DefaultProfilePicture,
		PasswordHash:   string(hashed),
	})
	if err != nil {
		return types.User{}, fromStoreError(err, "create user", "username", "A user with that username already exists.")
	}
	return user, nil
}

// ActivationLink builds the absolute URL mailed to a new user.
func (s *UserService) ActivationLink(userID int, token string) string {
	return fmt.Sprintf("%s/activate/%s/%s", s.baseURL, EncodeUID(userID), token)
}

// Activate consumes an activation link. Every rejection is ErrInvalidActivation.
func (s *UserService) Activate(ctx context.Context, uidb64, token string) (types.User, error) {
	id, err := DecodeUID(uidb64)
	if err != nil {
		return types.User{}, ErrInvalidActivation
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidActivation
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.IsActive {
		return types.User{}, ErrInvalidActivation
	}
	if err := s.tokens.Verify(user, token); err != nil {
		return types.User{}, ErrInvalidActivation
	}
	if err := s.repo.Activate(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidActivation
		}
		return types.User{}, fmt.Errorf("activate user: %w", err)
	}
	user.IsActive = true
	return user, nil
}

// Authenticate checks a username and password pair for an active account.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangeRole replaces the target's role with roleName, which must name one
// of the fixed roles. The target is left untouched on any error.
func (s *UserService) ChangeRole(ctx context.Context, targetID int, roleName string) (types.User, error) {
	role, ok := types.ParseRole(roleName)
	if !ok {
		return types.User{}, invalid("role",
			fmt.Sprintf("Select a valid choice. %q is not one of the available choices.", strings.TrimSpace(roleName)))
	}
	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return types.User{}, err
	}
	if err := s.repo.SetRole(ctx, targetID, role); err != nil {
		return types.User{}, fromStoreError(err, "set role", "role", "Select a valid choice.")
	}
	user.Role = role
	return user, nil
}

// UpdateProfile edits the caller's own profile and optionally replaces the picture.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, in ProfileInput, picture *Upload) (types.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	verr := &ValidationError{}
	validateEmail(verr, in.Email)
	validateName(verr, "first_name", in.FirstName)
	validateName(verr, "last_name", in.LastName)
	if in.PhoneNumber != "" && (len(in.PhoneNumber) > maxPhoneLen || !phonePattern.MatchString(in.PhoneNumber)) {
		verr.Add("phone_number", "Phone number must be entered in the format: '+999999999'. Up to 15 digits allowed.")
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	oldPicture := user.ProfilePicture
	if picture != nil {
		key, err := storeImage(ctx, s.images, storage.FolderProfilePictures, "profile_picture", picture)
		if err != nil {
			return types.User{}, err
		}
		user.ProfilePicture = key
	}

	user.Email = in.Email
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	user.PhoneNumber = in.PhoneNumber

	updated, err := s.repo.UpdateProfile(ctx, user)
	if err != nil {
		if picture != nil {
			discardImage(ctx, s.images, s.logger, user.ProfilePicture)
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, err
		}
		return types.User{}, fromStoreError(err, "update profile", "email", "Enter a valid email address.")
	}
	if picture != nil && oldPicture != updated.ProfilePicture {
		discardImage(ctx, s.images, s.logger, oldPicture)
	}
	return updated, nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID int, oldPassword, new1, new2 string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	verr := &ValidationError{}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		verr.Add("old_password", "Your old password was entered incorrectly. Please enter it again.")
	}
	validateNewPassword(verr, "new_password", new1, new2)
	if err := verr.Err(); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(new1), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hashed)
	if _, err := s.repo.UpdateProfile(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// OpenProfilePicture streams the user's stored picture.
func (s *UserService) OpenProfilePicture(ctx context.Context, user types.User) (io.ReadCloser, string, error) {
	return openImage(ctx, s.images, user.ProfilePicture)
}

func validateEmail(verr *ValidationError, email string) {
	if email == "" {
		verr.Add("email", "This field is required.")
		return
	}
	if len([]rune(email)) > maxEmailLen {
		verr.Add("email", fmt.Sprintf("Ensure this value has at most %d characters.", maxEmailLen))
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		verr.Add("email", "Enter a valid email address.")
	}
}

func validateName(verr *ValidationError, field, value string) {
	if value == "" {
		verr.Add(field, "This field is required.")
		return
	}
	if len([]rune(value)) > maxNameLen {
		verr.Add(field, fmt.Sprintf("Ensure this value has at most %d characters.", maxNameLen))
	}
}

func validateNewPassword(verr *ValidationError, field, p1, p2 string) {
	switch {
	case p1 == "":
		verr.Add(field+"1", "This field is required.")
	case len(p1) < minPasswordLen:
		verr.Add(field+"1", fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLen))
	case len(p1) > 72:
		verr.Add(field+"1", "This password is too long.")
	}
	if p1 != p2 {
		verr.Add(field+"2", "The two password fields didn't match.")
	}
}

// storeImage validates an upload and writes it under folder.
func storeImage(ctx context.Context, images ImageStore, folder, field string, upload *Upload) (string, error) {
	if images == nil || !images.Enabled() {
		return "", invalid(field, "image uploads are disabled")
	}
	if len(upload.Data) == 0 {
		return "", invalid(field, "The submitted file is empty.")
	}
	contentType, ext, ok := storage.DetectImage(upload.Data)
	if !ok {
		return "", invalid(field, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	key := storage.NewImageKey(folder, ext)
	if err := images.Put(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// discardImage removes a replaced or orphaned image. Placeholders are kept.
func discardImage(ctx context.Context, images ImageStore, logger *zap.Logger, key string) {
	if images == nil || !images.Enabled() || key == "" || storage.IsDefaultImage(key) {
		return
	}
	if err := images.Delete(ctx, key); err != nil {
		logger.Warn("delete image", zap.String("key", key), zap.Error(err))
	}
}

func openImage(ctx context.Context, images ImageStore, key string) (io.ReadCloser, string, error) {
	if images == nil || !images.Enabled() || key == "" {
		return nil, "", store.ErrNotFound
	}
	rc, err := images.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrDisabled) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", err
	}
	return rc, storage.ContentTypeForKey(key), nil
}
