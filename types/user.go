package types

import (
	"strings"
	"time"
)

// Role is the single authorization level held by a user.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleOrganizer   Role = "Organizer"
	RoleParticipant Role = "Participant"
)

// Roles lists every assignable role.
var Roles = []Role{RoleAdmin, RoleOrganizer, RoleParticipant}

// ParseRole matches name against the fixed role enumeration, ignoring case
// and surrounding whitespace. It reports false for anything else.
func ParseRole(name string) (Role, bool) {
	name = strings.TrimSpace(name)
	for _, role := range Roles {
		if strings.EqualFold(name, string(role)) {
			return role, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultProfilePicture is the object key assigned to new accounts.
const DefaultProfilePicture = "profile_pictures/default.jpg"

// User represents an account in the system.
// It contains identity, activation state, role, and profile metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the address activation and RSVP mail is sent to.
	Email string `json:"email" db:"email"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Role is the user's authorization level. New accounts are Participants.
	Role Role `json:"role" db:"role"`

	// IsActive is false until the emailed activation link is confirmed.
	IsActive bool `json:"is_active" db:"is_active"`

	// PhoneNumber is optional and stored in international digits form.
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// ProfilePicture is the object storage key of the user's avatar.
	ProfilePicture string `json:"profile_picture" db:"profile_picture"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
