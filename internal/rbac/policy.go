// Package rbac decides whether a role may perform an action.
package rbac

import "github.com/eventdesk/apiserver/types"

// Action identifies a gated operation.
type Action string

const (
	ViewEvents     Action = "view_events"
	CreateEvent    Action = "create_event"
	EditEvent      Action = "edit_event"
	DeleteEvent    Action = "delete_event"
	CreateCategory Action = "create_category"
	DeleteCategory Action = "delete_category"
	ManageUsers    Action = "manage_users"
	ChangeRole     Action = "change_role"
	RSVP           Action = "rsvp"
)

// Actions lists every known action.
var Actions = []Action{
	ViewEvents, CreateEvent, EditEvent, DeleteEvent,
	CreateCategory, DeleteCategory, ManageUsers, ChangeRole, RSVP,
}

// Decision is the outcome of a policy check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// rank orders roles so that higher ranks inherit every lower capability.
// Unknown roles rank zero and are denied everything.
func rank(role types.Role) int {
	switch role {
	case types.RoleParticipant:
		return 1
	case types.RoleOrganizer:
		return 2
	case types.RoleAdmin:
		return 3
	}
	return 0
}

// Decide returns Allow when role may perform action. ownsResource is only
// consulted for EditEvent and DeleteEvent and must be true when the subject
// is the event's organizer.
func Decide(role types.Role, action Action, ownsResource bool) Decision {
	r := rank(role)
	if r == 0 {
		return Deny
	}

	switch action {
	case ViewEvents, RSVP:
		return allowIf(r >= rank(types.RoleParticipant))
	case CreateEvent:
		return allowIf(r >= rank(types.RoleOrganizer))
	case EditEvent, DeleteEvent:
		if r >= rank(types.RoleAdmin) {
			return Allow
		}
		return allowIf(r >= rank(types.RoleOrganizer) && ownsResource)
	case CreateCategory, DeleteCategory, ManageUsers, ChangeRole:
		return allowIf(r >= rank(types.RoleAdmin))
	}
	return Deny
}

// Allowed is Decide reduced to a bool.
func Allowed(role types.Role, action Action, ownsResource bool) bool {
	return Decide(role, action, ownsResource) == Allow
}

func allowIf(ok bool) Decision {
	if ok {
		return Allow
	}
	return Deny
}
