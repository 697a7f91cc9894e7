package types

import "time"

// DefaultEventImage is the object key used when an event has no uploaded image.
const DefaultEventImage = "event_images/default.jpg"

// Category groups events. Names are unique.
type Category struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Event represents a scheduled gathering owned by its organizer.
type Event struct {
	// ID is the unique identifier of the event.
	ID int `json:"id" db:"id"`

	// Title is the short human-readable name of the event.
	Title string `json:"title" db:"title"`

	// Description is the long-form text shown on the event page.
	Description string `json:"description" db:"description"`

	// Date is the calendar day of the event, formatted YYYY-MM-DD.
	Date string `json:"date" db:"event_date"`

	// Time is the local start time of the event, formatted HH:MM.
	Time string `json:"time" db:"event_time"`

	// Location is where the event takes place.
	Location string `json:"location" db:"location"`

	// CategoryID references the category the event belongs to.
	CategoryID int `json:"category_id" db:"category_id"`

	// CategoryName is resolved from CategoryID on reads.
	CategoryName string `json:"category_name,omitempty" db:"-"`

	// OrganizerID references the user who created the event.
	// It is set once at creation and never changes.
	OrganizerID int `json:"organizer_id" db:"organizer_id"`

	// OrganizerUsername is resolved from OrganizerID on reads.
	OrganizerUsername string `json:"organizer_username,omitempty" db:"-"`

	// Image is the object storage key of the event banner.
	Image string `json:"image" db:"image"`

	// RSVPCount is the number of users who declared attendance.
	RSVPCount int `json:"rsvp_count" db:"-"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the event.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EventFilter narrows an event listing. Zero values mean "no restriction".
type EventFilter struct {
	OrganizerID int
	RSVPUserID  int
}
