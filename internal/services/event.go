package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"go.uber.org/zap"
)

// EventRepository defines persistence operations for events and RSVPs.
type EventRepository interface {
	Get(ctx context.Context, id int) (types.Event, error)
	List(ctx context.Context, filter types.EventFilter, offset, limit int) ([]types.Event, int, error)
	Create(ctx context.Context, event types.Event) (types.Event, error)
	Update(ctx context.Context, event types.Event) (types.Event, error)
	Delete(ctx context.Context, id int) error
	HasRSVP(ctx context.Context, eventID, userID int) (bool, error)
	AddRSVP(ctx context.Context, eventID, userID int) (bool, error)
}

// Scope selects which events Visible returns.
type Scope string

const (
	// ScopeAll lists every event.
	ScopeAll Scope = "all"
	// ScopeDashboard lists the events relevant to the subject's role:
	// everything for Admins, their own for Organizers, RSVPs for Participants.
	ScopeDashboard Scope = "dashboard"
)

// EventInput is the event form. Category is the raw category id.
type EventInput struct {
	Title       string
	Description string
	Date        string
	Time        string
	Location    string
	Category    string
}

// EventService encapsulates event and RSVP use-cases.
type EventService struct {
	events     EventRepository
	categories CategoryRepository
	images     ImageStore
	notifier   Notifications
	logger     *zap.Logger
}

func NewEventService(events EventRepository, categories CategoryRepository, images ImageStore, notifier Notifications, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		events:     events,
		categories: categories,
		images:     images,
		notifier:   notifier,
		logger:     logger,
	}
}

const (
	maxTitleLen    = 200
	maxLocationLen = 200
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
)

func (s *EventService) Get(ctx context.Context, id int) (types.Event, error) {
	return s.events.Get(ctx, id)
}

// Visible is the single listing operation behind both the event list and the
// dashboard. A non-positive limit returns every match.
func (s *EventService) Visible(ctx context.Context, subject types.User, scope Scope, offset, limit int) ([]types.Event, int, error) {
	var filter types.EventFilter
	switch scope {
	case ScopeAll:
	case ScopeDashboard:
		switch subject.Role {
		case types.RoleAdmin:
		case types.RoleOrganizer:
			filter.OrganizerID = subject.ID
		default:
			filter.RSVPUserID = subject.ID
		}
	default:
		return nil, 0, fmt.Errorf("unknown scope %q", scope)
	}
	if limit > 100 {
		limit = 100
	}
	return s.events.List(ctx, filter, offset, limit)
}

// Create stores a new event owned by organizer.
func (s *EventService) Create(ctx context.Context, organizer types.User, in EventInput, image *Upload) (types.Event, error) {
	event, err := s.validate(ctx, in)
	if err != nil {
		return types.Event{}, err
	}
	event.OrganizerID = organizer.ID
	event.Image = types.DefaultEventImage

	if image != nil {
		key, err := storeImage(ctx, s.images, storage.FolderEventImages, "image", image)
		if err != nil {
			return types.Event{}, err
		}
		event.Image = key
	}

	created, err := s.events.Create(ctx, event)
	if err != nil {
		if image != nil {
			discardImage(ctx, s.images, s.logger, event.Image)
		}
		return types.Event{}, fromStoreError(err, "create event", "category", "Select a valid choice. That choice is not one of the available choices.")
	}
	return s.reload(ctx, created)
}

// Update applies the form to an existing event. The organizer never changes.
func (s *EventService) Update(ctx context.Context, existing types.Event, in EventInput, image *Upload) (types.Event, error) {
	event, err := s.validate(ctx, in)
	if err != nil {
		return types.Event{}, err
	}
	event.ID = existing.ID
	event.OrganizerID = existing.OrganizerID
	event.Image = existing.Image
	event.CreatedAt = existing.CreatedAt

	if image != nil {
		key, err := storeImage(ctx, s.images, storage.FolderEventImages, "image", image)
		if err != nil {
			return types.Event{}, err
		}
		event.Image = key
	}

	updated, err := s.events.Update(ctx, event)
	if err != nil {
		if image != nil {
			discardImage(ctx, s.images, s.logger, event.Image)
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.Event{}, err
		}
		return types.Event{}, fromStoreError(err, "update event", "category", "Select a valid choice. That choice is not one of the available choices.")
	}
	if image != nil && existing.Image != updated.Image {
		discardImage(ctx, s.images, s.logger, existing.Image)
	}
	return s.reload(ctx, updated)
}

// Delete removes the event, its RSVPs and its uploaded image.
func (s *EventService) Delete(ctx context.Context, event types.Event) error {
	if err := s.events.Delete(ctx, event.ID); err != nil {
		return err
	}
	discardImage(ctx, s.images, s.logger, event.Image)
	return nil
}

// RSVP records that user will attend event. It reports false without error
// when the user had already RSVP'd. A confirmation mail follows a new RSVP.
func (s *EventService) RSVP(ctx context.Context, user types.User, event types.Event) (bool, error) {
	exists, err := s.events.HasRSVP(ctx, event.ID, user.ID)
	if err != nil {
		return false, fmt.Errorf("check rsvp: %w", err)
	}
	if exists {
		return false, nil
	}
	added, err := s.events.AddRSVP(ctx, event.ID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("add rsvp: %w", err)
	}
	if added {
		s.notifier.RSVPConfirmation(ctx, user, event)
	}
	return added, nil
}

// OpenImage streams the event's stored image.
func (s *EventService) OpenImage(ctx context.Context, event types.Event) (io.ReadCloser, string, error) {
	return openImage(ctx, s.images, event.Image)
}

func (s *EventService) validate(ctx context.Context, in EventInput) (types.Event, error) {
	event := types.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
	}

	verr := &ValidationError{}
	requireText(verr, "title", event.Title, maxTitleLen)
	requireText(verr, "description", event.Description, 0)
	requireText(verr, "location", event.Location, maxLocationLen)

	if date, err := time.Parse(dateLayout, strings.TrimSpace(in.Date)); err != nil {
		verr.Add("date", "Enter a valid date.")
	} else {
		event.Date = date.Format(dateLayout)
	}
	if t, ok := parseClock(in.Time); !ok {
		verr.Add("time", "Enter a valid time.")
	} else {
		event.Time = t
	}

	categoryID, err := strconv.Atoi(strings.TrimSpace(in.Category))
	if err != nil || categoryID < 1 {
		verr.Add("category", "Select a valid choice. That choice is not one of the available choices.")
	}
	if err := verr.Err(); err != nil {
		return types.Event{}, err
	}

	category, err := s.categories.Get(ctx, categoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Event{}, invalid("category", "Select a valid choice. That choice is not one of the available choices.")
		}
		return types.Event{}, fmt.Errorf("load category: %w", err)
	}
	event.CategoryID = category.ID
	event.CategoryName = category.Name
	return event, nil
}

// reload fetches the joined view of a saved event. The saved value is
// returned if the read fails so a completed write is never reported as failed.
func (s *EventService) reload(ctx context.Context, saved types.Event) (types.Event, error) {
	event, err := s.events.Get(ctx, saved.ID)
	if err != nil {
		s.logger.Warn("reload event", zap.Int("event_id", saved.ID), zap.Error(err))
		return saved, nil
	}
	return event, nil
}

func requireText(verr *ValidationError, field, value string, max int) {
	if value == "" {
		verr.Add(field, "This field is required.")
		return
	}
	if max > 0 && len([]rune(value)) > max {
		verr.Add(field, fmt.Sprintf("Ensure this value has at most %d characters.", max))
	}
}

// parseClock accepts HH:MM or HH:MM:SS and normalises to HH:MM.
func parseClock(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{timeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(timeLayout), true
		}
	}
	return "", false
}
