// Package storetest provides in-memory repositories with the same
// constraint behaviour as the postgres schema, for use in tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
)

// DB holds every table. Its repositories share one lock.
type DB struct {
	mu         sync.Mutex
	nextID     int
	users      map[int]types.User
	categories map[int]types.Category
	events     map[int]types.Event
	rsvps      map[[2]int]time.Time
}

func New() *DB {
	return &DB{
		users:      make(map[int]types.User),
		categories: make(map[int]types.Category),
		events:     make(map[int]types.Event),
		rsvps:      make(map[[2]int]time.Time),
	}
}

func (db *DB) id() int {
	db.nextID++
	return db.nextID
}

func (db *DB) Users() *Users           { return &Users{db: db} }
func (db *DB) Categories() *Categories { return &Categories{db: db} }
func (db *DB) Events() *Events         { return &Events{db: db} }

// EventCount returns the number of stored events.
func (db *DB) EventCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.events)
}

// RSVPCount returns the number of RSVP rows for the pair.
func (db *DB) RSVPCount(eventID, userID int) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.rsvps[[2]int{eventID, userID}]; ok {
		return 1
	}
	return 0
}

// Users implements the user repository.
type Users struct{ db *DB }

func (r *Users) GetByID(ctx context.Context, id int) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *Users) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *Users) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	all := make([]types.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, offset, limit), len(all), nil
}

func (r *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	if !user.Role.Valid() {
		return types.User{}, store.ErrConstraint
	}
	now := time.Now()
	user.ID = r.db.id()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.ProfilePicture == "" {
		user.ProfilePicture = types.DefaultProfilePicture
	}
	r.db.users[user.ID] = user
	return user, nil
}

func (r *Users) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	current, ok := r.db.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	current.Email = user.Email
	current.FirstName = user.FirstName
	current.LastName = user.LastName
	current.PhoneNumber = user.PhoneNumber
	current.ProfilePicture = user.ProfilePicture
	current.PasswordHash = user.PasswordHash
	current.UpdatedAt = time.Now()
	r.db.users[user.ID] = current
	return current, nil
}

func (r *Users) SetRole(ctx context.Context, id int, role types.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if !role.Valid() {
		return store.ErrConstraint
	}
	u.Role = role
	r.db.users[id] = u
	return nil
}

func (r *Users) Activate(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok || u.IsActive {
		return store.ErrNotFound
	}
	u.IsActive = true
	r.db.users[id] = u
	return nil
}

// Categories implements the category repository.
type Categories struct{ db *DB }

func (r *Categories) List(ctx context.Context) ([]types.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Category, 0, len(r.db.categories))
	for _, c := range r.db.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Categories) Get(ctx context.Context, id int) (types.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.categories[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return c, nil
}

func (r *Categories) Create(ctx context.Context, category types.Category) (types.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.categories {
		if c.Name == category.Name {
			return types.Category{}, store.ErrConflict
		}
	}
	category.ID = r.db.id()
	r.db.categories[category.ID] = category
	return category, nil
}

func (r *Categories) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.categories, id)
	for eid, e := range r.db.events {
		if e.CategoryID == id {
			r.db.deleteEventLocked(eid)
		}
	}
	return nil
}

// Events implements the event repository.
type Events struct{ db *DB }

func (r *Events) Get(ctx context.Context, id int) (types.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return types.Event{}, store.ErrNotFound
	}
	return r.db.joinLocked(e), nil
}

func (r *Events) List(ctx context.Context, filter types.EventFilter, offset, limit int) ([]types.Event, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.Event, 0)
	for _, e := range r.db.events {
		if filter.OrganizerID > 0 && e.OrganizerID != filter.OrganizerID {
			continue
		}
		if filter.RSVPUserID > 0 {
			if _, ok := r.db.rsvps[[2]int{e.ID, filter.RSVPUserID}]; !ok {
				continue
			}
		}
		out = append(out, r.db.joinLocked(e))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := strings.Compare(a.Date+a.Time, b.Date+b.Time); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	if limit <= 0 {
		return out, len(out), nil
	}
	return page(out, offset, limit), len(out), nil
}

func (r *Events) Create(ctx context.Context, event types.Event) (types.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.checkRefsLocked(event); err != nil {
		return types.Event{}, err
	}
	now := time.Now()
	event.ID = r.db.id()
	event.CreatedAt, event.UpdatedAt = now, now
	if event.Image == "" {
		event.Image = types.DefaultEventImage
	}
	r.db.events[event.ID] = event
	return event, nil
}

func (r *Events) Update(ctx context.Context, event types.Event) (types.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	current, ok := r.db.events[event.ID]
	if !ok {
		return types.Event{}, store.ErrNotFound
	}
	if err := r.db.checkRefsLocked(event); err != nil {
		return types.Event{}, err
	}
	event.OrganizerID = current.OrganizerID
	event.CreatedAt = current.CreatedAt
	event.UpdatedAt = time.Now()
	r.db.events[event.ID] = event
	return event, nil
}

func (r *Events) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.events[id]; !ok {
		return store.ErrNotFound
	}
	r.db.deleteEventLocked(id)
	return nil
}

func (r *Events) HasRSVP(ctx context.Context, eventID, userID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.rsvps[[2]int{eventID, userID}]
	return ok, nil
}

func (r *Events) AddRSVP(ctx context.Context, eventID, userID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.events[eventID]; !ok {
		return false, store.ErrInvalidReference
	}
	if _, ok := r.db.users[userID]; !ok {
		return false, store.ErrInvalidReference
	}
	key := [2]int{eventID, userID}
	if _, ok := r.db.rsvps[key]; ok {
		return false, nil
	}
	r.db.rsvps[key] = time.Now()
	return true, nil
}

func (db *DB) checkRefsLocked(e types.Event) error {
	if _, ok := db.categories[e.CategoryID]; !ok {
		return store.ErrInvalidReference
	}
	if _, ok := db.users[e.OrganizerID]; !ok {
		return store.ErrInvalidReference
	}
	return nil
}

func (db *DB) joinLocked(e types.Event) types.Event {
	e.CategoryName = db.categories[e.CategoryID].Name
	e.OrganizerUsername = db.users[e.OrganizerID].Username
	e.RSVPCount = 0
	for key := range db.rsvps {
		if key[0] == e.ID {
			e.RSVPCount++
		}
	}
	return e
}

func (db *DB) deleteEventLocked(id int) {
	delete(db.events, id)
	for key := range db.rsvps {
		if key[0] == id {
			delete(db.rsvps, key)
		}
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
