package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventdesk/apiserver/types"
)

// EventRepository handles persistence for events and their RSVPs.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventSelect = `
		SELECT e.id, e.title, e.description,
			to_char(e.event_date, 'YYYY-MM-DD'), to_char(e.event_time, 'HH24:MI'),
			e.location, e.category_id, c.name, e.organizer_id, u.username, e.image,
			(SELECT COUNT(1) FROM event_rsvps r WHERE r.event_id = e.id),
			e.created_at, e.updated_at
		FROM events e
		JOIN categories c ON c.id = e.category_id
		JOIN users u ON u.id = e.organizer_id`

func scanEvent(row rowScanner) (types.Event, error) {
	var event types.Event
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.Date,
		&event.Time,
		&event.Location,
		&event.CategoryID,
		&event.CategoryName,
		&event.OrganizerID,
		&event.OrganizerUsername,
		&event.Image,
		&event.RSVPCount,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	return event, err
}

func (r *EventRepository) Get(ctx context.Context, id int) (types.Event, error) {
	query := eventSelect + ` WHERE e.id = $1`
	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Event{}, ErrNotFound
		}
		return types.Event{}, err
	}
	return event, nil
}

// List returns events matching filter ordered by date and time, and the total
// number of matches. A non-positive limit returns every match.
func (r *EventRepository) List(ctx context.Context, filter types.EventFilter, offset, limit int) ([]types.Event, int, error) {
	if offset < 0 {
		offset = 0
	}

	var (
		clauses []string
		args    []any
	)
	if filter.OrganizerID > 0 {
		args = append(args, filter.OrganizerID)
		clauses = append(clauses, fmt.Sprintf("e.organizer_id = $%d", len(args)))
	}
	if filter.RSVPUserID > 0 {
		args = append(args, filter.RSVPUserID)
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM event_rsvps x WHERE x.event_id = e.id AND x.user_id = $%d)", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(1) FROM events e` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := eventSelect + where + ` ORDER BY e.event_date, e.event_time, e.id`
	if limit > 0 {
		args = append(args, offset, limit)
		query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)-1, len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]types.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *EventRepository) Create(ctx context.Context, event types.Event) (types.Event, error) {
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.Image == "" {
		event.Image = types.DefaultEventImage
	}

	const query = `
		INSERT INTO events (title, description, event_date, event_time, location,
			category_id, organizer_id, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		event.Title,
		event.Description,
		event.Date,
		event.Time,
		event.Location,
		event.CategoryID,
		event.OrganizerID,
		event.Image,
		event.CreatedAt,
		event.UpdatedAt,
	).Scan(&event.ID); err != nil {
		return types.Event{}, mapError(err)
	}
	return event, nil
}

// Update writes the editable columns. organizer_id is never changed.
func (r *EventRepository) Update(ctx context.Context, event types.Event) (types.Event, error) {
	event.UpdatedAt = time.Now()

	const query = `
		UPDATE events
		SET title = $1,
			description = $2,
			event_date = $3,
			event_time = $4,
			location = $5,
			category_id = $6,
			image = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		event.Title,
		event.Description,
		event.Date,
		event.Time,
		event.Location,
		event.CategoryID,
		event.Image,
		event.UpdatedAt,
		event.ID,
	)
	if err != nil {
		return types.Event{}, mapError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Event{}, err
	}
	return event, nil
}

// Delete removes the event. Its RSVPs are removed by the foreign key cascade.
func (r *EventRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM events WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *EventRepository) HasRSVP(ctx context.Context, eventID, userID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM event_rsvps WHERE event_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, eventID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AddRSVP records attendance. It reports false when the pair already existed.
func (r *EventRepository) AddRSVP(ctx context.Context, eventID, userID int) (bool, error) {
	const query = `
		INSERT INTO event_rsvps (event_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, eventID, userID, time.Now())
	if err != nil {
		return false, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
