package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrEventNotFound = errors.New("event not found")

type Repository interface {
	StoreEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (Event, error)
	GetEvents(ctx context.Context, userId int, from, to time.Time) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, event Event) (Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recurrence == "" {
		event.Recurrence = RecurrenceNone
	}

	query := `INSERT INTO calendar_events (id, title, description, start_time, end_time, all_day, recurrence, color, owner_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID.String(),
		event.Title,
		event.Description,
		event.StartTime.UnixMilli(),
		nullableMillis(event.EndTime),
		event.AllDay,
		string(event.Recurrence),
		event.Color,
		event.OwnerID,
	)
	if err != nil {
		err := fmt.Errorf("could not store event: %w", err)
		log.Error(err)
		return Event{}, err
	}

	if err := r.replaceParticipants(ctx, event.ID, event.SharedWith); err != nil {
		return Event{}, err
	}

	return event, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, id uuid.UUID) (Event, error) {
	query := `SELECT id, title, description, start_time, end_time, all_day, recurrence, color, owner_id
			  FROM calendar_events WHERE id = $1`
	event, err := r.scanEvent(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		return Event{}, err
	}

	shared, err := r.participants(ctx, event.ID)
	if err != nil {
		return Event{}, err
	}
	event.SharedWith = shared
	return event, nil
}

func (r *RepositoryImpl) GetEvents(ctx context.Context, userId int, from, to time.Time) ([]Event, error) {
	// Events the user owns or is shared into, overlapping the window. Events
	// without an end time are treated as point-in-time for overlap purposes.
	query := `SELECT DISTINCT e.id, e.title, e.description, e.start_time, e.end_time, e.all_day, e.recurrence, e.color, e.owner_id
			  FROM calendar_events e
			  LEFT JOIN event_participants p ON p.event_id = e.id
			  WHERE (e.owner_id = $1 OR p.user_id = $1)
			    AND e.start_time <= $2
			    AND COALESCE(e.end_time, e.start_time) >= $3
			  ORDER BY e.start_time`

	rows, err := r.db.QueryContext(ctx, query, userId, to.UnixMilli(), from.UnixMilli())
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		shared, err := r.participants(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].SharedWith = shared
	}
	return events, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) error {
	query := `UPDATE calendar_events
			  SET title = $1, description = $2, start_time = $3, end_time = $4, all_day = $5, recurrence = $6, color = $7
			  WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query,
		event.Title,
		event.Description,
		event.StartTime.UnixMilli(),
		nullableMillis(event.EndTime),
		event.AllDay,
		string(event.Recurrence),
		event.Color,
		event.ID.String(),
	)
	if err != nil {
		err := fmt.Errorf("could not update event: %w", err)
		log.Error(err)
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrEventNotFound
	}

	return r.replaceParticipants(ctx, event.ID, event.SharedWith)
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM calendar_events WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		err := fmt.Errorf("could not delete event: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) participants(ctx context.Context, eventId uuid.UUID) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM event_participants WHERE event_id = $1 ORDER BY user_id`, eventId.String())
	if err != nil {
		err := fmt.Errorf("could not query event participants: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RepositoryImpl) replaceParticipants(ctx context.Context, eventId uuid.UUID, userIds []int) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id = $1`, eventId.String()); err != nil {
		err := fmt.Errorf("could not clear event participants: %w", err)
		log.Error(err)
		return err
	}
	for _, userId := range userIds {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)`, eventId.String(), userId); err != nil {
			err := fmt.Errorf("could not store event participant: %w", err)
			log.Error(err)
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RepositoryImpl) scanEvent(row rowScanner) (Event, error) {
	var (
		idStr       string
		startMillis int64
		endMillis   sql.NullInt64
		recurrence  string
		event       Event
	)
	err := row.Scan(&idStr, &event.Title, &event.Description, &startMillis, &endMillis,
		&event.AllDay, &recurrence, &event.Color, &event.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	} else if err != nil {
		err := fmt.Errorf("could not scan event row: %w", err)
		log.Error(err)
		return Event{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Event{}, fmt.Errorf("invalid event id %q: %w", idStr, err)
	}
	event.ID = id
	event.StartTime = time.UnixMilli(startMillis)
	if endMillis.Valid {
		end := time.UnixMilli(endMillis.Int64)
		event.EndTime = &end
	}
	if event.AllDay {
		// All-day boundaries are UTC midnights. time.UnixMilli returns local
		// time, which would move the calendar date in zones west of UTC.
		event.StartTime = event.StartTime.UTC()
		if event.EndTime != nil {
			end := event.EndTime.UTC()
			event.EndTime = &end
		}
	}
	event.Recurrence = Recurrence(recurrence)
	return event, nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
