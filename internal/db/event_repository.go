package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/e2ecore/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// EventRepository handles event persistence.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery defines filters for querying events.
type EventQuery struct {
	SessionID string            // Required
	Type      *models.EventType // Filter by event type
	Cursor    int64             // Return events after this sequence number
	Limit     int               // Max results to return
}

// EventPage represents a page of query results.
type EventPage struct {
	Events     []*models.Event
	NextCursor int64
}

// Create appends a new event to the session's log.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event == nil {
		return ErrInvalidEvent
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	var payloadJSON *string
	if len(event.Payload) > 0 {
		s := string(event.Payload)
		payloadJSON = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, session_id, timestamp, seq, type, payload_json)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?), ?, ?)
	`,
		event.ID,
		event.SessionID,
		event.Timestamp.Format(time.RFC3339Nano),
		event.SessionID,
		string(event.Type),
		payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, timestamp, seq, type, payload_json
		FROM events WHERE id = ?
	`, id)

	event, _, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// Query retrieves a session's events in order with cursor-based pagination.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	if q.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, session_id, timestamp, seq, type, payload_json FROM events WHERE session_id = ? AND seq > ?`
	args := []any{q.SessionID, q.Cursor}
	if q.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*q.Type))
	}
	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit+1) // Fetch one extra to determine if there's a next page

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	var seqs []int64
	for rows.Next() {
		event, seq, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	page := &EventPage{}
	if len(events) > limit {
		page.Events = events[:limit]
		page.NextCursor = seqs[limit-1]
	} else {
		page.Events = events
	}
	return page, nil
}

// ListBySession retrieves up to limit events for a session in order.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Event, error) {
	page, err := r.Query(ctx, EventQuery{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, int64, error) {
	var event models.Event
	var timestamp, eventType string
	var seq int64
	var payloadJSON sql.NullString

	if err := row.Scan(
		&event.ID,
		&event.SessionID,
		&timestamp,
		&seq,
		&eventType,
		&payloadJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Type = models.EventType(eventType)
	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		event.Timestamp = t
	}
	if payloadJSON.Valid {
		event.Payload = json.RawMessage(payloadJSON.String)
	}

	return &event, seq, nil
}
