package driver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/e2ecore/internal/db"
	"github.com/opencode-ai/e2ecore/internal/models"
)

// DatabaseEventSink records sessions and their events in SQLite.
type DatabaseEventSink struct {
	mu       sync.Mutex
	sessions *db.SessionRepository
	events   *db.EventRepository
	database *db.DB
	ownsDB   bool
	known    map[string]bool
}

// NewDatabaseEventSink creates a sink over database. When ownsDB is true,
// Close also closes the database.
func NewDatabaseEventSink(database *db.DB, ownsDB bool) *DatabaseEventSink {
	sink := &DatabaseEventSink{
		database: database,
		ownsDB:   ownsDB,
		known:    make(map[string]bool),
	}
	if database != nil {
		sink.sessions = db.NewSessionRepository(database)
		sink.events = db.NewEventRepository(database)
	}
	return sink
}

// Emit persists an event, creating or finishing the session row as needed.
func (s *DatabaseEventSink) Emit(ctx context.Context, event SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events == nil {
		return errors.New("event repository is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	switch data := event.Data.(type) {
	case SpawnedData:
		record := &models.SessionRecord{
			ID:         event.SessionID,
			Name:       event.Name,
			Command:    data.Command,
			Args:       data.Args,
			Dir:        data.Dir,
			StartedAt:  event.Timestamp,
			StepsTotal: data.Steps,
		}
		if err := s.sessions.Create(ctx, record); err != nil {
			return err
		}
		s.known[event.SessionID] = true
	case ResolvedData:
		if !s.known[event.SessionID] {
			// Spawn failed; record the attempt so the failure is visible.
			record := &models.SessionRecord{
				ID:         event.SessionID,
				Name:       event.Name,
				Command:    "(not started)",
				StartedAt:  event.Timestamp,
				StepsTotal: data.StepsTotal,
			}
			if err := s.sessions.Create(ctx, record); err != nil {
				return err
			}
			s.known[event.SessionID] = true
		}
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}

	if err := s.events.Create(ctx, &models.Event{
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		Type:      sessionEventType(event.Type),
		Payload:   payload,
	}); err != nil {
		return err
	}

	if data, ok := event.Data.(ResolvedData); ok {
		return s.sessions.Finish(ctx, event.SessionID, models.SessionOutcome(data.Outcome), data.Error, data.StepsCompleted, event.Timestamp)
	}
	return nil
}

// Close closes the database when the sink owns it.
func (s *DatabaseEventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownsDB && s.database != nil {
		return s.database.Close()
	}
	return nil
}

func sessionEventType(eventType string) models.EventType {
	trimmed := strings.TrimSpace(eventType)
	if strings.HasPrefix(trimmed, "session.") {
		return models.EventType(trimmed)
	}
	if trimmed == "" {
		return models.EventType("session.unknown")
	}
	return models.EventType("session." + trimmed)
}
