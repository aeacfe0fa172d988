package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/e2ecore/internal/models"
)

// Session repository errors.
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository persists session records.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a running session.
func (r *SessionRepository) Create(ctx context.Context, session *models.SessionRecord) error {
	if err := session.Validate(); err != nil {
		return err
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.Outcome == "" {
		session.Outcome = models.SessionOutcomeRunning
	}

	var argsJSON *string
	if len(session.Args) > 0 {
		data, err := json.Marshal(session.Args)
		if err != nil {
			return fmt.Errorf("failed to marshal args: %w", err)
		}
		s := string(data)
		argsJSON = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, name, command, args_json, dir, started_at, outcome, steps_total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Name,
		session.Command,
		argsJSON,
		session.Dir,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		string(session.Outcome),
		session.StepsTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Finish records the outcome of a session.
func (r *SessionRepository) Finish(ctx context.Context, id string, outcome models.SessionOutcome, errMsg string, stepsCompleted int, finishedAt time.Time) error {
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET outcome = ?, error = ?, steps_completed = ?, finished_at = ?
		WHERE id = ?
	`,
		string(outcome),
		errMsg,
		stepsCompleted,
		finishedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, sessionColumns+` WHERE id = ?`, id)
	session, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// List returns the most recent sessions first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, sessionColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SessionRecord
	for rows.Next() {
		session, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

const sessionColumns = `
	SELECT id, name, command, args_json, dir, started_at, finished_at,
		outcome, error, steps_total, steps_completed
	FROM sessions`

func (r *SessionRepository) scan(row rowScanner) (*models.SessionRecord, error) {
	var session models.SessionRecord
	var argsJSON, finishedAt sql.NullString
	var startedAt, outcome string

	if err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Command,
		&argsJSON,
		&session.Dir,
		&startedAt,
		&finishedAt,
		&outcome,
		&session.Error,
		&session.StepsTotal,
		&session.StepsCompleted,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.Outcome = models.SessionOutcome(outcome)
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		session.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			session.FinishedAt = &t
		}
	}
	if argsJSON.Valid {
		if err := json.Unmarshal([]byte(argsJSON.String), &session.Args); err != nil {
			r.db.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to parse session args")
		}
	}

	return &session, nil
}
