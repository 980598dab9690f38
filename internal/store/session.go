package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is the persisted summary of one recognition session.
// EndedAt is nil while the session is running.
type SessionRecord struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Frames     int        `json:"frames"`
	Dispatches int        `json:"dispatches"`
	Failures   int        `json:"failures"`
	Utterances int        `json:"utterances"`
}

// SessionRepository stores session records.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin records the start of a session.
func (r *SessionRepository) Begin(id string, startedAt time.Time) error {
	_, err := r.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, startedAt)
	return err
}

// Finish stores the final counters of a session. A session that was never
// begun is inserted as a whole.
func (r *SessionRepository) Finish(rec *SessionRecord) error {
	ended := time.Now()
	if rec.EndedAt != nil {
		ended = *rec.EndedAt
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, ended_at, frames, dispatches, failures, utterances)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			frames = excluded.frames,
			dispatches = excluded.dispatches,
			failures = excluded.failures,
			utterances = excluded.utterances`,
		rec.ID, rec.StartedAt, ended, rec.Frames, rec.Dispatches, rec.Failures, rec.Utterances,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(
		`SELECT id, started_at, ended_at, frames, dispatches, failures, utterances
		 FROM sessions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns up to limit sessions, most recent first.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames, dispatches, failures, utterances
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime
	if err := row.Scan(&rec.ID, &rec.StartedAt, &ended, &rec.Frames, &rec.Dispatches, &rec.Failures, &rec.Utterances); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}
