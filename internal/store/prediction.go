package store

import (
	"database/sql"
	"time"
)

// Prediction is an applied classifier result.
type Prediction struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Spoken     bool      `json:"spoken"`
	CreatedAt  time.Time `json:"created_at"`
}

// LabelCount is the number of predictions recorded for one label.
type LabelCount struct {
	Label  string `json:"label"`
	Count  int    `json:"count"`
	Spoken int    `json:"spoken"`
}

// PredictionRepository stores prediction history.
type PredictionRepository struct {
	db *sql.DB
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// Create inserts a prediction. The owning session must already exist.
func (r *PredictionRepository) Create(p *Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	result, err := r.db.Exec(
		`INSERT INTO predictions (session_id, label, confidence, spoken, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.SessionID, p.Label, p.Confidence, boolToInt(p.Spoken), p.CreatedAt,
	)
	if err != nil {
		return err
	}
	p.ID, err = result.LastInsertId()
	return err
}

// List returns up to limit predictions, newest first. A non-empty sessionID
// restricts the result to that session.
func (r *PredictionRepository) List(sessionID string, limit int) ([]*Prediction, error) {
	q := `SELECT id, session_id, label, confidence, spoken, created_at FROM predictions`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []*Prediction
	for rows.Next() {
		p := &Prediction{}
		var spoken int
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Label, &p.Confidence, &spoken, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Spoken = spoken != 0
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// CountByLabel aggregates prediction history per label, most frequent first.
func (r *PredictionRepository) CountByLabel() ([]LabelCount, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*), SUM(spoken) FROM predictions
		 GROUP BY label ORDER BY COUNT(*) DESC, label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count, &c.Spoken); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
