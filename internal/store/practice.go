package store

import (
	"database/sql"
	"time"
)

// PracticeRun is a finished practice drill.
type PracticeRun struct {
	ID        string        `json:"id"`
	Score     int           `json:"score"`
	Total     int           `json:"total"`
	Accuracy  int           `json:"accuracy"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// PracticeRepository stores practice results.
type PracticeRepository struct {
	db *sql.DB
}

// PracticeRuns returns the practice repository for this store.
func (s *Store) PracticeRuns() *PracticeRepository {
	return &PracticeRepository{db: s.db}
}

// Create inserts a finished run.
func (r *PracticeRepository) Create(p *PracticeRun) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO practice_runs (id, score, total, accuracy, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Score, p.Total, p.Accuracy, p.Duration.Milliseconds(), p.CreatedAt,
	)
	return err
}

// List returns up to limit runs, newest first.
func (r *PracticeRepository) List(limit int) ([]*PracticeRun, error) {
	rows, err := r.db.Query(
		`SELECT id, score, total, accuracy, duration_ms, created_at
		 FROM practice_runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PracticeRun
	for rows.Next() {
		p := &PracticeRun{}
		var ms int64
		if err := rows.Scan(&p.ID, &p.Score, &p.Total, &p.Accuracy, &ms, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, p)
	}
	return runs, rows.Err()
}
