package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Sample is a recorded feature window tagged with the label it shows.
// Frames holds the window as a JSON array of feature vectors.
type Sample struct {
	ID         int64           `json:"id"`
	Label      string          `json:"label"`
	FrameCount int             `json:"frame_count"`
	Frames     json.RawMessage `json:"frames,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SampleRepository provides CRUD operations for recorded samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create inserts a single sample.
func (r *SampleRepository) Create(s *Sample) error {
	s.CreatedAt = time.Now()
	result, err := r.db.Exec(
		`INSERT INTO samples (label, frame_count, frames, created_at) VALUES (?, ?, ?, ?)`,
		s.Label, s.FrameCount, string(s.Frames), s.CreatedAt,
	)
	if err != nil {
		return err
	}
	s.ID, err = result.LastInsertId()
	return err
}

// CreateBatch inserts several samples in a single transaction.
func (r *SampleRepository) CreateBatch(samples []*Sample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (label, frame_count, frames, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, s := range samples {
		s.CreatedAt = now
		result, err := stmt.Exec(s.Label, s.FrameCount, string(s.Frames), s.CreatedAt)
		if err != nil {
			return err
		}
		if s.ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a sample including its frames.
func (r *SampleRepository) GetByID(id int64) (*Sample, error) {
	s := &Sample{}
	var frames string
	err := r.db.QueryRow(
		`SELECT id, label, frame_count, frames, created_at FROM samples WHERE id = ?`, id,
	).Scan(&s.ID, &s.Label, &s.FrameCount, &frames, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Frames = json.RawMessage(frames)
	return s, nil
}

// ListByLabel retrieves all samples for a label without their frames.
// An empty label lists every sample.
func (r *SampleRepository) ListByLabel(label string) ([]*Sample, error) {
	q := `SELECT id, label, frame_count, created_at FROM samples`
	var args []any
	if label != "" {
		q += ` WHERE label = ?`
		args = append(args, label)
	}
	q += ` ORDER BY id`

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		s := &Sample{}
		if err := rows.Scan(&s.ID, &s.Label, &s.FrameCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// Delete removes one sample.
func (r *SampleRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// DeleteByLabel removes all samples for a label and reports how many went.
func (r *SampleRepository) DeleteByLabel(label string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM samples WHERE label = ?`, label)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SampleCount is the number of samples recorded for one label.
type SampleCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CountByLabel reports how many samples each label has, ordered by label.
func (r *SampleRepository) CountByLabel() ([]SampleCount, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM samples GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []SampleCount
	for rows.Next() {
		var c SampleCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Validation is the outcome of a Validate pass.
type Validation struct {
	Checked int     `json:"checked"`
	Invalid []int64 `json:"invalid"`
	Deleted int64   `json:"deleted"`
}

// Validate decodes every sample's frames and flags those that are not
// frame_count rows of exactly width values each. When deleteInvalid is
// set the flagged samples are removed in one transaction.
func (r *SampleRepository) Validate(width int, deleteInvalid bool) (*Validation, error) {
	rows, err := r.db.Query(`SELECT id, frame_count, frames FROM samples ORDER BY id`)
	if err != nil {
		return nil, err
	}

	v := &Validation{Invalid: []int64{}}
	for rows.Next() {
		var (
			id     int64
			count  int
			frames string
		)
		if err := rows.Scan(&id, &count, &frames); err != nil {
			rows.Close()
			return nil, err
		}
		v.Checked++
		if !validFrames(frames, count, width) {
			v.Invalid = append(v.Invalid, id)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	if !deleteInvalid || len(v.Invalid) == 0 {
		return v, nil
	}

	// The pool holds a single connection, so rows must be closed first.
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM samples WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, id := range v.Invalid {
		result, err := stmt.Exec(id)
		if err != nil {
			return nil, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		v.Deleted += n
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

func validFrames(raw string, count, width int) bool {
	if count <= 0 {
		return false
	}
	var frames [][]float64
	if err := json.Unmarshal([]byte(raw), &frames); err != nil {
		return false
	}
	if len(frames) != count {
		return false
	}
	for _, f := range frames {
		if len(f) != width {
			return false
		}
	}
	return true
}
