package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/gesture"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Gesture is the stored metadata of a reference gesture.
type Gesture struct {
	ID        string
	Name      string
	Position  int
	Dimension int
	Frames    int
	Samples   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GestureRepository persists reference gestures and their frames.
type GestureRepository struct {
	db *sql.DB
}

// Gestures returns the gesture repository for this store.
func (s *Store) Gestures() *GestureRepository {
	return &GestureRepository{db: s.db}
}

const gestureColumns = `id, name, position, dimension, frames, samples, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGesture(row scanner) (*Gesture, error) {
	g := &Gesture{}
	err := row.Scan(&g.ID, &g.Name, &g.Position, &g.Dimension, &g.Frames, &g.Samples, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Save inserts or replaces the reference sequence stored under name. A new
// gesture is appended after the existing ones; an update keeps its position.
func (r *GestureRepository) Save(name string, seq gesture.Sequence) (*Gesture, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	g, err := saveTx(tx, name, -1, seq)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return g, nil
}

// saveTx upserts one gesture inside tx. A negative position appends new
// gestures and keeps the position of existing ones.
func saveTx(tx *sql.Tx, name string, position int, seq gesture.Sequence) (*Gesture, error) {
	if err := gesture.ValidateName(name); err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, gesture.ErrEmptySequence
	}

	now := time.Now()

	g, err := scanGesture(tx.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE name = ?`, name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if position < 0 {
			if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM gestures`).Scan(&position); err != nil {
				return nil, err
			}
		}
		g = &Gesture{
			ID:        uuid.NewString(),
			Name:      name,
			Position:  position,
			Dimension: len(seq[0]),
			Frames:    len(seq),
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.Exec(
			`INSERT INTO gestures (`+gestureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Name, g.Position, g.Dimension, g.Frames, g.Samples, g.CreatedAt, g.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

	case err != nil:
		return nil, err

	default:
		if position >= 0 {
			g.Position = position
		}
		g.Dimension = len(seq[0])
		g.Frames = len(seq)
		g.UpdatedAt = now
		_, err = tx.Exec(
			`UPDATE gestures SET position = ?, dimension = ?, frames = ?, updated_at = ? WHERE id = ?`,
			g.Position, g.Dimension, g.Frames, g.UpdatedAt, g.ID,
		)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`DELETE FROM gesture_frames WHERE gesture_id = ?`, g.ID); err != nil {
			return nil, err
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO gesture_frames (gesture_id, frame_index, value_index, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, frame := range seq {
		for j, v := range frame {
			if _, err := stmt.Exec(g.ID, i, j, v); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// GetByID retrieves a gesture by its ID.
func (r *GestureRepository) GetByID(id string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

// GetByName retrieves a gesture by its name.
func (r *GestureRepository) GetByName(name string) (*Gesture, error) {
	g, err := scanGesture(r.db.QueryRow(`SELECT `+gestureColumns+` FROM gestures WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

// List retrieves all gestures in library order.
func (r *GestureRepository) List() ([]*Gesture, error) {
	rows, err := r.db.Query(`SELECT ` + gestureColumns + ` FROM gestures ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g, err := scanGesture(rows)
		if err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return gestures, nil
}

// Sequence retrieves the reference sequence of a gesture.
func (r *GestureRepository) Sequence(id string) (gesture.Sequence, error) {
	g, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(
		`SELECT frame_index, value_index, value FROM gesture_frames
		 WHERE gesture_id = ? ORDER BY frame_index, value_index`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seq := make(gesture.Sequence, g.Frames)
	for i := range seq {
		seq[i] = make(gesture.Frame, g.Dimension)
	}

	for rows.Next() {
		var fi, vi int
		var v float64
		if err := rows.Scan(&fi, &vi, &v); err != nil {
			return nil, err
		}
		if fi >= g.Frames || vi >= g.Dimension {
			return nil, fmt.Errorf("gesture %q: frame value (%d, %d) out of range", g.Name, fi, vi)
		}
		seq[fi][vi] = v
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return seq, nil
}

// Load returns every stored gesture with its sequence, in library order.
func (r *GestureRepository) Load() ([]gesture.Entry, error) {
	gestures, err := r.List()
	if err != nil {
		return nil, err
	}

	entries := make([]gesture.Entry, 0, len(gestures))
	for _, g := range gestures {
		seq, err := r.Sequence(g.ID)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", g.Name, err)
		}
		entries = append(entries, gesture.Entry{Name: g.Name, Sequence: seq})
	}
	return entries, nil
}

// ReplaceAll makes the stored gestures match entries in one transaction.
// Gestures that keep their name keep their ID, samples and actions; gestures
// missing from entries are deleted.
func (r *GestureRepository) ReplaceAll(entries []gesture.Entry) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(entries))
	for i, e := range entries {
		if _, err := saveTx(tx, e.Name, i, e.Sequence); err != nil {
			return fmt.Errorf("save %q: %w", e.Name, err)
		}
		keep[e.Name] = true
	}

	rows, err := tx.Query(`SELECT name FROM gestures`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if !keep[name] {
			stale = append(stale, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range stale {
		if _, err := tx.Exec(`DELETE FROM gestures WHERE name = ?`, name); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes a gesture from the database by its ID.
func (r *GestureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM gestures WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
