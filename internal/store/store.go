// Package store persists sessions and the equipment database to SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scenepilot/internal/logging"
	"scenepilot/internal/retrieval"
)

// ErrSessionNotFound is returned when loading a session ID that was
// never saved.
var ErrSessionNotFound = errors.New("session not found")

// Store wraps the SQLite database holding saved sessions and equipment
// records.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the database at dbPath, creating the parent
// directory and schema as needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	logging.StoreDebug("opened database at %s", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		saved_at DATETIME NOT NULL,
		snapshot_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_saved ON sessions(saved_at);

	CREATE TABLE IF NOT EXISTS equipment (
		element TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		system TEXT,
		subcategory TEXT,
		record_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_equipment_system ON equipment(system);
	CREATE INDEX IF NOT EXISTS idx_equipment_category ON equipment(subcategory);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession upserts a session snapshot under the given ID.
func (s *Store) SaveSession(id string, snapshot []byte) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, saved_at, snapshot_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at, snapshot_json = excluded.snapshot_json
	`, id, time.Now().UTC(), string(snapshot))
	if err != nil {
		logging.StoreError("save session %s: %v", id, err)
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// LoadSession returns the snapshot saved under the given ID.
func (s *Store) LoadSession(id string) ([]byte, error) {
	var snapshot string
	err := s.db.QueryRow(`SELECT snapshot_json FROM sessions WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return []byte(snapshot), nil
}

// SessionInfo is one saved-session listing entry.
type SessionInfo struct {
	ID      string
	SavedAt time.Time
}

// ListSessions returns saved sessions, most recent first.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`SELECT id, saved_at FROM sessions ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSession removes a saved session. Deleting an unknown ID is not
// an error.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// SaveEquipment upserts equipment records inside one transaction.
func (s *Store) SaveEquipment(records []*retrieval.Equipment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin equipment save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO equipment (element, name, system, subcategory, record_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(element) DO UPDATE SET
			name = excluded.name,
			system = excluded.system,
			subcategory = excluded.subcategory,
			record_json = excluded.record_json
	`)
	if err != nil {
		return fmt.Errorf("prepare equipment save: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode equipment %s: %w", rec.Element, err)
		}
		if _, err := stmt.Exec(rec.Element, rec.Name, rec.System, rec.Category, string(data), now); err != nil {
			return fmt.Errorf("save equipment %s: %w", rec.Element, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit equipment save: %w", err)
	}
	logging.StoreDebug("saved %d equipment records", len(records))
	return nil
}

// LoadEquipment returns all persisted equipment records.
func (s *Store) LoadEquipment() ([]retrieval.Equipment, error) {
	rows, err := s.db.Query(`SELECT record_json FROM equipment ORDER BY created_at, element`)
	if err != nil {
		return nil, fmt.Errorf("load equipment: %w", err)
	}
	defer rows.Close()

	var out []retrieval.Equipment
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan equipment row: %w", err)
		}
		var rec retrieval.Equipment
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode equipment record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EquipmentCount returns the number of persisted equipment records.
func (s *Store) EquipmentCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM equipment`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count equipment: %w", err)
	}
	return n, nil
}
