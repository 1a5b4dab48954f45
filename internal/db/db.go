// Package db provides the centralized database connection and schema
// for luminad.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Persistent credential region - a single fixed-size blob row,
	// committed atomically by the eeprom package
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS eeprom (
			id INTEGER PRIMARY KEY CHECK (id = 0),
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create eeprom table: %w", err)
	}

	// Device identity - generated once at first boot, stable across
	// factory resets (a reset clears credentials, not identity)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS device_identity (
			id INTEGER PRIMARY KEY CHECK (id = 0),
			device_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create device_identity table: %w", err)
	}

	return nil
}

// EnsureIdentity returns the persisted device ID, generating and
// storing a fresh UUID on first boot.
func (db *DB) EnsureIdentity() (string, error) {
	var id string
	err := db.QueryRow(`SELECT device_id FROM device_identity WHERE id = 0`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to load device identity: %w", err)
	}

	id = uuid.NewString()
	_, err = db.Exec(`
		INSERT INTO device_identity (id, device_id, created_at) VALUES (0, ?, ?)
	`, id, time.Now().UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to store device identity: %w", err)
	}
	return id, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
