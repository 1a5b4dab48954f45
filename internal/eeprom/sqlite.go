package eeprom

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists the byte region as a single blob row. The region
// is cached in memory; Read and Write never touch the database, Commit
// flushes the staged image in one statement.
type SQLiteStore struct {
	db        *sql.DB
	staged    [Size]byte
	committed [Size]byte
}

// NewSQLiteStore loads (or initializes) the persisted region. The
// eeprom table is created by the db package schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	var blob []byte
	err := db.QueryRow(`SELECT data FROM eeprom WHERE id = 0`).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		// Fresh database: persist a zeroed region so later commits
		// are plain updates.
		if err := s.flush(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load eeprom region: %w", err)
	case len(blob) != Size:
		return nil, fmt.Errorf("persisted eeprom region has %d bytes, want %d", len(blob), Size)
	default:
		copy(s.committed[:], blob)
		s.staged = s.committed
	}

	return s, nil
}

// Read copies len(dst) committed bytes starting at offset.
func (s *SQLiteStore) Read(offset int, dst []byte) error {
	if err := checkRange(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, s.committed[offset:])
	return nil
}

// Write stages len(src) bytes at offset.
func (s *SQLiteStore) Write(offset int, src []byte) error {
	if err := checkRange(offset, len(src)); err != nil {
		return err
	}
	copy(s.staged[offset:], src)
	return nil
}

// Commit flushes the staged image. On failure the committed view keeps
// the previous content.
func (s *SQLiteStore) Commit() error {
	if err := s.flush(); err != nil {
		return err
	}
	s.committed = s.staged
	return nil
}

func (s *SQLiteStore) flush() error {
	_, err := s.db.Exec(`
		INSERT INTO eeprom (id, data, updated_at) VALUES (0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, s.staged[:], time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to persist eeprom region: %w", err)
	}
	return nil
}
