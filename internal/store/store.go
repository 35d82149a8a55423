// Package store persists registry snapshots as JSON blobs in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// defaultName is the snapshot row the running bridge reads and writes.
const defaultName = "bridge"

// Store reads and writes registry snapshots.
type Store struct {
	db   *sql.DB
	name string
	mu   sync.Mutex
}

// New creates a store over an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db, name: defaultName}
}

// Save serializes the snapshot and upserts it, bumping the version.
func (s *Store) Save(snap resource.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	now := time.Now().UTC().Unix()
	_, err = s.db.Exec(`
		INSERT INTO resource_snapshots (name, payload, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, s.name, string(payload), now)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}

	log.Debug().Int("bytes", len(payload)).Msg("Registry snapshot saved")
	return nil
}

// Load reads the stored snapshot. A missing row returns ok=false, not an
// error: first boot starts empty.
func (s *Store) Load() (resource.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM resource_snapshots WHERE name = ?
	`, s.name).Scan(&payload)
	if err == sql.ErrNoRows {
		return resource.Snapshot{}, false, nil
	}
	if err != nil {
		return resource.Snapshot{}, false, fmt.Errorf("store: load snapshot: %w", err)
	}

	var snap resource.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return resource.Snapshot{}, false, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return snap, true, nil
}
