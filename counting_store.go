package main

import (
	"database/sql"
	"errors"
	"sync"
)

const countingStateKey = "counting_state"

// errNoStateChange lets an Update callback bail out without persisting
// anything while still reporting success to the caller.
var errNoStateChange = errors.New("no state change")

// countingStore persists the single CountingState record as a JSON blob
// in the kv_state table. All mutation goes through Update, which holds
// the store mutex across the full read-modify-write cycle so concurrent
// timer callbacks and the queue worker cannot lose updates.
type countingStore struct {
	db *sql.DB
	mu sync.Mutex
}

func newCountingStore() (*countingStore, error) {
	db := getSharedStateDB()
	if db == nil {
		return nil, errors.New("shared state db not initialized")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return nil, err
	}
	return &countingStore{db: db}, nil
}

// loadLocked reads and decodes the current state, creating the zero
// record on first access. Callers must hold s.mu.
func (s *countingStore) loadLocked() (*CountingState, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM kv_state WHERE key = ?", countingStateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return newCountingState(), nil
	}
	if err != nil {
		return nil, err
	}
	st := newCountingState()
	if err := fastJSONUnmarshal([]byte(raw), st); err != nil {
		// A blob we cannot decode is treated as absent rather than
		// poisoning every later read; the zero record will overwrite it
		// on the next save.
		logger.Warn("counting state decode failed, starting fresh", "error", err)
		return newCountingState(), nil
	}
	healed := st.mergeLegacyBans()
	st.normalize()
	if healed {
		// Persist the corrected shape now so a record written by an
		// older build is migrated once, not re-healed on every read.
		if err := s.saveLocked(st); err != nil {
			logger.Warn("counting state self-heal save failed", "error", err)
		}
	}
	return st, nil
}

func (s *countingStore) saveLocked(st *CountingState) error {
	data, err := fastJSONMarshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO kv_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		countingStateKey, string(data),
	)
	return err
}

// Load returns a decoded copy of the current state.
func (s *countingStore) Load() (*CountingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Update runs fn against the freshly loaded state and persists the
// result, all under the store mutex. fn returning an error abandons the
// write.
func (s *countingStore) Update(fn func(st *CountingState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		if errors.Is(err, errNoStateChange) {
			return nil
		}
		return err
	}
	st.normalize()
	return s.saveLocked(st)
}
