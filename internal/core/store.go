package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/drivepool/drivepool/internal/model"
)

// stateVersion is written into every saved payload.
const stateVersion = 1

// StateStore persists and restores a drive's full state by user key.
// Load returns ErrNotFound when no slot exists and wraps
// ErrPersistenceCorrupt when the slot cannot be decoded; the façade
// recovers from both by reinitializing.
type StateStore interface {
	Save(ctx context.Context, userKey string, state *model.PersistedState) error
	Load(ctx context.Context, userKey string) (*model.PersistedState, error)
}

// SQLStateStore keeps one JSON payload per user in a SQLite slot table,
// optionally encrypted at rest via SQLCipher.
type SQLStateStore struct {
	db     *sql.DB
	dbPath string
}

// OpenStateStore opens (creating if needed) the slot database at dbPath.
// An empty passphrase opens without encryption.
func OpenStateStore(dbPath, passphrase string) (*SQLStateStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	if passphrase != "" {
		dsn = fmt.Sprintf("file:%s?_pragma_key=%s&_journal_mode=WAL&_synchronous=NORMAL", dbPath, passphrase)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if passphrase != "" {
		// Fails here if the key is wrong rather than on first real query.
		var version string
		if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid passphrase or corrupted database: %w", err)
		}
	}

	schema := `
CREATE TABLE IF NOT EXISTS state_slots (
    user_key  TEXT PRIMARY KEY,
    payload   TEXT NOT NULL,
    version   INTEGER NOT NULL,
    saved_at  TEXT NOT NULL DEFAULT (datetime('now'))
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLStateStore{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLStateStore) Close() error {
	return s.db.Close()
}

// Save serializes state into the user's slot, replacing any previous save.
func (s *SQLStateStore) Save(ctx context.Context, userKey string, state *model.PersistedState) error {
	state.Version = stateVersion
	state.SavedAt = time.Now()

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	query := `
		INSERT INTO state_slots (user_key, payload, version, saved_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(user_key) DO UPDATE SET
			payload = excluded.payload,
			version = excluded.version,
			saved_at = excluded.saved_at
	`
	if _, err := s.db.ExecContext(ctx, query, userKey, string(payload), state.Version); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Load reads and decodes the user's slot.
func (s *SQLStateStore) Load(ctx context.Context, userKey string) (*model.PersistedState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM state_slots WHERE user_key = ?`, userKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, notFound("state slot", userKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state slot: %w", err)
	}

	var state model.PersistedState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("slot for %q undecodable: %w", userKey, ErrPersistenceCorrupt)
	}
	if state.FileSystem.Folders == nil || state.Accounts == nil {
		return nil, fmt.Errorf("slot for %q missing required sections: %w", userKey, ErrPersistenceCorrupt)
	}
	return &state, nil
}

// MemoryStateStore is an in-process StateStore for tests and ephemeral
// sessions. Payloads are round-tripped through JSON so persistence bugs
// show up the same way they would on the SQLite store.
type MemoryStateStore struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{slots: make(map[string][]byte)}
}

// Save stores the encoded state under userKey.
func (m *MemoryStateStore) Save(ctx context.Context, userKey string, state *model.PersistedState) error {
	state.Version = stateVersion
	state.SavedAt = time.Now()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[userKey] = payload
	return nil
}

// Load decodes the state stored under userKey.
func (m *MemoryStateStore) Load(ctx context.Context, userKey string) (*model.PersistedState, error) {
	m.mu.Lock()
	payload, ok := m.slots[userKey]
	m.mu.Unlock()
	if !ok {
		return nil, notFound("state slot", userKey)
	}
	var state model.PersistedState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("slot for %q undecodable: %w", userKey, ErrPersistenceCorrupt)
	}
	return &state, nil
}

// Corrupt overwrites a slot with garbage. Test hook for the recovery path.
func (m *MemoryStateStore) Corrupt(userKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[userKey] = []byte("{not json")
}
