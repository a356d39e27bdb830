package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one append-only audit event: a placement decision, a
// credential lifecycle change, a token mint or revocation.
type AuditRecord struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Actor  string    `json:"actor,omitempty"`
	Detail string    `json:"detail"`
}

// NewAuditRecord builds a record with a fresh id and timestamp. Detail is any
// JSON-marshalable payload.
func NewAuditRecord(kind, actor string, detail any) AuditRecord {
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = []byte(fmt.Sprintf("%q", fmt.Sprint(detail)))
	}
	return AuditRecord{
		ID:     uuid.NewString(),
		At:     time.Now().UTC(),
		Kind:   kind,
		Actor:  actor,
		Detail: string(raw),
	}
}

// InitSchema creates the state and audit tables.
// Idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	ddl := []string{
		// state_doc: a single versioned JSON document, always row id 1.
		`CREATE TABLE IF NOT EXISTS state_doc (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			doc BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// audit_log: append-only control-plane events.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			at TIMESTAMP NOT NULL,
			kind TEXT NOT NULL,
			actor TEXT,
			detail TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_log_kind ON audit_log(kind)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}
	return nil
}

// DBStore persists the state document in sqlite with an in-memory cache
// tier. Reads come from the cache once populated; the cache is filled on
// write and on a database read. When a mirror path is configured, a failed
// database write falls back to the file mirror instead of failing the save.
type DBStore struct {
	db *sql.DB

	// mirror, when non-nil, receives the document if the database write
	// fails. Saves only error when both tiers fail.
	mirror *FileStore

	mu    sync.RWMutex
	cache *State
}

// NewDBStore wraps an opened database. Callers run InitSchema first.
func NewDBStore(db *sql.DB, mirror *FileStore) *DBStore {
	return &DBStore{db: db, mirror: mirror}
}

// Load returns the cached document, falling back to the database on a cache
// miss. Returns ErrNoState when nothing has been saved.
func (d *DBStore) Load(ctx context.Context) (*State, error) {
	d.mu.RLock()
	cached := d.cache
	d.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	var raw []byte
	err := d.db.QueryRowContext(ctx, `SELECT doc FROM state_doc WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state row: %w", err)
	}

	s, err := decodeState(raw)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache = s.Clone()
	d.mu.Unlock()
	return s, nil
}

// Save writes the document to the database and populates the cache. A
// database failure falls back to the file mirror when one is configured;
// the save fails only when every tier fails.
func (d *DBStore) Save(ctx context.Context, s *State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	_, dbErr := d.db.ExecContext(ctx, `
		INSERT INTO state_doc (id, version, doc, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, doc = excluded.doc, updated_at = excluded.updated_at`,
		s.Version, raw, time.Now().UTC())
	if dbErr != nil {
		if d.mirror == nil {
			return fmt.Errorf("write state row: %w", dbErr)
		}
		if mirrorErr := d.mirror.Save(ctx, s); mirrorErr != nil {
			return fmt.Errorf("write state row: %w (mirror also failed: %v)", dbErr, mirrorErr)
		}
	}

	d.mu.Lock()
	d.cache = s.Clone()
	d.mu.Unlock()
	return nil
}

// AppendAudit inserts one audit record. Callers treat failures as
// best-effort telemetry.
func (d *DBStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, at, kind, actor, detail) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.At, rec.Kind, rec.Actor, rec.Detail)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DBStore) Close() error {
	return d.db.Close()
}
