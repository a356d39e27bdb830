package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store is the single logical persistence interface.
type Store interface {
	// Load returns the saved document, or ErrNoState when nothing has been
	// saved yet.
	Load(ctx context.Context) (*State, error)
	// Save durably writes the document.
	Save(ctx context.Context, s *State) error
	// AppendAudit records one audit event, best-effort.
	AppendAudit(ctx context.Context, rec AuditRecord) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Backend is "file" or "database".
	Backend string
	// FilePath is the state file location (file backend and database mirror).
	FilePath string
	// DatabasePath is the sqlite file location.
	DatabasePath string
	// AllowFallback permits falling back to the file backend when the
	// database cannot be opened.
	AllowFallback bool
	// MirrorWrites keeps a file mirror that absorbs failed database writes.
	MirrorWrites bool
}

// Open builds a store for the selected backend. A database that cannot be
// opened falls back to the file backend when fallback is allowed, else the
// error propagates.
func Open(opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case "file":
		return NewFileStore(opts.FilePath), nil
	case "database":
		store, err := openDB(opts)
		if err == nil {
			return store, nil
		}
		if !opts.AllowFallback {
			return nil, err
		}
		logger.Warn("database backend unavailable, falling back to file store",
			"error", err, "path", opts.FilePath)
		return NewFileStore(opts.FilePath), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
}

func openDB(opts Options) (*DBStore, error) {
	db, err := sql.Open("sqlite", opts.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// The sqlite driver opens lazily; ping so construction failures surface
	// here, where the fallback policy can act on them.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state database: %w", err)
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	var mirror *FileStore
	if opts.MirrorWrites && opts.FilePath != "" {
		mirror = NewFileStore(opts.FilePath)
	}
	return NewDBStore(db, mirror), nil
}
