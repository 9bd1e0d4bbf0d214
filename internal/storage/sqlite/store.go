// Package sqlite implements the storage interface using SQLite.
//
// File layout mirrors the concerns:
//   - store.go: Store struct, New() constructor, connection setup, config
//   - schema.go: schema definition
//   - transaction.go: RunInTransaction and the transaction wrapper
//   - segments.go: segment graph CRUD and replace-scope
//   - changesets.go: ChangeSet rows and the status compare-and-set
//   - routing.go: routing entries and version snapshots
//   - util.go: busy retry and error wrapping
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/voxlab/callflow/internal/storage"
)

// Verify Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// setupWASMCache points go-sqlite3's wazero runtime at a persistent
// compilation cache so process startup skips the WASM JIT. Falls back to an
// in-memory cache when the cache directory cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "callflow", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (and if needed initializes) a SQLite-backed store at path.
// ":memory:" opens a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// Shared cache so the pool's connections observe the same data; WAL
		// does not apply to in-memory databases.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection; force a single connection
		// so every caller sees the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus readers; cap the pool so writers
		// queue instead of piling up on the write lock.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.dbPath }

// Close releases the connection pool. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// SetConfig stores one key/value configuration pair.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return setConfig(ctx, s.db, key, value)
}

// GetConfig returns the value for key, or storage.ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	return getConfig(ctx, s.db, key)
}

func setConfig(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return wrapDBError("set config", err)
	}
	return nil
}

func getConfig(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("config key %q: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return "", wrapDBError("get config", err)
	}
	return value, nil
}
