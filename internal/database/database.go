// Package database owns the process's single SQLite connection.
//
// Callers share one *sql.DB pinned to one connection so that writers queue
// on the store's busy timeout instead of contending for the file lock.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"busybee/internal/logger"
)

const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPure is modernc.org/sqlite.
	DriverPure = "sqlite"

	MemoryLocation = ":memory:"

	defaultBusyTimeout = 5 * time.Second
)

var ErrClosed = errors.New("database: accessor closed")

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT,
	description TEXT,
	completed BOOLEAN DEFAULT 0
)`

type Config struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	Path        string        `mapstructure:"path" yaml:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

type Accessor struct {
	mu       sync.Mutex
	cfg      Config
	log      logger.Logger
	db       *sql.DB
	location string
	closed   bool
}

func New(cfg Config, log logger.Logger) *Accessor {
	if cfg.Driver == "" {
		cfg.Driver = DriverCGO
	}
	if cfg.Path == "" {
		cfg.Path = MemoryLocation
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Accessor{cfg: cfg, log: log}
}

// Acquire returns the live connection, opening one when none exists or when
// forceNew is set. An empty location means the configured default path.
// Forcing a new connection closes the previous one.
func (a *Accessor) Acquire(ctx context.Context, location string, forceNew bool) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.db != nil && !forceNew {
		return a.db, nil
	}
	if location == "" {
		location = a.cfg.Path
	}

	db, err := a.open(ctx, location)
	if err != nil {
		return nil, err
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("database: closing replaced connection", "location", a.location, "error", err)
		}
	}
	a.db = db
	a.location = location
	return db, nil
}

func (a *Accessor) DB(ctx context.Context) (*sql.DB, error) {
	return a.Acquire(ctx, "", false)
}

// Reset discards the live connection and opens a fresh one at the default
// location. Consumers that cache statements must re-prepare them against the
// new connection; the task repository does so on its next call.
func (a *Accessor) Reset(ctx context.Context) (*sql.DB, error) {
	return a.Acquire(ctx, "", true)
}

func (a *Accessor) Location() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Accessor) open(ctx context.Context, location string) (*sql.DB, error) {
	log := a.log.With("driver", a.cfg.Driver, "location", location)

	if location != MemoryLocation {
		dir := filepath.Dir(location)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("database: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(a.cfg.Driver, location)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", location, err)
	}
	// One connection: an in-memory store lives and dies with it, and a file
	// store only ever has one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", a.cfg.BusyTimeout.Milliseconds())
	if _, err := db.ExecContext(ctx, pragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTasksTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ensure schema: %w", err)
	}

	log.Debug("database: connection opened", "busy_timeout", a.cfg.BusyTimeout)
	return db, nil
}
