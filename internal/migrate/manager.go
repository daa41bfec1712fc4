// Package migrate applies the embedded PostgreSQL schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"fitapp.dev/internal/obs"
)

//go:embed sql/*.sql
var migrations embed.FS

const migrationsDir = "sql"

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

// seams for tests
var (
	gooseUp      = goose.UpContext
	gooseDown    = goose.DownContext
	gooseStatus  = goose.StatusContext
	gooseVersion = goose.GetDBVersionContext
)

// Manager runs schema migrations against a database handle.
type Manager struct {
	db  *sql.DB
	log *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger routes goose output to l.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, log: obs.Logger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseUp(ctx, m.db, migrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseDown(ctx, m.db, migrationsDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// Status logs the applied state of every migration.
func (m *Manager) Status(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseStatus(ctx, m.db, migrationsDir); err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
		return nil
	})
}

// Version returns the current schema version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	var v int64
	err := m.run(func() error {
		var err error
		v, err = gooseVersion(ctx, m.db)
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		return nil
	})
	return v, err
}

func (m *Manager) run(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{m.log.Sugar()})
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return fn()
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }
