// Package store manages the on-disk layout of the engine: a registry of
// projects plus one isolated SQLite store and files directory per project.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/logging"
)

//go:embed migrations/registry/001_initial_schema.sql
var registryMigrationV1 string

//go:embed migrations/project/001_initial_schema.sql
var projectMigrationV1 string

const (
	registryFile  = "registry.db"
	projectDBFile = "project.db"
	filesDirName  = "files"
)

// Manager owns the project registry and a cache of open project stores.
// Opening a project is deduplicated, so concurrent callers share one handle.
type Manager struct {
	root        string
	busyTimeout time.Duration
	log         *logging.Logger

	registry *sql.DB

	mu      sync.Mutex
	stores  map[int64]*ProjectStore
	opening singleflight.Group
}

// Option configures the manager.
type Option func(*Manager)

// WithBusyTimeout sets how long statements wait on a locked store.
func WithBusyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.busyTimeout = d
		}
	}
}

// NewManager opens the registry under root, creating the directory and
// schema when absent.
func NewManager(root string, log *logging.Logger, opts ...Option) (*Manager, error) {
	if log == nil {
		log = logging.NewNop()
	}
	m := &Manager{
		root:        root,
		busyTimeout: 5 * time.Second,
		log:         log,
		stores:      make(map[int64]*ProjectStore),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := openSQLite(filepath.Join(root, registryFile), m.busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	m.registry = db

	if err := migrate(db, registryMigrationV1); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("migrating registry: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("migrating registry: %w", err)
	}
	return m, nil
}

// Root returns the data directory the manager was opened on.
func (m *Manager) Root() string {
	return m.root
}

// Close closes all open project stores and the registry.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, ps := range m.stores {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.stores, id)
	}
	if m.registry != nil {
		if err := m.registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CreateProject registers a project, provisions its store directory, and
// initializes the store with its Main branch.
func (m *Manager) CreateProject(ctx context.Context, name string) (*core.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ErrValidation("EMPTY_PROJECT_NAME", "project name must not be empty")
	}

	now := time.Now().UTC()
	res, err := m.registry.ExecContext(ctx,
		`INSERT INTO projects (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrValidation("PROJECT_EXISTS", fmt.Sprintf("project already exists: %s", name))
		}
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading project id: %w", err)
	}

	ps, err := m.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	main, err := ps.MainBranch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := changelog.Record(ctx, ps.DB(), id, main.ID, "project.create",
		map[string]any{"name": name}, map[string]any{"project_id": id},
		"created project "+name); err != nil {
		m.log.Warn("changelog record failed", "action", "project.create", "error", err)
	}

	m.log.Info("project created", "project_id", id, "name", name)
	return &core.Project{ID: id, Name: name, CreatedAt: now}, nil
}

// GetProject loads one registry entry.
func (m *Manager) GetProject(ctx context.Context, id int64) (*core.Project, error) {
	var p core.Project
	err := m.registry.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errProjectNotFound(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %d: %w", id, err)
	}
	return &p, nil
}

// GetProjectByName loads one registry entry by name.
func (m *Manager) GetProjectByName(ctx context.Context, name string) (*core.Project, error) {
	var p core.Project
	err := m.registry.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errProjectNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", name, err)
	}
	return &p, nil
}

// ListProjects returns all projects in creation order.
func (m *Manager) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := m.registry.QueryContext(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []core.Project
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project from the registry and deletes its store
// directory, files included.
func (m *Manager) DeleteProject(ctx context.Context, id int64) error {
	m.mu.Lock()
	ps := m.stores[id]
	delete(m.stores, id)
	m.mu.Unlock()
	if ps != nil {
		if err := ps.Close(); err != nil {
			m.log.Warn("closing project store before delete", "project_id", id, "error", err)
		}
	}

	res, err := m.registry.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}
	if affected == 0 {
		return errProjectNotFound(strconv.FormatInt(id, 10))
	}

	if err := os.RemoveAll(m.projectDir(id)); err != nil {
		m.log.Warn("removing project directory", "project_id", id, "error", err)
	}
	m.log.Info("project deleted", "project_id", id)
	return nil
}

// Project returns the open store for a project, opening and migrating it on
// first use.
func (m *Manager) Project(ctx context.Context, id int64) (*ProjectStore, error) {
	m.mu.Lock()
	if ps, ok := m.stores[id]; ok {
		m.mu.Unlock()
		return ps, nil
	}
	m.mu.Unlock()

	v, err, _ := m.opening.Do(strconv.FormatInt(id, 10), func() (any, error) {
		m.mu.Lock()
		if ps, ok := m.stores[id]; ok {
			m.mu.Unlock()
			return ps, nil
		}
		m.mu.Unlock()

		if _, err := m.GetProject(ctx, id); err != nil {
			return nil, err
		}
		ps, err := m.openProject(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.stores[id] = ps
		m.mu.Unlock()
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProjectStore), nil
}

func (m *Manager) openProject(ctx context.Context, id int64) (*ProjectStore, error) {
	dir := m.projectDir(id)
	if err := os.MkdirAll(filepath.Join(dir, filesDirName), 0o750); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}

	db, err := openSQLite(filepath.Join(dir, projectDBFile), m.busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("opening project store: %w", err)
	}

	ps := &ProjectStore{
		projectID: id,
		dir:       dir,
		db:        db,
		log:       m.log.WithProject(id),
	}
	if err := migrate(db, projectMigrationV1); err != nil {
		_ = db.Close()
		return nil, core.ErrState(core.CodeMigrationFailed,
			fmt.Sprintf("migrating project store %d", id)).WithCause(err)
	}
	if _, err := ps.EnsureMainBranch(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	m.log.Debug("project store opened", "project_id", id, "dir", dir)
	return ps, nil
}

func (m *Manager) projectDir(id int64) string {
	return filepath.Join(m.root, fmt.Sprintf("project_%d", id))
}

func openSQLite(path string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
	return sql.Open("sqlite", dsn)
}

// migrate applies pending schema versions.
func migrate(db *sql.DB, v1 string) error {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		// Table doesn't exist yet, run initial migration.
		version = 0
	}
	if version < 1 {
		if _, err := db.Exec(v1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func errProjectNotFound(id string) *core.DomainError {
	return &core.DomainError{
		Category: core.ErrCatNotFound,
		Code:     core.CodeProjectNotFound,
		Message:  "project not found: " + id,
	}
}
