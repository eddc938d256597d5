package store

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/branchlite/branchlite/internal/logging"
)

// ProjectStore is one project's open SQLite store plus its files directory.
type ProjectStore struct {
	projectID int64
	dir       string
	db        *sql.DB
	log       *logging.Logger
}

// Querier is the statement surface shared by *sql.DB and *sql.Tx. Store
// helpers accept it so they run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB exposes the underlying handle for statement execution.
func (s *ProjectStore) DB() *sql.DB {
	return s.db
}

// ProjectID returns the owning project's id.
func (s *ProjectStore) ProjectID() int64 {
	return s.projectID
}

// Dir returns the project's store directory.
func (s *ProjectStore) Dir() string {
	return s.dir
}

// DBPath returns the path of the project's database file.
func (s *ProjectStore) DBPath() string {
	return filepath.Join(s.dir, projectDBFile)
}

// FilesDir returns the directory holding the project's stored files.
func (s *ProjectStore) FilesDir() string {
	return filepath.Join(s.dir, filesDirName)
}

// Log returns the store's project-scoped logger.
func (s *ProjectStore) Log() *logging.Logger {
	return s.log
}

// Close closes the store handle.
func (s *ProjectStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
