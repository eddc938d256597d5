package store

import (
	"context"
	"database/sql"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/fsutil"
	"github.com/branchlite/branchlite/internal/sqltext"
)

// NewFileKey returns a fresh opaque storage key.
func NewFileKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SaveFile writes data into the project's file area and records it in the
// files ledger under the given branch. The stored name is prefixed with the
// file key so uploads never clobber each other.
func (s *ProjectStore) SaveFile(ctx context.Context, branchID int64, filename string, data []byte, displayName string) (*core.FileRecord, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, core.ErrValidation("EMPTY_FILENAME", "filename must not be empty")
	}

	key := NewFileKey()
	storagePath := filepath.Join(s.FilesDir(), key+"_"+base)
	if err := AtomicWriteFile(storagePath, data, 0o640); err != nil {
		return nil, fmt.Errorf("writing file %s: %w", base, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(base))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	rec := &core.FileRecord{
		ProjectID:   s.projectID,
		BranchID:    branchID,
		Filename:    base,
		DisplayName: displayName,
		FileKey:     key,
		StoragePath: storagePath,
		SizeBytes:   int64(len(data)),
		MimeType:    mimeType,
		CreatedAt:   time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO files (project_id, branch_id, filename, display_name, file_key, storage_path, size_bytes, mime_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ProjectID, rec.BranchID, rec.Filename, nullableText(rec.DisplayName),
		rec.FileKey, rec.StoragePath, rec.SizeBytes, rec.MimeType, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("recording file %s: %w", base, err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading file id: %w", err)
	}

	s.log.Info("file saved", "file", base, "bytes", rec.SizeBytes, "branch_id", branchID)
	return rec, nil
}

// ListFiles returns the file records belonging to the given branches, newest
// first.
func (s *ProjectStore) ListFiles(ctx context.Context, branchIDs []int64) ([]core.FileRecord, error) {
	if len(branchIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, project_id, branch_id, filename, display_name, file_key, storage_path, size_bytes, mime_type, created_at
		 FROM files WHERE project_id = ? AND branch_id IN (%s)
		 ORDER BY created_at DESC, id DESC`,
		sqltext.Int64List(branchIDs))
	rows, err := s.db.QueryContext(ctx, query, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var records []core.FileRecord
	for rows.Next() {
		var rec core.FileRecord
		var displayName, mimeType sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.BranchID, &rec.Filename, &displayName,
			&rec.FileKey, &rec.StoragePath, &rec.SizeBytes, &mimeType, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning file record: %w", err)
		}
		rec.DisplayName = displayName.String
		rec.MimeType = mimeType.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FileByID returns one file record from the ledger.
func (s *ProjectStore) FileByID(ctx context.Context, id int64) (*core.FileRecord, error) {
	var rec core.FileRecord
	var displayName, mimeType sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, branch_id, filename, display_name, file_key, storage_path, size_bytes, mime_type, created_at
		 FROM files WHERE project_id = ? AND id = ?`, s.projectID, id).
		Scan(&rec.ID, &rec.ProjectID, &rec.BranchID, &rec.Filename, &displayName,
			&rec.FileKey, &rec.StoragePath, &rec.SizeBytes, &mimeType, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("file", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("loading file %d: %w", id, err)
	}
	rec.DisplayName = displayName.String
	rec.MimeType = mimeType.String
	return &rec, nil
}

// FileContent returns a file record along with its stored bytes. The read
// is confined to the project's file area regardless of what the ledger's
// storage_path column says.
func (s *ProjectStore) FileContent(ctx context.Context, id int64) (*core.FileRecord, []byte, error) {
	rec, err := s.FileByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := fsutil.ReadFileUnder(s.FilesDir(), filepath.Base(rec.StoragePath))
	if err != nil {
		return nil, nil, fmt.Errorf("reading file %s: %w", rec.Filename, err)
	}
	return rec, data, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
