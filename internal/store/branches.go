package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
)

// EnsureMainBranch returns the project's Main branch, creating it when the
// store has never seen one. Main is the default branch and is never deleted.
func (s *ProjectStore) EnsureMainBranch(ctx context.Context) (*core.Branch, error) {
	b, err := s.BranchByName(ctx, core.MainBranchName)
	if err == nil {
		return b, nil
	}
	if !core.IsCategory(err, core.ErrCatNotFound) {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO branches (project_id, name, is_default, created_at) VALUES (?, ?, 1, ?)`,
		s.projectID, core.MainBranchName, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating Main branch: %w", err)
	}
	return s.BranchByName(ctx, core.MainBranchName)
}

// MainBranch returns the project's Main branch.
func (s *ProjectStore) MainBranch(ctx context.Context) (*core.Branch, error) {
	return s.EnsureMainBranch(ctx)
}

// CreateBranch creates a named branch.
func (s *ProjectStore) CreateBranch(ctx context.Context, name string) (*core.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ErrValidation("EMPTY_BRANCH_NAME", "branch name must not be empty")
	}
	if strings.EqualFold(name, core.MainBranchName) {
		return nil, core.ErrValidation(core.CodeBranchReserved,
			fmt.Sprintf("branch name %q is reserved for the default branch", name))
	}
	if _, err := s.EnsureMainBranch(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (project_id, name, is_default, created_at) VALUES (?, ?, 0, ?)`,
		s.projectID, name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &core.DomainError{
				Category: core.ErrCatValidation,
				Code:     core.CodeBranchExists,
				Message:  fmt.Sprintf("branch already exists: %s", name),
			}
		}
		return nil, fmt.Errorf("creating branch %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading branch id: %w", err)
	}

	if _, err := changelog.Record(ctx, s.db, s.projectID, id, "branch.create",
		map[string]any{"name": name}, map[string]any{"branch_id": id},
		"created branch "+name); err != nil {
		s.log.Warn("changelog record failed", "action", "branch.create", "error", err)
	}

	s.log.Info("branch created", "branch", name, "branch_id", id)
	return &core.Branch{ID: id, ProjectID: s.projectID, Name: name, CreatedAt: now}, nil
}

// BranchByID loads one branch by id.
func (s *ProjectStore) BranchByID(ctx context.Context, id int64) (*core.Branch, error) {
	return s.scanBranch(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, is_default, created_at FROM branches WHERE project_id = ? AND id = ?`,
		s.projectID, id), strconv.FormatInt(id, 10))
}

// BranchByName loads one branch by name.
func (s *ProjectStore) BranchByName(ctx context.Context, name string) (*core.Branch, error) {
	return s.scanBranch(s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, is_default, created_at FROM branches WHERE project_id = ? AND name = ?`,
		s.projectID, name), name)
}

func (s *ProjectStore) scanBranch(row *sql.Row, ref string) (*core.Branch, error) {
	var b core.Branch
	var isDefault int
	err := row.Scan(&b.ID, &b.ProjectID, &b.Name, &isDefault, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errBranchNotFound(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("loading branch %s: %w", ref, err)
	}
	b.IsDefault = isDefault != 0
	return &b, nil
}

// ListBranches returns all branches in creation order, Main first.
func (s *ProjectStore) ListBranches(ctx context.Context) ([]core.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, is_default, created_at FROM branches WHERE project_id = ? ORDER BY id`,
		s.projectID)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	defer rows.Close()

	var branches []core.Branch
	for rows.Next() {
		var b core.Branch
		var isDefault int
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &isDefault, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning branch: %w", err)
		}
		b.IsDefault = isDefault != 0
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// ResolveBranch maps a requested branch name to a branch. Empty and unknown
// names resolve to Main.
func (s *ProjectStore) ResolveBranch(ctx context.Context, name string) (*core.Branch, error) {
	if strings.TrimSpace(name) == "" || name == core.MainBranchName {
		return s.EnsureMainBranch(ctx)
	}
	b, err := s.BranchByName(ctx, name)
	if err == nil {
		return b, nil
	}
	if core.IsCategory(err, core.ErrCatNotFound) {
		s.log.Warn("unknown branch, using Main", "requested", name)
		return s.EnsureMainBranch(ctx)
	}
	return nil, err
}

// ResolveBranchID maps a requested branch id to a branch. Zero and unknown
// ids resolve to Main.
func (s *ProjectStore) ResolveBranchID(ctx context.Context, id int64) (*core.Branch, error) {
	if id <= 0 {
		return s.EnsureMainBranch(ctx)
	}
	b, err := s.BranchByID(ctx, id)
	if err == nil {
		return b, nil
	}
	if core.IsCategory(err, core.ErrCatNotFound) {
		s.log.Warn("unknown branch id, using Main", "requested", id)
		return s.EnsureMainBranch(ctx)
	}
	return nil, err
}

// BranchFilterIDs returns the branch ids visible from b. Main rolls up every
// branch of the project; a feature branch sees Main plus itself.
func (s *ProjectStore) BranchFilterIDs(ctx context.Context, b *core.Branch) ([]int64, error) {
	if b.IsMain() {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM branches WHERE project_id = ? ORDER BY id`, s.projectID)
		if err != nil {
			return nil, fmt.Errorf("listing branch ids: %w", err)
		}
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scanning branch id: %w", err)
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	}

	main, err := s.EnsureMainBranch(ctx)
	if err != nil {
		return nil, err
	}
	return []int64{main.ID, b.ID}, nil
}

// DeleteBranch removes a branch together with every row scoped to it across
// all branch-aware tables and its stored files. Main is protected.
func (s *ProjectStore) DeleteBranch(ctx context.Context, branchID int64) error {
	b, err := s.BranchByID(ctx, branchID)
	if err != nil {
		return err
	}
	if b.IsMain() {
		return &core.DomainError{
			Category: core.ErrCatValidation,
			Code:     core.CodeBranchProtected,
			Message:  "the Main branch cannot be deleted",
		}
	}

	// Capture physical file paths before their ledger rows go away.
	files, err := s.ListFiles(ctx, []int64{branchID})
	if err != nil {
		return err
	}

	insp := schema.New(s.db)
	tables, err := insp.Tables(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning branch delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txInsp := schema.New(tx)
	for _, name := range tables {
		if name == "branches" || name == "schema_migrations" {
			continue
		}
		if !sqltext.IsSafeIdent(name) {
			s.log.Warn("skipping table with unsafe name during branch delete", "table", name)
			continue
		}
		tbl, err := txInsp.Describe(ctx, name)
		if err != nil {
			return err
		}
		if !tbl.BranchAware {
			continue
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE project_id = ? AND branch_id = ?`, sqltext.QuoteIdent(tbl.Name))
		if _, err := tx.ExecContext(ctx, query, s.projectID, branchID); err != nil {
			return fmt.Errorf("clearing %s: %w", tbl.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM branches WHERE project_id = ? AND id = ?`, s.projectID, branchID); err != nil {
		return fmt.Errorf("deleting branch row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing branch delete: %w", err)
	}

	for _, f := range files {
		if f.StoragePath == "" {
			continue
		}
		if err := os.Remove(f.StoragePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("removing branch file", "path", f.StoragePath, "error", err)
		}
	}

	if main, err := s.EnsureMainBranch(ctx); err == nil {
		if _, err := changelog.Record(ctx, s.db, s.projectID, main.ID, "branch.delete",
			map[string]any{"name": b.Name}, map[string]any{"branch_id": branchID},
			"deleted branch "+b.Name); err != nil {
			s.log.Warn("changelog record failed", "action", "branch.delete", "error", err)
		}
	}

	s.log.Info("branch deleted", "branch", b.Name, "branch_id", branchID)
	return nil
}

func errBranchNotFound(ref string) *core.DomainError {
	return &core.DomainError{
		Category: core.ErrCatNotFound,
		Code:     core.CodeBranchNotFound,
		Message:  "branch not found: " + ref,
	}
}
