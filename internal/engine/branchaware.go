package engine

import (
	"context"
	"fmt"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
)

// MakeBranchAware converts an existing table in place by adding the two
// scoping columns. Existing rows are assigned to Main, so nothing a caller
// could already see changes hands. The conversion keeps every other column
// definition as it was.
func (e *Engine) MakeBranchAware(ctx context.Context, projectID int64, table string) (*schema.Table, error) {
	ps, err := e.stores.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	insp := schema.New(ps.DB())
	tbl, err := insp.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	if tbl.BranchAware {
		return nil, core.ErrValidation(core.CodeAlreadyBranchAware,
			fmt.Sprintf("table %s is already branch-aware", tbl.Name))
	}
	main, err := ps.EnsureMainBranch(ctx)
	if err != nil {
		return nil, err
	}

	quoted := sqltext.QuoteIdent(tbl.Name)
	tx, err := ps.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	// ALTER TABLE cannot bind parameters, so the defaults are embedded as
	// integer literals. The backfill covers rows where the column default
	// did not apply.
	alters := []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER DEFAULT %d",
			quoted, schema.ProjectIDColumn, ps.ProjectID()),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER DEFAULT %d",
			quoted, schema.BranchIDColumn, main.ID),
	}
	for _, stmt := range alters {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
		}
	}
	backfill := fmt.Sprintf("UPDATE %s SET %s = %d, %s = %d WHERE %s IS NULL OR %s IS NULL",
		quoted, schema.ProjectIDColumn, ps.ProjectID(), schema.BranchIDColumn, main.ID,
		schema.ProjectIDColumn, schema.BranchIDColumn)
	if _, err := tx.ExecContext(ctx, backfill); err != nil {
		return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
	}

	var assigned int64
	_ = ps.DB().QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", quoted, schema.BranchIDColumn),
		main.ID).Scan(&assigned)

	log := ps.Log().WithTable(tbl.Name)
	if _, err := changelog.Record(ctx, ps.DB(), ps.ProjectID(), main.ID, "table.make_branch_aware",
		map[string]any{"table": tbl.Name}, map[string]any{"rows_assigned": assigned},
		"made table "+tbl.Name+" branch-aware"); err != nil {
		log.Warn("changelog record failed", "action", "table.make_branch_aware", "error", err)
	}

	converted, err := insp.Describe(ctx, tbl.Name)
	if err != nil {
		return nil, err
	}
	log.Info("table made branch-aware", "columns", len(converted.Columns))
	return converted, nil
}
