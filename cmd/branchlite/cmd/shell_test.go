package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchlite/branchlite/internal/engine"
	"github.com/branchlite/branchlite/internal/logging"
	"github.com/branchlite/branchlite/internal/merge"
	"github.com/branchlite/branchlite/internal/store"
)

func newTestShell(t *testing.T) (*shellSession, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	log := logging.NewNop()

	stores, err := store.NewManager(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	p, err := stores.CreateProject(ctx, "demo")
	require.NoError(t, err)
	ps, err := stores.Project(ctx, p.ID)
	require.NoError(t, err)
	main, err := ps.MainBranch(ctx)
	require.NoError(t, err)

	a := &app{
		log:    log,
		stores: stores,
		eng:    engine.New(stores, log),
		merger: merge.New(stores, log),
	}
	sess := newShellSession(a, p, ps, main)
	buf := &bytes.Buffer{}
	sess.out = buf
	return sess, buf
}

func TestShellPrompt(t *testing.T) {
	sess, _ := newTestShell(t)
	assert.Equal(t, "demo/Main> ", sess.prompt())
}

func TestShellEmptyLine(t *testing.T) {
	sess, buf := newTestShell(t)
	require.NoError(t, sess.Execute(""))
	require.NoError(t, sess.Execute("   "))
	assert.Empty(t, buf.String())
}

func TestShellRunsSQL(t *testing.T) {
	sess, buf := newTestShell(t)

	require.NoError(t, sess.Execute(
		"CREATE TABLE tasks (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, project_id INTEGER, branch_id INTEGER)"))
	assert.Contains(t, buf.String(), "OK")

	buf.Reset()
	require.NoError(t, sess.Execute("INSERT INTO tasks (name) VALUES ('write docs')"))
	assert.Contains(t, buf.String(), "INSERT: 1 row")
	assert.Contains(t, buf.String(), "undo log id")

	buf.Reset()
	require.NoError(t, sess.Execute("SELECT name FROM tasks"))
	assert.Contains(t, buf.String(), "write docs")
	assert.Contains(t, buf.String(), "(1 row)")
}

func TestShellSQLErrorSurfaces(t *testing.T) {
	sess, _ := newTestShell(t)
	err := sess.Execute("SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_table")
}

func TestShellUndo(t *testing.T) {
	sess, buf := newTestShell(t)
	require.NoError(t, sess.Execute(
		"CREATE TABLE tasks (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, project_id INTEGER, branch_id INTEGER)"))
	require.NoError(t, sess.Execute("INSERT INTO tasks (name) VALUES ('one')"))

	buf.Reset()
	require.NoError(t, sess.Execute(`\undo`))
	assert.Contains(t, buf.String(), "reversed INSERT on tasks")

	buf.Reset()
	require.NoError(t, sess.Execute(`\undo`))
	assert.Contains(t, buf.String(), "nothing to undo")
}

func TestShellUndoBadID(t *testing.T) {
	sess, _ := newTestShell(t)
	err := sess.Execute(`\undo seven`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an integer")
}

func TestShellBranchCommands(t *testing.T) {
	sess, buf := newTestShell(t)
	ctx := context.Background()

	feature, err := sess.ps.CreateBranch(ctx, "feature")
	require.NoError(t, err)

	require.NoError(t, sess.Execute(`\branches`))
	assert.Contains(t, buf.String(), "* Main (default)")
	assert.Contains(t, buf.String(), "feature")

	buf.Reset()
	require.NoError(t, sess.Execute(`\branch feature`))
	assert.Contains(t, buf.String(), "Switched to branch 'feature'")
	assert.Equal(t, feature.ID, sess.branch.ID)

	err = sess.Execute(`\branch nope`)
	require.Error(t, err)
}

func TestShellMerge(t *testing.T) {
	sess, buf := newTestShell(t)
	ctx := context.Background()

	_, err := sess.ps.CreateBranch(ctx, "feature")
	require.NoError(t, err)

	err = sess.Execute(`\merge`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already on Main")

	require.NoError(t, sess.Execute(`\branch feature`))
	require.NoError(t, sess.Execute("INSERT INTO notes (title, content) VALUES ('plan', 'draft')"))

	buf.Reset()
	require.NoError(t, sess.Execute(`\merge`))
	assert.Contains(t, buf.String(), "Merged branch 'feature' into Main")
	assert.Contains(t, buf.String(), "notes:     1")
}

func TestShellTablesAndDescribe(t *testing.T) {
	sess, buf := newTestShell(t)

	require.NoError(t, sess.Execute(`\tables`))
	assert.Contains(t, buf.String(), "notes (branch-aware)")

	buf.Reset()
	require.NoError(t, sess.Execute(`\d notes`))
	assert.Contains(t, buf.String(), "title")
	assert.Contains(t, buf.String(), "Branch-aware: rows are scoped per branch")

	err := sess.Execute(`\d missing`)
	require.Error(t, err)
}

func TestShellUnknownCommand(t *testing.T) {
	sess, _ := newTestShell(t)
	err := sess.Execute(`\bogus`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command: \bogus`)
}

func TestShellHelp(t *testing.T) {
	sess, buf := newTestShell(t)
	require.NoError(t, sess.Execute(`\help`))
	assert.Contains(t, buf.String(), `\branch <name>`)
	assert.Contains(t, buf.String(), `\undo [id]`)
}
