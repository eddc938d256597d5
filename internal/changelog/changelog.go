// Package changelog records branch-scoped audit entries in a project store.
// Entries double as merge bookkeeping: a Main branch adopts a feature
// branch's entries during merge, deduplicated by (action, payload hash).
package changelog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/branchlite/branchlite/internal/core"
)

// Querier is the statement surface Append needs, satisfied by both *sql.DB
// and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Append inserts one entry and returns its id.
func Append(ctx context.Context, q Querier, e core.ChangelogEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO changelog (project_id, branch_id, action, input_json, output_json, summary_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.BranchID, e.Action,
		nullable(e.InputJSON), nullable(e.OutputJSON), nullable(e.Summary),
		e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("appending changelog entry: %w", err)
	}
	return res.LastInsertId()
}

// Record marshals the payloads and appends an entry. Payload marshaling
// failures degrade to empty payloads rather than losing the entry.
func Record(ctx context.Context, q Querier, projectID, branchID int64, action string, input, output map[string]any, summary string) (int64, error) {
	e := core.ChangelogEntry{
		ProjectID: projectID,
		BranchID:  branchID,
		Action:    action,
		Summary:   summary,
	}
	if input != nil {
		if data, err := json.Marshal(input); err == nil {
			e.InputJSON = string(data)
		}
	}
	if output != nil {
		if data, err := json.Marshal(output); err == nil {
			e.OutputJSON = string(data)
		}
	}
	return Append(ctx, q, e)
}

// RecentEntries returns up to limit entries for a branch, newest first.
func RecentEntries(ctx context.Context, q Querier, projectID, branchID int64, limit int) ([]core.ChangelogEntry, error) {
	return queryEntries(ctx, q,
		`SELECT id, project_id, branch_id, action, input_json, output_json, summary_text, created_at
		 FROM changelog WHERE project_id = ? AND branch_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		projectID, branchID, limit)
}

// EntriesAsc returns all entries for a branch, oldest first.
func EntriesAsc(ctx context.Context, q Querier, projectID, branchID int64) ([]core.ChangelogEntry, error) {
	return queryEntries(ctx, q,
		`SELECT id, project_id, branch_id, action, input_json, output_json, summary_text, created_at
		 FROM changelog WHERE project_id = ? AND branch_id = ?
		 ORDER BY created_at ASC, id ASC`,
		projectID, branchID)
}

func queryEntries(ctx context.Context, q Querier, query string, args ...any) ([]core.ChangelogEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying changelog: %w", err)
	}
	defer rows.Close()

	var entries []core.ChangelogEntry
	for rows.Next() {
		var e core.ChangelogEntry
		var input, output, summary sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.BranchID, &e.Action, &input, &output, &summary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning changelog entry: %w", err)
		}
		e.InputJSON = input.String
		e.OutputJSON = output.String
		e.Summary = summary.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PayloadHash returns the hex digest of a payload's canonical JSON form,
// object keys sorted. Entries with semantically equal inputs hash equal no
// matter how their JSON text was laid out. Non-JSON payloads hash as raw
// text; an absent payload hashes as JSON null.
func PayloadHash(payloadJSON string) string {
	var v any
	if strings.TrimSpace(payloadJSON) != "" {
		dec := json.NewDecoder(strings.NewReader(payloadJSON))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			sum := sha256.Sum256([]byte(payloadJSON))
			return hex.EncodeToString(sum[:])
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(payloadJSON)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DedupKey is the identity a merge uses to decide whether Main already has
// an equivalent entry.
func DedupKey(action, inputJSON string) string {
	return action + "\x00" + PayloadHash(inputJSON)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
