package core

import "time"

// MainBranchName is the reserved default branch every project carries.
// Main is created lazily and can never be deleted or renamed.
const MainBranchName = "Main"

// Project is a registry entry owning one isolated store directory.
type Project struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Branch is a named workspace within a project. Rows in branch-aware tables
// are scoped to exactly one branch.
type Branch struct {
	ID        int64
	ProjectID int64
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

// IsMain reports whether this is the project's Main branch.
func (b Branch) IsMain() bool {
	return b.Name == MainBranchName
}

// StatementKind is the coarse classification of a SQL statement by its
// leading keyword.
type StatementKind string

const (
	StmtSelect StatementKind = "select"
	StmtInsert StatementKind = "insert"
	StmtUpdate StatementKind = "update"
	StmtDelete StatementKind = "delete"
	StmtOther  StatementKind = "other"
)

// Mutates reports whether statements of this kind write table rows and
// therefore capture undo state.
func (k StatementKind) Mutates() bool {
	switch k {
	case StmtInsert, StmtUpdate, StmtDelete:
		return true
	default:
		return false
	}
}

// UndoOp names the operation an undo log entry reverses.
type UndoOp string

const (
	UndoOpInsert UndoOp = "insert"
	UndoOpUpdate UndoOp = "update"
	UndoOpDelete UndoOp = "delete"
)

// UndoLogEntry is one persisted reversal record. RowsBefore holds the state
// an undo restores, RowsAfter the state it removes; which sides are populated
// depends on Op.
type UndoLogEntry struct {
	ID         int64
	ProjectID  int64
	BranchID   int64
	TableName  string
	Op         UndoOp
	SQLText    string
	PKColumns  []string
	RowsBefore []Row
	RowsAfter  []Row
	CreatedAt  time.Time
}

// ExecResult is the outcome of executing one SQL statement.
type ExecResult struct {
	Success   bool
	Kind      StatementKind
	Columns   []string
	Rows      [][]Value
	RowCount  int
	Truncated bool
	Error     string
	UndoLogID *int64
}

// UndoResult reports the outcome of an undo request. Undone false with a
// nil error means there was nothing to undo, which is not a failure.
type UndoResult struct {
	Undone  bool
	Entry   *UndoLogEntry
	Message string
}

// MergeSkip records one item a merge deliberately left alone.
type MergeSkip struct {
	Table  string
	Item   string
	Reason string
}

// MergeReport summarizes one branch-to-Main merge. Counts cover adopted
// items only; anything skipped is listed with its reason.
type MergeReport struct {
	SourceBranch     string
	Files            int
	Threads          int
	Datasets         int
	Notes            int
	Tables           int
	ChangelogAdopted int
	Skipped          []MergeSkip
}

// ChangelogEntry is one audit record of a branch-scoped action.
type ChangelogEntry struct {
	ID         int64
	ProjectID  int64
	BranchID   int64
	Action     string
	InputJSON  string
	OutputJSON string
	Summary    string
	CreatedAt  time.Time
}

// FileRecord is one uploaded file tracked by a project's file ledger.
type FileRecord struct {
	ID          int64
	ProjectID   int64
	BranchID    int64
	Filename    string
	DisplayName string
	FileKey     string
	StoragePath string
	SizeBytes   int64
	MimeType    string
	CreatedAt   time.Time
}

// Thread is one conversation thread tracked per branch.
type Thread struct {
	ID        int64
	ProjectID int64
	BranchID  int64
	Title     string
	CreatedAt time.Time
}

// Dataset is one named dataset registered per branch.
type Dataset struct {
	ID          int64
	ProjectID   int64
	BranchID    int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Note is one titled note kept per branch.
type Note struct {
	ID        int64
	ProjectID int64
	BranchID  int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
