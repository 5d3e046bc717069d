// Package state provides persistence adapters for the analysis pipeline:
// a SQLite-backed store for durable deployments and an in-memory store for
// tests and ephemeral runs.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore is the durable persistence adapter. It implements the
// execution store, project store, snapshot store, and agent provider
// contracts on one SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	clock core.Clock
	mu    sync.Mutex // serializes multi-statement writes
}

// SQLiteOption configures the store.
type SQLiteOption func(*SQLiteStore)

// WithClock overrides the wall clock (for tests).
func WithClock(clock core.Clock) SQLiteOption {
	return func(s *SQLiteStore) {
		s.clock = clock
	}
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations. WAL mode is enabled for concurrent readers.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// --- ExecutionStore ---

// SaveExecution upserts the execution and its stage records in one
// transaction.
func (s *SQLiteStore) SaveExecution(ctx context.Context, exec *core.AnalysisExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	optionsJSON, err := json.Marshal(exec.Options)
	if err != nil {
		return fmt.Errorf("marshaling options: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (
			id, project_id, status, options, branch, commit_hash, tag,
			overall_score, error, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			options = excluded.options,
			overall_score = excluded.overall_score,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		string(exec.ID), exec.ProjectID, string(exec.Status), string(optionsJSON),
		exec.Revision.Branch, exec.Revision.Commit, exec.Revision.Tag,
		nullFloat(exec.OverallScore), exec.Error,
		formatTime(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting execution: %w", err)
	}

	for _, rec := range exec.Stages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stages (
				execution_id, stage, position, status, progress, message,
				started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id, stage) DO UPDATE SET
				status = excluded.status,
				progress = excluded.progress,
				message = excluded.message,
				started_at = excluded.started_at,
				completed_at = excluded.completed_at
		`,
			string(exec.ID), string(rec.Stage), core.StageOrder(rec.Stage),
			string(rec.Status), rec.Progress, rec.Message,
			nullTime(rec.StartedAt), nullTime(rec.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("upserting stage %s: %w", rec.Stage, err)
		}
	}

	return tx.Commit()
}

// GetExecution loads an execution with its stage records.
func (s *SQLiteStore) GetExecution(ctx context.Context, id core.ExecutionID) (*core.AnalysisExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, options, branch, commit_hash, tag,
		       overall_score, error, created_at, started_at, completed_at
		FROM executions WHERE id = ?
	`, string(id))

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("execution", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading execution: %w", err)
	}

	if err := s.loadStages(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// ListExecutions returns a project's executions, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, projectID string, limit int) ([]*core.AnalysisExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, status, options, branch, commit_hash, tag,
		       overall_score, error, created_at, started_at, completed_at
		FROM executions WHERE project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var execs []*core.AnalysisExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, exec := range execs {
		if err := s.loadStages(ctx, exec); err != nil {
			return nil, err
		}
	}
	return execs, nil
}

// FindActiveExecution returns the project's PENDING or RUNNING execution.
func (s *SQLiteStore) FindActiveExecution(ctx context.Context, projectID string) (*core.AnalysisExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, options, branch, commit_hash, tag,
		       overall_score, error, created_at, started_at, completed_at
		FROM executions
		WHERE project_id = ? AND status IN ('PENDING', 'RUNNING')
		ORDER BY created_at DESC LIMIT 1
	`, projectID)

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active execution: %w", err)
	}
	if err := s.loadStages(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *SQLiteStore) loadStages(ctx context.Context, exec *core.AnalysisExecution) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, status, progress, message, started_at, completed_at
		FROM stages WHERE execution_id = ? ORDER BY position
	`, string(exec.ID))
	if err != nil {
		return fmt.Errorf("loading stages: %w", err)
	}
	defer rows.Close()

	exec.Stages = exec.Stages[:0]
	for rows.Next() {
		var (
			rec                  core.StageRecord
			stage, status        string
			startedAt, completed sql.NullString
		)
		if err := rows.Scan(&stage, &status, &rec.Progress, &rec.Message, &startedAt, &completed); err != nil {
			return fmt.Errorf("scanning stage: %w", err)
		}
		rec.Stage = core.Stage(stage)
		rec.Status = core.StageStatus(status)
		rec.StartedAt = parseNullTime(startedAt)
		rec.CompletedAt = parseNullTime(completed)
		r := rec
		exec.Stages = append(exec.Stages, &r)
	}
	return rows.Err()
}

// SaveFindings replaces the stored finding set of an execution.
func (s *SQLiteStore) SaveFindings(ctx context.Context, id core.ExecutionID, findings []core.NormalizedFinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM findings WHERE execution_id = ?", string(id)); err != nil {
		return fmt.Errorf("clearing findings: %w", err)
	}
	for _, f := range findings {
		findingID := f.ID
		if findingID == "" {
			findingID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO findings (
				id, execution_id, file_path, line_start, line_end, severity,
				category, sub_category, rule_id, message, suggestion,
				explanation, deterministic
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			findingID, string(id), f.FilePath, f.LineStart, f.LineEnd,
			string(f.Severity), string(f.Category), f.SubCategory, f.RuleID,
			f.Message, f.Suggestion, f.Explanation, boolInt(f.Deterministic),
		)
		if err != nil {
			return fmt.Errorf("inserting finding: %w", err)
		}
	}
	return tx.Commit()
}

// GetFindings returns an execution's normalized findings.
func (s *SQLiteStore) GetFindings(ctx context.Context, id core.ExecutionID) ([]core.NormalizedFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, line_start, line_end, severity, category,
		       sub_category, rule_id, message, suggestion, explanation, deterministic
		FROM findings WHERE execution_id = ?
		ORDER BY file_path, line_start, rule_id
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("loading findings: %w", err)
	}
	defer rows.Close()

	var findings []core.NormalizedFinding
	for rows.Next() {
		var (
			f             core.NormalizedFinding
			sev, cat      string
			deterministic int
		)
		if err := rows.Scan(&f.ID, &f.FilePath, &f.LineStart, &f.LineEnd, &sev, &cat,
			&f.SubCategory, &f.RuleID, &f.Message, &f.Suggestion, &f.Explanation, &deterministic); err != nil {
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		f.Severity = core.Severity(sev)
		f.Category = core.Category(cat)
		f.Deterministic = deterministic != 0
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// --- ProjectStore ---

// SaveProject upserts a project record.
func (s *SQLiteStore) SaveProject(ctx context.Context, p *core.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, default_branch, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			default_branch = excluded.default_branch
	`, p.ID, p.Name, p.Path, p.DefaultBranch, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting project: %w", err)
	}
	return nil
}

// GetProject loads a project by id.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	var (
		p         core.Project
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, default_branch, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Path, &p.DefaultBranch, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// --- snapshot.Store ---

// CreateSnapshot persists an immutable snapshot. The unique constraint on
// execution_id rejects duplicate captures.
func (s *SQLiteStore) Create(ctx context.Context, params snapshot.CreateParams) (*snapshot.SnapshotMeta, error) {
	if params.ProjectID == "" {
		return nil, core.ErrValidation("MISSING_PROJECT", "project id is required")
	}
	if params.ExecutionID == "" {
		return nil, core.ErrValidation("MISSING_EXECUTION", "execution id is required")
	}

	checksum, err := snapshot.ComputeChecksum(params.Findings, params.Config, params.Revision.Commit)
	if err != nil {
		return nil, err
	}

	findingsJSON, err := json.Marshal(params.Findings)
	if err != nil {
		return nil, fmt.Errorf("marshaling findings: %w", err)
	}
	configJSON, err := json.Marshal(params.Config)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	versionsJSON, err := json.Marshal(params.Versions)
	if err != nil {
		return nil, fmt.Errorf("marshaling versions: %w", err)
	}

	meta := &snapshot.SnapshotMeta{
		ID:          uuid.NewString(),
		ProjectID:   params.ProjectID,
		ExecutionID: params.ExecutionID,
		Revision:    params.Revision,
		Checksum:    checksum,
		Stats: snapshot.Stats{
			TotalFindings:  len(params.Findings),
			SeverityCounts: core.CountBySeverity(params.Findings),
			OverallScore:   params.Score,
		},
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM snapshots WHERE execution_id = ?", string(params.ExecutionID)).Scan(&existing)
	if err == nil {
		return nil, core.ErrConflict(core.CodeDuplicateSnapshot,
			fmt.Sprintf("execution %s already has snapshot %s", params.ExecutionID, existing))
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking for duplicate snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			id, project_id, execution_id, branch, commit_hash, tag, checksum,
			config, versions, findings, total_findings, overall_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.ID, meta.ProjectID, string(meta.ExecutionID),
		meta.Revision.Branch, meta.Revision.Commit, meta.Revision.Tag,
		checksum, string(configJSON), string(versionsJSON), string(findingsJSON),
		meta.Stats.TotalFindings, meta.Stats.OverallScore, formatTime(meta.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}
	return meta, nil
}

// List returns a project's snapshot metadata, newest first.
func (s *SQLiteStore) List(ctx context.Context, projectID string, limit int) ([]*snapshot.SnapshotMeta, error) {
	query := `
		SELECT id, project_id, execution_id, branch, commit_hash, tag,
		       checksum, findings, total_findings, overall_score, created_at
		FROM snapshots WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var metas []*snapshot.SnapshotMeta
	for rows.Next() {
		meta, _, err := scanSnapshotMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Load returns the full snapshot bundle.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, execution_id, branch, commit_hash, tag,
		       checksum, config, versions, findings, total_findings,
		       overall_score, created_at
		FROM snapshots WHERE id = ?
	`, id)

	var (
		snap                            snapshot.Snapshot
		execID, createdAt               string
		configJSON, versionsJSON, fJSON string
	)
	err := row.Scan(&snap.ID, &snap.ProjectID, &execID,
		&snap.Revision.Branch, &snap.Revision.Commit, &snap.Revision.Tag,
		&snap.Checksum, &configJSON, &versionsJSON, &fJSON,
		&snap.Stats.TotalFindings, &snap.Stats.OverallScore, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("snapshot", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	snap.ExecutionID = core.ExecutionID(execID)
	snap.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(configJSON), &snap.Config); err != nil {
		return nil, fmt.Errorf("decoding snapshot config: %w", err)
	}
	if err := json.Unmarshal([]byte(versionsJSON), &snap.Versions); err != nil {
		return nil, fmt.Errorf("decoding snapshot versions: %w", err)
	}
	if err := json.Unmarshal([]byte(fJSON), &snap.Findings); err != nil {
		return nil, fmt.Errorf("decoding snapshot findings: %w", err)
	}
	snap.Stats.SeverityCounts = core.CountBySeverity(snap.Findings)
	return &snap, nil
}

// Verify recomputes a stored snapshot's checksum against the stored value.
func (s *SQLiteStore) Verify(ctx context.Context, id string) (bool, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return false, err
	}
	computed, err := snapshot.ComputeChecksum(snap.Findings, snap.Config, snap.Revision.Commit)
	if err != nil {
		return false, err
	}
	return computed == snap.Checksum, nil
}

// --- AgentConfigProvider ---

// Agents returns the agent registry rows, sorted by priority then name.
// An empty table is an error so the caller can fall back to builtins.
func (s *SQLiteStore) Agents(ctx context.Context) ([]core.AgentConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, category, priority, enabled,
		       timeout_seconds, max_retries, prompt_ref, model_ref
		FROM agents
	`)
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	defer rows.Close()

	var agents []core.AgentConfig
	for rows.Next() {
		var (
			a              core.AgentConfig
			enabled, tmout int
		)
		if err := rows.Scan(&a.Name, &a.DisplayName, &a.Category, &a.Priority,
			&enabled, &tmout, &a.MaxRetries, &a.Prompt, &a.Model); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		a.Enabled = enabled != 0
		a.Timeout = time.Duration(tmout) * time.Second
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, core.ErrNotFound("agents", "registry table is empty")
	}
	core.SortAgents(agents)
	return agents, nil
}

// SaveAgent upserts one agent registry row. Administrative surface; the
// pipeline itself only reads.
func (s *SQLiteStore) SaveAgent(ctx context.Context, a core.AgentConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (
			name, display_name, category, priority, enabled,
			timeout_seconds, max_retries, prompt_ref, model_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			category = excluded.category,
			priority = excluded.priority,
			enabled = excluded.enabled,
			timeout_seconds = excluded.timeout_seconds,
			max_retries = excluded.max_retries,
			prompt_ref = excluded.prompt_ref,
			model_ref = excluded.model_ref
	`, a.Name, a.DisplayName, a.Category, a.Priority, boolInt(a.Enabled),
		int(a.Timeout/time.Second), a.MaxRetries, a.Prompt, a.Model)
	if err != nil {
		return fmt.Errorf("upserting agent: %w", err)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*core.AnalysisExecution, error) {
	var (
		exec                 core.AnalysisExecution
		id, status, options  string
		score                sql.NullFloat64
		createdAt            string
		startedAt, completed sql.NullString
	)
	err := row.Scan(&id, &exec.ProjectID, &status, &options,
		&exec.Revision.Branch, &exec.Revision.Commit, &exec.Revision.Tag,
		&score, &exec.Error, &createdAt, &startedAt, &completed)
	if err != nil {
		return nil, err
	}
	exec.ID = core.ExecutionID(id)
	exec.Status = core.ExecutionStatus(status)
	if err := json.Unmarshal([]byte(options), &exec.Options); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	if score.Valid {
		v := score.Float64
		exec.OverallScore = &v
	}
	exec.CreatedAt = parseTime(createdAt)
	exec.StartedAt = parseNullTime(startedAt)
	exec.CompletedAt = parseNullTime(completed)
	return &exec, nil
}

func scanSnapshotMeta(row rowScanner) (*snapshot.SnapshotMeta, []core.NormalizedFinding, error) {
	var (
		meta              snapshot.SnapshotMeta
		execID, createdAt string
		findingsJSON      string
	)
	err := row.Scan(&meta.ID, &meta.ProjectID, &execID,
		&meta.Revision.Branch, &meta.Revision.Commit, &meta.Revision.Tag,
		&meta.Checksum, &findingsJSON, &meta.Stats.TotalFindings,
		&meta.Stats.OverallScore, &createdAt)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	meta.ExecutionID = core.ExecutionID(execID)
	meta.CreatedAt = parseTime(createdAt)

	var findings []core.NormalizedFinding
	if err := json.Unmarshal([]byte(findingsJSON), &findings); err != nil {
		return nil, nil, fmt.Errorf("decoding snapshot findings: %w", err)
	}
	meta.Stats.SeverityCounts = core.CountBySeverity(findings)
	return &meta, findings, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ core.ExecutionStore      = (*SQLiteStore)(nil)
	_ core.ProjectStore        = (*SQLiteStore)(nil)
	_ core.AgentConfigProvider = (*SQLiteStore)(nil)
	_ snapshot.Store           = (*SQLiteStore)(nil)
)
