package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for automation persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Automation CRUD
	GetByID(ctx context.Context, id string) (*Automation, error)
	List(ctx context.Context) ([]Automation, error)
	ListActive(ctx context.Context, ownerID string) ([]Automation, error)
	Create(ctx context.Context, a *Automation) error
	Update(ctx context.Context, a *Automation) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateRunStats(ctx context.Context, a *Automation) error
	Delete(ctx context.Context, id string) error

	// Run history
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, automationID string, limit int) ([]Run, error)
}

// automationColumns is the SELECT column list for automation queries.
const automationColumns = `id, name, description, owner_id, scope, trigger_type,
			trigger_config, actions_config, status, run_count, last_run_at, last_error,
			created_at, updated_at`

const runColumns = `id, automation_id, trigger_data, started_at, completed_at,
			action_results, success, error`

// Run history limits.
const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// SQLiteRepository implements Repository using SQLite.
// trigger_config and actions_config hold the trigger and actions as JSON.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves an automation by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = ?`

	a, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying automation by id: %w", err)
	}
	return a, nil
}

// List retrieves all automations ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations ORDER BY name, id`
	return r.queryAutomations(ctx, query)
}

// ListActive retrieves active automations, restricted to ownerID when it
// is non-empty.
func (r *SQLiteRepository) ListActive(ctx context.Context, ownerID string) ([]Automation, error) {
	if ownerID == "" {
		query := `SELECT ` + automationColumns + ` FROM automations WHERE status = ? ORDER BY name, id`
		return r.queryAutomations(ctx, query, string(StatusActive))
	}
	query := `SELECT ` + automationColumns + ` FROM automations
		WHERE status = ? AND owner_id = ? ORDER BY name, id`
	return r.queryAutomations(ctx, query, string(StatusActive), ownerID)
}

// Create inserts a new automation.
func (r *SQLiteRepository) Create(ctx context.Context, a *Automation) error {
	triggerJSON, actionsJSON, err := marshalDefinition(a)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `
		INSERT INTO automations (
			id, name, description, owner_id, scope, trigger_type,
			trigger_config, actions_config, status, run_count, last_run_at, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.Name,
		nullableString(a.Description),
		a.OwnerID,
		a.Scope,
		string(a.Trigger.Type),
		triggerJSON,
		actionsJSON,
		string(a.Status),
		a.RunCount,
		nullableTime(a.LastRunAt),
		nullableString(a.LastError),
		a.CreatedAt.Format(time.RFC3339),
		a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting automation: %w", err)
	}
	return nil
}

// Update modifies an existing automation's definition. Run statistics are
// left untouched; use UpdateRunStats for those.
func (r *SQLiteRepository) Update(ctx context.Context, a *Automation) error {
	triggerJSON, actionsJSON, err := marshalDefinition(a)
	if err != nil {
		return err
	}

	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automations SET
			name = ?, description = ?, owner_id = ?, scope = ?, trigger_type = ?,
			trigger_config = ?, actions_config = ?, status = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		a.Name,
		nullableString(a.Description),
		a.OwnerID,
		a.Scope,
		string(a.Trigger.Type),
		triggerJSON,
		actionsJSON,
		string(a.Status),
		a.UpdatedAt.Format(time.RFC3339),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating automation: %w", err)
	}
	return checkAffected(result, ErrNotFound)
}

// UpdateStatus changes an automation's status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating automation status: %w", err)
	}
	return checkAffected(result, ErrNotFound)
}

// UpdateRunStats stores run_count, last_run_at and last_error.
func (r *SQLiteRepository) UpdateRunStats(ctx context.Context, a *Automation) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automations SET run_count = ?, last_run_at = ?, last_error = ? WHERE id = ?`,
		a.RunCount, nullableTime(a.LastRunAt), nullableString(a.LastError), a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run stats: %w", err)
	}
	return checkAffected(result, ErrNotFound)
}

// Delete removes an automation and its run history.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, "DELETE FROM automation_runs WHERE automation_id = ?", id); err != nil {
		return fmt.Errorf("deleting runs: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM automations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting automation: %w", err)
	}
	if err := checkAffected(result, ErrNotFound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// SaveRun inserts a completed run.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run *Run) error {
	triggerJSON, err := json.Marshal(nonNilMap(run.TriggerData))
	if err != nil {
		return fmt.Errorf("marshalling trigger data: %w", err)
	}
	results := run.ActionResults
	if results == nil {
		results = []Result{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshalling action results: %w", err)
	}

	query := `
		INSERT INTO automation_runs (
			id, automation_id, trigger_data, started_at, completed_at,
			action_results, success, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.AutomationID,
		string(triggerJSON),
		run.StartedAt.Format(time.RFC3339Nano),
		nullableTimeNano(run.CompletedAt),
		string(resultsJSON),
		boolToInt(run.Success),
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM automation_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs of an automation, newest first.
// Run IDs are ULIDs, so ID order is start order.
func (r *SQLiteRepository) ListRuns(ctx context.Context, automationID string, limit int) ([]Run, error) {
	limit = clampRunLimit(limit)

	query := `SELECT ` + runColumns + ` FROM automation_runs
		WHERE automation_id = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func clampRunLimit(limit int) int {
	if limit <= 0 {
		return defaultRunLimit
	}
	return min(limit, maxRunLimit)
}

// queryAutomations executes a query and returns a slice of automations.
func (r *SQLiteRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying automations: %w", err)
	}
	defer rows.Close()

	var out []Automation
	for rows.Next() {
		a, scanErr := scanAutomation(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning automation: %w", scanErr)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automations: %w", err)
	}
	return out, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(scanner rowScanner) (*Automation, error) {
	var a Automation
	var description, lastRunAt, lastError sql.NullString
	var triggerType, triggerJSON, actionsJSON, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&a.ID,
		&a.Name,
		&description,
		&a.OwnerID,
		&a.Scope,
		&triggerType,
		&triggerJSON,
		&actionsJSON,
		&status,
		&a.RunCount,
		&lastRunAt,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		a.Description = &description.String
	}
	if lastError.Valid {
		a.LastError = &lastError.String
	}
	a.LastRunAt = parseNullableTime(lastRunAt)
	a.Status = Status(status)

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		a.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		a.UpdatedAt = t
	}

	if jsonErr := json.Unmarshal([]byte(triggerJSON), &a.Trigger); jsonErr != nil {
		return nil, fmt.Errorf("unmarshalling trigger_config: %w", jsonErr)
	}
	if a.Trigger.Type == "" {
		a.Trigger.Type = TriggerType(triggerType)
	}
	if actionsJSON != "" && actionsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(actionsJSON), &a.Actions); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling actions_config: %w", jsonErr)
		}
	}
	if a.Actions == nil {
		a.Actions = []Action{}
	}

	return &a, nil
}

func scanRun(scanner rowScanner) (*Run, error) {
	var run Run
	var triggerJSON, resultsJSON, startedAt string
	var completedAt, runErr sql.NullString
	var success int

	err := scanner.Scan(
		&run.ID,
		&run.AutomationID,
		&triggerJSON,
		&startedAt,
		&completedAt,
		&resultsJSON,
		&success,
		&runErr,
	)
	if err != nil {
		return nil, err
	}

	run.Success = success != 0
	if runErr.Valid {
		run.Error = &runErr.String
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	run.CompletedAt = parseNullableTime(completedAt)

	if jsonErr := json.Unmarshal([]byte(triggerJSON), &run.TriggerData); jsonErr != nil {
		return nil, fmt.Errorf("unmarshalling trigger_data: %w", jsonErr)
	}
	if jsonErr := json.Unmarshal([]byte(resultsJSON), &run.ActionResults); jsonErr != nil {
		return nil, fmt.Errorf("unmarshalling action_results: %w", jsonErr)
	}
	return &run, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func marshalDefinition(a *Automation) (triggerJSON, actionsJSON string, err error) {
	t, err := json.Marshal(a.Trigger)
	if err != nil {
		return "", "", fmt.Errorf("marshalling trigger: %w", err)
	}
	actions := a.Actions
	if actions == nil {
		actions = []Action{}
	}
	acts, err := json.Marshal(actions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(t), string(acts), nil
}

func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullableTimeNano(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
