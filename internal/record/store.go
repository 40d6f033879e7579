package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, fields map[string]any) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, scope, module string, limit int) ([]Record, error)
}

const recordColumns = `id, scope, module, data, created_by, created_at, updated_at`

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed record store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts rec, generating its ID when empty.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if strings.TrimSpace(rec.Scope) == "" || strings.TrimSpace(rec.Module) == "" {
		return fmt.Errorf("%w: scope and module are required", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshalling record data: %w", err)
	}

	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, scope, module, data, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Scope, rec.Module, string(data), nullable(rec.CreatedBy),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return rec, nil
}

// Update merges fields into the stored document (top-level keys replace
// existing ones) and returns the updated record.
func (s *SQLiteStore) Update(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying record: %w", err)
	}

	for k, v := range fields {
		rec.Data[k] = v
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("marshalling record data: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `UPDATE records SET data = ?, updated_at = ? WHERE id = ?`,
		string(data), rec.UpdatedAt.Format(time.RFC3339), id); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing record update: %w", err)
	}
	return rec, nil
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the newest records in a scope, optionally narrowed to a module.
func (s *SQLiteStore) List(ctx context.Context, scope, module string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	query := `SELECT ` + recordColumns + ` FROM records WHERE scope = ?`
	args := []any{scope}
	if module != "" {
		query += ` AND module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning record: %w", scanErr)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var data string
	var createdBy sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(&rec.ID, &rec.Scope, &rec.Module, &data, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		rec.CreatedBy = createdBy.String
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling record data: %w", err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
