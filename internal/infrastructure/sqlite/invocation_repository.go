package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/regcascade/internal/ledger"
)

const invocationColumns = `id, job, dialect, args, inputs, outputs, primary_output, status,
	exit_code, stderr, error, started_at, duration_ms`

// invocationRepository implements ledger.Repository using SQLite.
type invocationRepository struct {
	db *sql.DB
}

func newInvocationRepository(db *sql.DB) *invocationRepository {
	return &invocationRepository{db: db}
}

// Ensure invocationRepository implements ledger.Repository.
var _ ledger.Repository = (*invocationRepository)(nil)

func scanInvocation(scanner interface{ Scan(...any) error }) (*InvocationModel, error) {
	var m InvocationModel
	err := scanner.Scan(
		&m.ID, &m.Job, &m.Dialect, &m.Args, &m.Inputs, &m.Outputs, &m.PrimaryOutput, &m.Status,
		&m.ExitCode, &m.Stderr, &m.Error, &m.StartedAt, &m.DurationMs,
	)
	return &m, err
}

// Save inserts the record, replacing any row with the same id.
func (r *invocationRepository) Save(record *ledger.Record) error {
	if record.ID == "" {
		return fmt.Errorf("failed to save invocation: empty id")
	}
	m, err := toInvocationModel(record)
	if err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO invocations (`+invocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Job, m.Dialect, m.Args, m.Inputs, m.Outputs, m.PrimaryOutput, m.Status,
		m.ExitCode, m.Stderr, m.Error, m.StartedAt, m.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// FindByID looks a record up by id or unique id prefix.
func (r *invocationRepository) FindByID(id string) (*ledger.Record, error) {
	if id == "" {
		return nil, &ledger.NotFoundError{Key: id}
	}
	rows, err := r.db.Query(
		`SELECT `+invocationColumns+` FROM invocations WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, likePrefix(id), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find invocation: %w", err)
	}
	records, err := collect(rows)
	if err != nil {
		return nil, err
	}
	switch {
	case len(records) == 0:
		return nil, &ledger.NotFoundError{Key: id}
	case records[0].ID == id || len(records) == 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("invocation id prefix %q is ambiguous", id)
	}
}

// LatestForOutput returns the newest record whose primary output is output.
func (r *invocationRepository) LatestForOutput(output string) (*ledger.Record, error) {
	row := r.db.QueryRow(
		`SELECT `+invocationColumns+` FROM invocations WHERE primary_output = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		output,
	)
	m, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Key: output}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invocation by output: %w", err)
	}
	return m.toDomain()
}

// List returns records matching filter, newest first.
func (r *invocationRepository) List(filter ledger.ListFilter) ([]*ledger.Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.Job != "" {
		where = append(where, "job = ?")
		args = append(args, filter.Job)
	}
	if filter.Output != "" {
		where = append(where, "primary_output = ?")
		args = append(args, filter.Output)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + invocationColumns + ` FROM invocations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	return collect(rows)
}

// Close is a no-op; the connection belongs to DB.
func (r *invocationRepository) Close() error {
	return nil
}

func collect(rows *sql.Rows) ([]*ledger.Record, error) {
	defer func() { _ = rows.Close() }()

	var records []*ledger.Record
	for rows.Next() {
		m, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		rec, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocations: %w", err)
	}
	return records, nil
}

// likePrefix builds a LIKE pattern matching ids starting with s.
// Wildcards in s are dropped; ids are UUIDs and never contain them.
func likePrefix(s string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``).Replace(s) + "%"
}
