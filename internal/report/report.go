package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/engine"
)

// ErrReportNotFound is returned when an execution report does not exist.
var ErrReportNotFound = errors.New("report: report not found")

// Report is one finished execution: its summary row plus all unit
// results.
type Report struct {
	Summary engine.ExecutionSummary `json:"summary"`
	Units   []engine.UnitResult     `json:"units"`
}

// SQLiteRepository persists execution reports. It implements
// engine.ReportSink.
//
// Persistence only: formatting and delivery of results (dashboards,
// chat notifications) live outside the core.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed report repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveExecution writes a finished execution and its units in one
// transaction.
func (r *SQLiteRepository) SaveExecution(ctx context.Context, sum *engine.ExecutionSummary, units []engine.UnitResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (
			id, requester_name, device_count, scenario_count, repeat_count,
			units_total, units_passed, units_failed, units_cancelled, units_forced,
			started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ExecutionID,
		sum.RequesterName,
		sum.DeviceCount,
		sum.ScenarioCount,
		sum.RepeatCount,
		sum.UnitsTotal,
		sum.UnitsPassed,
		sum.UnitsFailed,
		sum.UnitsCancelled,
		sum.UnitsForced,
		sum.StartedAt.Format(time.RFC3339),
		sum.CompletedAt.Format(time.RFC3339),
		sum.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	for i := range units {
		u := &units[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO execution_units (
				id, execution_id, device_id, scenario_id, repetition,
				status, failed_node_id, message, started_at, completed_at, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.UnitID,
			u.ExecutionID,
			u.DeviceID,
			u.ScenarioID,
			u.Repetition,
			string(u.Status),
			nullableString(u.FailedNodeID),
			u.Message,
			nullableTime(u.StartedAt),
			nullableTime(u.CompletedAt),
			u.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("inserting execution unit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing report: %w", err)
	}
	return nil
}

// List returns recent execution summaries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]engine.ExecutionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, requester_name, device_count, scenario_count, repeat_count,
			units_total, units_passed, units_failed, units_cancelled, units_forced,
			started_at, completed_at, duration_ms
		FROM executions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var summaries []engine.ExecutionSummary
	for rows.Next() {
		sum, scanErr := scanSummary(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		summaries = append(summaries, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return summaries, nil
}

// Get returns one execution report with its units.
func (r *SQLiteRepository) Get(ctx context.Context, executionID string) (*Report, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, requester_name, device_count, scenario_count, repeat_count,
			units_total, units_passed, units_failed, units_cancelled, units_forced,
			started_at, completed_at, duration_ms
		FROM executions
		WHERE id = ?`, executionID)

	sum, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, device_id, scenario_id, repetition,
			status, failed_node_id, message, started_at, completed_at, duration_ms
		FROM execution_units
		WHERE execution_id = ?
		ORDER BY device_id, repetition`, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying execution units: %w", err)
	}
	defer rows.Close()

	report := &Report{Summary: *sum}
	for rows.Next() {
		unit, scanErr := scanUnit(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution unit: %w", scanErr)
		}
		report.Units = append(report.Units, *unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution units: %w", err)
	}
	return report, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(scanner rowScanner) (*engine.ExecutionSummary, error) {
	var sum engine.ExecutionSummary
	var startedAt, completedAt string

	err := scanner.Scan(
		&sum.ExecutionID,
		&sum.RequesterName,
		&sum.DeviceCount,
		&sum.ScenarioCount,
		&sum.RepeatCount,
		&sum.UnitsTotal,
		&sum.UnitsPassed,
		&sum.UnitsFailed,
		&sum.UnitsCancelled,
		&sum.UnitsForced,
		&startedAt,
		&completedAt,
		&sum.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	if t, parseErr := time.Parse(time.RFC3339, startedAt); parseErr == nil {
		sum.StartedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, completedAt); parseErr == nil {
		sum.CompletedAt = t
	}
	return &sum, nil
}

func scanUnit(scanner rowScanner) (*engine.UnitResult, error) {
	var u engine.UnitResult
	var status string
	var failedNodeID, message, startedAt, completedAt sql.NullString

	err := scanner.Scan(
		&u.UnitID,
		&u.ExecutionID,
		&u.DeviceID,
		&u.ScenarioID,
		&u.Repetition,
		&status,
		&failedNodeID,
		&message,
		&startedAt,
		&completedAt,
		&u.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	u.Status = engine.UnitStatus(status)
	if failedNodeID.Valid {
		u.FailedNodeID = failedNodeID.String
	}
	if message.Valid {
		u.Message = message.String
	}
	if startedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, startedAt.String); parseErr == nil {
			u.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			u.CompletedAt = &t
		}
	}
	return &u, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
