package scenario

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for scenario persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Scenario, error)
	List(ctx context.Context) ([]Scenario, error)
	Create(ctx context.Context, s *Scenario) error
	Update(ctx context.Context, s *Scenario) error
	Delete(ctx context.Context, id string) error
}

// scenarioColumns is the SELECT column list for scenario queries.
const scenarioColumns = `id, name, description, nodes, connections, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
// Nodes and connections are stored as JSON columns; the graph is always
// read and written as a whole.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a scenario by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	s, err := scanScenarioRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScenarioNotFound
		}
		return nil, fmt.Errorf("querying scenario by id: %w", err)
	}
	return s, nil
}

// List retrieves all scenarios ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []Scenario
	for rows.Next() {
		s, scanErr := scanScenarioRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning scenario: %w", scanErr)
		}
		scenarios = append(scenarios, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenarios: %w", err)
	}
	return scenarios, nil
}

// Create inserts a new scenario.
func (r *SQLiteRepository) Create(ctx context.Context, s *Scenario) error {
	nodesJSON, connectionsJSON, err := marshalGraph(s)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO scenarios (id, name, description, nodes, connections, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		nullableString(s.Description),
		nodesJSON,
		connectionsJSON,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrScenarioExists
		}
		return fmt.Errorf("inserting scenario: %w", err)
	}
	return nil
}

// Update modifies an existing scenario.
func (r *SQLiteRepository) Update(ctx context.Context, s *Scenario) error {
	nodesJSON, connectionsJSON, err := marshalGraph(s)
	if err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE scenarios SET
			name = ?, description = ?, nodes = ?, connections = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		nullableString(s.Description),
		nodesJSON,
		connectionsJSON,
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating scenario: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrScenarioNotFound
	}
	return nil
}

// Delete removes a scenario by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scenarios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting scenario: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrScenarioNotFound
	}
	return nil
}

// marshalGraph serialises the node and connection lists for storage.
func marshalGraph(s *Scenario) (string, string, error) {
	nodesJSON, err := json.Marshal(s.Nodes)
	if err != nil {
		return "", "", fmt.Errorf("marshalling nodes: %w", err)
	}
	connectionsJSON, err := json.Marshal(s.Connections)
	if err != nil {
		return "", "", fmt.Errorf("marshalling connections: %w", err)
	}
	return string(nodesJSON), string(connectionsJSON), nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenarioRow(scanner rowScanner) (*Scenario, error) {
	var s Scenario
	var description sql.NullString
	var nodesJSON, connectionsJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.Name,
		&description,
		&nodesJSON,
		&connectionsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		s.Description = &description.String
	}

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		s.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		s.UpdatedAt = t
	}

	if nodesJSON != "" && nodesJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(nodesJSON), &s.Nodes); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling nodes: %w", jsonErr)
		}
	}
	if s.Nodes == nil {
		s.Nodes = []Node{}
	}

	if connectionsJSON != "" && connectionsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(connectionsJSON), &s.Connections); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling connections: %w", jsonErr)
		}
	}
	if s.Connections == nil {
		s.Connections = []Connection{}
	}

	return &s, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
