package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// moduleColumns is the column list shared by every module SELECT.
const moduleColumns = `id, router, addr, type_code, type_name, name, slug, kind,
	state, state_updated_at, health_status, health_last_seen, created_at, updated_at`

// Repository defines the interface for module persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a module by its unique identifier.
	// Returns ErrModuleNotFound if the module does not exist.
	GetByID(ctx context.Context, id string) (*Module, error)

	// GetByAddr retrieves a module by its bus location.
	// Returns ErrModuleNotFound if no module holds that address.
	GetByAddr(ctx context.Context, routerID, addr int) (*Module, error)

	// List retrieves all modules.
	List(ctx context.Context) ([]Module, error)

	// ListByRouter retrieves all modules on a specific router.
	ListByRouter(ctx context.Context, routerID int) ([]Module, error)

	// ListByKind retrieves all modules of a specific kind (output, dimmer, etc.).
	ListByKind(ctx context.Context, kind ModuleKind) ([]Module, error)

	// Create inserts a new module.
	// Returns ErrModuleExists if the ID or bus address is already taken.
	Create(ctx context.Context, module *Module) error

	// Update modifies an existing module.
	// Returns ErrModuleNotFound if the module does not exist.
	Update(ctx context.Context, module *Module) error

	// Delete removes a module by ID.
	// Returns ErrModuleNotFound if the module does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateState updates only the state fields of a module.
	// This is optimised for frequent state changes from the poll loop.
	UpdateState(ctx context.Context, id string, state State) error

	// UpdateHealth updates the health status and last seen timestamp.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error

	// UpdateHealthByRouter updates health for every module on a router.
	// Used when the router itself becomes unreachable or recovers.
	UpdateHealthByRouter(ctx context.Context, routerID int, status HealthStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a module by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	module, err := scanModuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module by id: %w", err)
	}
	return module, nil
}

// GetByAddr retrieves a module by its bus location.
func (r *SQLiteRepository) GetByAddr(ctx context.Context, routerID, addr int) (*Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE router = ? AND addr = ?`

	row := r.db.QueryRowContext(ctx, query, routerID, addr)
	module, err := scanModuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("querying module by address: %w", err)
	}
	return module, nil
}

// List retrieves all modules.
func (r *SQLiteRepository) List(ctx context.Context) ([]Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules ORDER BY router, addr`
	return r.queryModules(ctx, query)
}

// ListByRouter retrieves all modules on a specific router.
func (r *SQLiteRepository) ListByRouter(ctx context.Context, routerID int) ([]Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE router = ? ORDER BY addr`
	return r.queryModules(ctx, query, routerID)
}

// ListByKind retrieves all modules of a specific kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind ModuleKind) ([]Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE kind = ? ORDER BY router, addr`
	return r.queryModules(ctx, query, string(kind))
}

// Create inserts a new module.
func (r *SQLiteRepository) Create(ctx context.Context, module *Module) error {
	stateJSON, err := json.Marshal(module.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now

	query := `
		INSERT INTO modules (
			id, router, addr, type_code, type_name, name, slug, kind,
			state, state_updated_at, health_status, health_last_seen,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		module.ID,
		module.RouterID,
		module.Addr,
		module.TypeCode,
		module.TypeName,
		module.Name,
		module.Slug,
		string(module.Kind),
		string(stateJSON),
		nullableTime(module.StateUpdatedAt),
		string(module.HealthStatus),
		nullableTime(module.HealthLastSeen),
		module.CreatedAt.Format(time.RFC3339),
		module.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		// Check for unique constraint violation
		if isUniqueConstraintError(err) {
			return ErrModuleExists
		}
		return fmt.Errorf("inserting module: %w", err)
	}

	return nil
}

// Update modifies an existing module.
func (r *SQLiteRepository) Update(ctx context.Context, module *Module) error {
	stateJSON, err := json.Marshal(module.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	module.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE modules SET
			router = ?, addr = ?, type_code = ?, type_name = ?,
			name = ?, slug = ?, kind = ?, state = ?, state_updated_at = ?,
			health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		module.RouterID,
		module.Addr,
		module.TypeCode,
		module.TypeName,
		module.Name,
		module.Slug,
		string(module.Kind),
		string(stateJSON),
		nullableTime(module.StateUpdatedAt),
		string(module.HealthStatus),
		nullableTime(module.HealthLastSeen),
		module.UpdatedAt.Format(time.RFC3339),
		module.ID,
	)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrModuleNotFound
	}

	return nil
}

// Delete removes a module by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM modules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrModuleNotFound
	}

	return nil
}

// UpdateState merges the given state fields into the module's existing state.
// This allows partial updates (e.g., a mirror read refreshing sensors without
// losing channel state from the last compact poll).
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	// json_patch(target, patch) applies patch keys to target, preserving
	// existing keys not present in patch.
	query := `
		UPDATE modules
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(stateJSON),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating module state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrModuleNotFound
	}

	return nil
}

// UpdateHealth updates the health status and last seen timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE modules
		SET health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating module health: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrModuleNotFound
	}

	return nil
}

// UpdateHealthByRouter updates health for every module on a router.
func (r *SQLiteRepository) UpdateHealthByRouter(ctx context.Context, routerID int, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE modules
		SET health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE router = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		routerID,
	)
	if err != nil {
		return fmt.Errorf("updating router module health: %w", err)
	}

	return nil
}

// queryModules executes a query and returns a slice of modules.
func (r *SQLiteRepository) queryModules(ctx context.Context, query string, args ...any) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		module, err := scanModuleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		modules = append(modules, *module)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}

	return modules, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanModuleRow scans a row or rows result into a Module.
func scanModuleRow(scanner rowScanner) (*Module, error) {
	var m Module
	var stateUpdatedAt, healthLastSeen sql.NullString
	var stateJSON string
	var createdAt, updatedAt string
	var kind, healthStatus string

	err := scanner.Scan(
		&m.ID,
		&m.RouterID,
		&m.Addr,
		&m.TypeCode,
		&m.TypeName,
		&m.Name,
		&m.Slug,
		&kind,
		&stateJSON,
		&stateUpdatedAt,
		&healthStatus,
		&healthLastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = ModuleKind(kind)
	m.HealthStatus = HealthStatus(healthStatus)

	// Parse timestamps
	if stateUpdatedAt.Valid {
		t, err := time.Parse(time.RFC3339, stateUpdatedAt.String)
		if err == nil {
			m.StateUpdatedAt = &t
		}
	}
	if healthLastSeen.Valid {
		t, err := time.Parse(time.RFC3339, healthLastSeen.String)
		if err == nil {
			m.HealthLastSeen = &t
		}
	}

	var parseErr error
	m.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	m.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(stateJSON), &m.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}

	return &m, nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
