package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceMirror  = "mirror"
	StateHistorySourceCommand = "command"
)

// StateHistoryEntry represents a single module state change record.
//
// Each entry stores a full snapshot of the module state at the time the
// change was observed. This provides a local audit trail even when the
// time-series database is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// ModuleID is the unique identifier of the module.
	ModuleID string `json:"module_id"`

	// State is the JSON snapshot of the module state.
	State State `json:"state"`

	// Source identifies how the state change was recorded (poll, mirror, command).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves module state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records a module state change.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - moduleID: Unique module identifier
	//   - state: State snapshot to persist
	//   - source: Origin of the change (poll, mirror, command)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, moduleID string, state State, source string) error

	// GetHistory returns recent state change history for the module.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - moduleID: Unique module identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StateHistoryEntry: Ordered newest-first history entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, moduleID string, limit int) ([]StateHistoryEntry, error)
}
