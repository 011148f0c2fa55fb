package device

import "time"

// Module represents one Habitron module known to the daemon.
// This matches the database schema in migrations/20260810_120000_initial_schema.sql.
type Module struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Bus location
	RouterID int `json:"router_id"`
	Addr     int `json:"addr"`

	// Hardware classification
	TypeCode int        `json:"type_code"`
	TypeName string     `json:"type_name"`
	Kind     ModuleKind `json:"kind"`

	// Current state as last decoded from the bus
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	// Health monitoring
	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Module.
// The state map is cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (m *Module) DeepCopy() *Module {
	if m == nil {
		return nil
	}

	cpy := *m // Shallow copy of value fields

	cpy.State = deepCopyMap(m.State)

	// Pointer fields (*time.Time) don't need deep copy
	// because time.Time is immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// State holds the last decoded module state as a JSON map.
//
// Examples:
//   - Output module: {"outputs": [{"number": 0, "on": true}]}
//   - Room controller: {"sensors": [{"name": "temperature", "value": 21.5}], "mode": 75}
//   - Shutter module: {"covers": [{"number": 0, "position": 70, "tilt": 45}]}
type State map[string]any

// ModuleKind classifies what a module can do, derived from its hardware
// type at enumeration time.
type ModuleKind string

// ModuleKind constants.
const (
	KindController ModuleKind = "controller"
	KindOutput     ModuleKind = "output"
	KindDimmer     ModuleKind = "dimmer"
	KindCover      ModuleKind = "cover"
	KindInput      ModuleKind = "input"
	KindSensor     ModuleKind = "sensor"
	KindEKey       ModuleKind = "ekey"
	KindUnknown    ModuleKind = "unknown"
)

// AllModuleKinds returns all valid module kind values.
func AllModuleKinds() []ModuleKind {
	return []ModuleKind{
		KindController, KindOutput, KindDimmer, KindCover,
		KindInput, KindSensor, KindEKey, KindUnknown,
	}
}

// HealthStatus represents the module health state.
type HealthStatus string

// HealthStatus constants.
const (
	HealthStatusOnline   HealthStatus = "online"
	HealthStatusOffline  HealthStatus = "offline"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}
}
