package habitron

import (
	"fmt"
	"time"
)

// MQTT topic layout. The bridge publishes state and health, and consumes
// commands:
//
//	habitron/state/<router>/<module>   decoded module state (retained)
//	habitron/state/<router>/router     decoded router state (retained)
//	habitron/command/<router>/<module> incoming commands
//	habitron/ack/<router>/<module>     command acknowledgements
//	habitron/health                    bridge health (retained, LWT)
const topicRoot = "habitron"

// StateTopic returns the topic for one module's decoded state.
func StateTopic(router int, module byte) string {
	return fmt.Sprintf("%s/state/%d/%d", topicRoot, router, module)
}

// RouterStateTopic returns the topic for the router's own state.
func RouterStateTopic(router int) string {
	return fmt.Sprintf("%s/state/%d/router", topicRoot, router)
}

// CommandTopic returns the topic commands for one module arrive on.
func CommandTopic(router int, module byte) string {
	return fmt.Sprintf("%s/command/%d/%d", topicRoot, router, module)
}

// CommandSubscribeTopic returns the wildcard subscription covering all
// command topics.
func CommandSubscribeTopic() string {
	return topicRoot + "/command/#"
}

// AckTopic returns the acknowledgement topic for one module.
func AckTopic(router int, module byte) string {
	return fmt.Sprintf("%s/ack/%d/%d", topicRoot, router, module)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return topicRoot + "/health"
}

// Command actions accepted on command topics.
const (
	ActionSetOutput       = "set_output"
	ActionSetDimmer       = "set_dimmer"
	ActionSetShutterPos   = "set_shutter_position"
	ActionSetBlindTilt    = "set_blind_tilt"
	ActionSetSetpoint     = "set_setpoint"
	ActionSetFlag         = "set_flag"
	ActionSetRGB          = "set_rgb"
	ActionCounterUp       = "counter_up"
	ActionCounterDown     = "counter_down"
	ActionCounterSet      = "counter_set"
	ActionCallCollCommand = "call_coll_command"
	ActionCallVisCommand  = "call_vis_command"
	ActionSetGroupMode    = "set_group_mode"
	ActionSetDaytimeMode  = "set_daytime_mode"
	ActionSetAlarmMode    = "set_alarm_mode"
	ActionRebootModule    = "reboot_module"
	ActionRebootRouter    = "reboot_router"
)

// CommandMessage is the JSON payload of an incoming command.
type CommandMessage struct {
	// RequestID correlates the acknowledgement with the command (optional).
	RequestID string `json:"request_id,omitempty"`

	// Action selects the operation, one of the Action constants.
	Action string `json:"action"`

	// Number addresses the channel (output, dimmer, cover, flag, counter,
	// group or command number depending on the action).
	Number int `json:"number,omitempty"`

	// On carries the desired state for switch-like actions.
	On bool `json:"on,omitempty"`

	// Value carries percentages, counter values or setpoints.
	Value float64 `json:"value,omitempty"`

	// Mode carries the group mode name for set_group_mode.
	Mode string `json:"mode,omitempty"`
}

// AckMessage is the JSON payload of a command acknowledgement.
type AckMessage struct {
	RequestID string    `json:"request_id,omitempty"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAckMessage creates an acknowledgement for a processed command.
func NewAckMessage(cmd CommandMessage, err error) AckMessage {
	ack := AckMessage{
		RequestID: cmd.RequestID,
		Action:    cmd.Action,
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		ack.Error = err.Error()
	}
	return ack
}

// StateMessage is the JSON payload of a module state publication.
type StateMessage struct {
	Router    int          `json:"router"`
	Module    ModuleRecord `json:"module"`
	Timestamp time.Time    `json:"timestamp"`
}

// RouterStateMessage is the JSON payload of a router state publication.
type RouterStateMessage struct {
	Router    int          `json:"router"`
	State     RouterRecord `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

// HealthStatus is the bridge's reported condition.
type HealthStatus string

// Health states.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
	HealthOffline  HealthStatus = "offline"
)

// HealthMessage is the JSON payload published on the health topic.
type HealthMessage struct {
	BridgeID      string       `json:"bridge_id"`
	Version       string       `json:"version"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	ModuleCount   int          `json:"module_count"`
	Router        string       `json:"router,omitempty"`
	Transport     ClientStats  `json:"transport"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewHealthMessage builds a health message from the current bridge state.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats ClientStats, moduleCount int, started time.Time) HealthMessage {
	return HealthMessage{
		BridgeID:      bridgeID,
		Version:       version,
		Status:        status,
		UptimeSeconds: int64(time.Since(started).Seconds()),
		ModuleCount:   moduleCount,
		Transport:     stats,
		Timestamp:     time.Now().UTC(),
	}
}

// NewLWTMessage builds the Last Will payload the broker publishes when the
// bridge drops off without a clean shutdown.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		BridgeID:  bridgeID,
		Status:    HealthOffline,
		Reason:    "connection lost",
		Timestamp: time.Now().UTC(),
	}
}
