package mqtt

import "fmt"

// Topic prefixes for the Habitron MQTT hierarchy.
//
// All bridge topics use the flat scheme: habitron/{category}/{router}/{module}
// This matches the bridge's messages.go and all runtime subscribers.
const (
	// TopicPrefix is the base for all Habitron topics.
	TopicPrefix = "habitron"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "habitron/system"
)

// Topics provides builders for Habitron MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ModuleState(1, 3)
//	// Returns: "habitron/state/1/3"
type Topics struct{}

// ModuleState returns the topic for one module's decoded state.
//
// Example: habitron/state/1/3
func (Topics) ModuleState(router, module int) string {
	return fmt.Sprintf("%s/state/%d/%d", TopicPrefix, router, module)
}

// RouterState returns the topic for a router's own state.
//
// Example: habitron/state/1/router
func (Topics) RouterState(router int) string {
	return fmt.Sprintf("%s/state/%d/router", TopicPrefix, router)
}

// ModuleCommand returns the topic for commands to one module.
//
// Example: habitron/command/1/3
func (Topics) ModuleCommand(router, module int) string {
	return fmt.Sprintf("%s/command/%d/%d", TopicPrefix, router, module)
}

// ModuleAck returns the topic for command acknowledgements.
//
// Example: habitron/ack/1/3
func (Topics) ModuleAck(router, module int) string {
	return fmt.Sprintf("%s/ack/%d/%d", TopicPrefix, router, module)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: habitron/health
func (Topics) BridgeHealth() string {
	return TopicPrefix + "/health"
}

// Discovery returns the topic for gateway discovery announcements.
//
// Example: habitron/discovery
func (Topics) Discovery() string {
	return TopicPrefix + "/discovery"
}

// SystemStatus returns the system status topic.
//
// Example: habitron/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: habitron/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllModuleStates returns a pattern matching all module state updates.
//
// Pattern: habitron/state/+/+
func (Topics) AllModuleStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllModuleCommands returns a pattern matching all commands.
//
// Pattern: habitron/command/+/+
func (Topics) AllModuleCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllModuleAcks returns a pattern matching all acknowledgements.
//
// Pattern: habitron/ack/+/+
func (Topics) AllModuleAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Habitron topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: habitron/#
func (Topics) AllTopics() string {
	return "habitron/#"
}
