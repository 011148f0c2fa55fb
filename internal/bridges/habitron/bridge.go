package habitron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// commandTopicParts is the exact part count of a command topic:
	// habitron/command/<router>/<module>.
	commandTopicParts = 4

	// commandTimeout is the timeout for sending commands to the gateway.
	commandTimeout = 5 * time.Second

	// enumerateTimeout bounds the startup module enumeration.
	enumerateTimeout = 30 * time.Second
)

// Bridge orchestrates bidirectional translation between the Habitron bus
// and MQTT. It handles:
//   - Receiving commands via MQTT and translating them to bus frames
//   - Polling module status and publishing decoded state updates to MQTT
//   - Module enumeration, health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *Config
	mqtt      MQTTClient
	transport Connector
	builder   *Builder
	health    *HealthReporter
	poller    *Poller
	decoder   *Decoder
	registry  ModuleStore   // Optional persistence for module inventory/state
	telemetry TelemetrySink // Optional sensor telemetry sink

	// Module inventory (built from enumeration)
	modules   map[byte]ModuleDescriptor
	modulesMu sync.RWMutex

	// Published-state cache for per-module change suppression
	stateCache   map[byte][]byte
	stateCacheMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// ModuleStore provides module inventory and state persistence.
// This interface is satisfied by *device.Registry (via adapter in main.go).
// It is optional - if nil, the bridge operates without persistence.
type ModuleStore interface {
	// UpsertModule records an enumerated module.
	UpsertModule(ctx context.Context, router int, desc ModuleDescriptor) error

	// SetModuleState stores the latest decoded state for a module.
	SetModuleState(ctx context.Context, router int, record ModuleRecord) error

	// SetRouterAvailability records the router's availability verdict.
	SetRouterAvailability(ctx context.Context, router int, available bool) error
}

// TelemetrySink receives decoded sensor readings for long-term storage.
// This is optional - if nil, the bridge operates without telemetry.
type TelemetrySink interface {
	// WriteModuleSensors stores the sensor readings of one module record.
	WriteModuleSensors(router int, record ModuleRecord)

	// WriteRouterStatus stores the router's own readings.
	WriteRouterStatus(router int, state RouterRecord)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Transport is the gateway connection.
	Transport Connector

	// Logger is optional structured logger.
	Logger Logger

	// Registry is optional module store for inventory/state persistence.
	// If nil, the bridge operates without persistence.
	Registry ModuleStore

	// Telemetry is optional sensor telemetry sink.
	// If nil, the bridge operates without telemetry.
	Telemetry TelemetrySink

	// Version is the build version reported in health messages.
	// Empty means "dev".
	Version string
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		mqtt:       opts.MQTTClient,
		transport:  opts.Transport,
		builder:    NewBuilder(NewCatalog()),
		registry:   opts.Registry,  // May be nil (optional)
		telemetry:  opts.Telemetry, // May be nil (optional)
		modules:    make(map[byte]ModuleDescriptor),
		stateCache: make(map[byte][]byte),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	// Create health reporter
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   version,
		Router:    fmt.Sprintf("%s:%d", opts.Config.Router.Host, opts.Config.Router.Port),
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Transport: opts.Transport,
	})
	b.health.SetModuleCount(0) // Starts empty; updated after enumeration
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This enumerates the bus modules, subscribes to MQTT command topics,
// and starts the status poller and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Enumerate modules and build the decoder from their type codes
	if err := b.enumerateModules(ctx); err != nil {
		return fmt.Errorf("enumerating modules: %w", err)
	}

	// Subscribe to command topics
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Start the status poller
	b.poller = NewPoller(PollerConfig{
		Router:           b.cfg.Router.Index,
		Interval:         b.cfg.GetPollInterval(),
		FailureThreshold: b.cfg.Router.FailureThreshold,
		Transport:        b.transport,
		Builder:          b.builder,
		Decoder:          b.decoder,
		OnModules:        b.handleModuleRecords,
		OnRouter:         b.handleRouterState,
		OnAvailability:   b.handleAvailability,
	})
	b.poller.SetLogger(b.getLogger())
	b.poller.Start(ctx)

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial healthy status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.modulesMu.RLock()
	moduleCount := len(b.modules)
	b.modulesMu.RUnlock()

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"router", b.cfg.Router.Index,
		"modules", moduleCount)

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop polling before health so the final health report is quiet
		if b.poller != nil {
			b.poller.Stop()
		}

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// SuspendPolling pauses the status poller, for bulk maintenance operations.
func (b *Bridge) SuspendPolling() {
	if b.poller != nil {
		b.poller.Suspend()
	}
}

// ResumePolling re-enables the status poller.
func (b *Bridge) ResumePolling() {
	if b.poller != nil {
		b.poller.Resume()
	}
}

// enumerateModules asks the router for its module list and builds the
// decoder's type table from the reply.
func (b *Bridge) enumerateModules(ctx context.Context) error {
	enumCtx, cancel := context.WithTimeout(ctx, enumerateTimeout)
	defer cancel()

	frame, err := b.builder.GetModules(b.cfg.Router.Index)
	if err != nil {
		return err
	}
	resp, err := b.transport.SendReceive(enumCtx, frame)
	if err != nil {
		return err
	}
	descs, err := ParseModuleList(resp.Payload)
	if err != nil {
		return err
	}

	types := make(map[byte]ModuleTypeCode, len(descs))
	b.modulesMu.Lock()
	for _, d := range descs {
		b.modules[d.Addr] = d
		types[d.Addr] = d.Type
	}
	b.modulesMu.Unlock()
	b.decoder = NewDecoder(types)

	for _, d := range descs {
		mt, known := LookupModuleType(d.Type)
		if !known {
			b.logInfo("unknown module type, decoding degraded",
				"module", d.Addr, "type", fmt.Sprintf("%d/%d", d.Type[0], d.Type[1]))
		}
		b.logInfo("enumerated module",
			"module", d.Addr, "name", d.Name, "type", mt.Name)

		if b.registry != nil {
			if err := b.registry.UpsertModule(b.ctx, b.cfg.Router.Index, d); err != nil {
				b.logError("failed to persist module", err)
			}
		}
	}

	b.health.SetModuleCount(len(descs))
	return nil
}

// Modules returns the enumerated module inventory.
func (b *Bridge) Modules() []ModuleDescriptor {
	b.modulesMu.RLock()
	defer b.modulesMu.RUnlock()

	out := make([]ModuleDescriptor, 0, len(b.modules))
	for _, d := range b.modules {
		out = append(out, d)
	}
	return out
}

// handleModuleRecords publishes decoded module state from a changed poll.
func (b *Bridge) handleModuleRecords(records []ModuleRecord) {
	for _, rec := range records {
		msg := StateMessage{
			Router:    b.cfg.Router.Index,
			Module:    rec,
			Timestamp: time.Now().UTC(),
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			b.logError("failed to marshal state", err)
			continue
		}

		// The gate only filters whole status blocks; one module changing
		// republishes every record. Suppress per module here.
		if b.stateUnchanged(rec.Addr, payload) {
			continue
		}

		topic := StateTopic(b.cfg.Router.Index, rec.Addr)
		if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
			b.logError("failed to publish state", err)
			continue
		}

		if b.registry != nil {
			if err := b.registry.SetModuleState(b.ctx, b.cfg.Router.Index, rec); err != nil {
				b.logDebug("registry state update skipped",
					"module", rec.Addr, "reason", err.Error())
			}
		}
		if b.telemetry != nil {
			b.telemetry.WriteModuleSensors(b.cfg.Router.Index, rec)
		}
	}
}

// handleRouterState publishes the router's own decoded state.
func (b *Bridge) handleRouterState(state RouterRecord) {
	msg := RouterStateMessage{
		Router:    b.cfg.Router.Index,
		State:     state,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal router state", err)
		return
	}

	topic := RouterStateTopic(b.cfg.Router.Index)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish router state", err)
		return
	}

	if b.telemetry != nil {
		b.telemetry.WriteRouterStatus(b.cfg.Router.Index, state)
	}
}

// handleAvailability reacts to the poller's availability verdict.
func (b *Bridge) handleAvailability(available bool) {
	if available {
		b.logInfo("router available", "router", b.cfg.Router.Index)
	} else {
		b.logInfo("router unavailable", "router", b.cfg.Router.Index)
	}

	if b.registry != nil {
		if err := b.registry.SetRouterAvailability(b.ctx, b.cfg.Router.Index, available); err != nil {
			b.logDebug("registry availability update skipped", "reason", err.Error())
		}
	}

	// Force an immediate health publish so subscribers see the transition
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
}

// stateUnchanged checks if the new payload matches the cached one.
// Returns true if unchanged (should skip publish).
func (b *Bridge) stateUnchanged(addr byte, payload []byte) bool {
	// Strip the timestamp-independent part by comparing the module record
	// only. Marshaling includes the timestamp, so compare the record slice.
	start := bytes.Index(payload, []byte(`"module":`))
	end := bytes.LastIndex(payload, []byte(`,"timestamp"`))
	key := payload
	if start >= 0 && end > start {
		key = payload[start:end]
	}

	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if bytes.Equal(b.stateCache[addr], key) {
		return true
	}
	b.stateCache[addr] = append([]byte(nil), key...)
	return false
}

// ClearStateCache removes all entries from the published-state cache.
// Call after reconnects so every module republishes its full state.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[byte][]byte)
	b.stateCacheMu.Unlock()
}

// handleMQTTMessage routes incoming MQTT messages to the command handler.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[1] != "command" {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	router, err := strconv.Atoi(parts[2])
	if err != nil || router != b.cfg.Router.Index {
		b.logDebug("command for another router ignored", "topic", topic)
		return
	}
	module, err := strconv.Atoi(parts[3])
	if err != nil || module < 0 || module > 255 {
		b.logError("invalid module in topic", fmt.Errorf("topic: %s", topic))
		return
	}

	b.handleCommand(byte(module), payload)
}

// handleCommand processes a command message.
func (b *Bridge) handleCommand(module byte, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}

	b.logInfo("received command",
		"request_id", cmd.RequestID,
		"module", module,
		"action", cmd.Action)

	err := b.executeCommand(module, cmd)
	if err != nil {
		b.logError("command execution failed", err)
	}
	b.publishAck(module, cmd, err)
}

// executeCommand translates a command into a bus frame and sends it.
func (b *Bridge) executeCommand(module byte, cmd CommandMessage) error {
	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	router := b.cfg.Router.Index
	mod := int(module)

	frame, err := b.buildCommandFrame(router, mod, cmd)
	if err != nil {
		return err
	}

	if err := b.transport.SendOnly(ctx, frame); err != nil {
		return err
	}

	// The bus confirms actuator changes on the next status poll only.
	// Force the next cycle to decode so the change is not gated away.
	if b.poller != nil {
		b.poller.Resume()
	}
	return nil
}

// buildCommandFrame maps an action to its frame builder.
func (b *Bridge) buildCommandFrame(router, module int, cmd CommandMessage) ([]byte, error) {
	switch cmd.Action {
	case ActionSetOutput:
		return b.builder.SetOutput(router, module, cmd.Number, cmd.On)
	case ActionSetDimmer:
		return b.builder.SetDimmer(router, module, cmd.Number, int(cmd.Value))
	case ActionSetShutterPos:
		return b.builder.SetShutterPosition(router, module, cmd.Number, int(cmd.Value))
	case ActionSetBlindTilt:
		return b.builder.SetBlindTilt(router, module, cmd.Number, int(cmd.Value))
	case ActionSetSetpoint:
		return b.builder.SetSetpoint(router, module, cmd.Number, cmd.Value)
	case ActionSetFlag:
		return b.builder.SetFlag(router, module, cmd.Number, cmd.On)
	case ActionSetRGB:
		return b.builder.SetRGB(router, module, cmd.Number, cmd.On)
	case ActionCounterUp:
		return b.builder.CounterUp(router, module, cmd.Number)
	case ActionCounterDown:
		return b.builder.CounterDown(router, module, cmd.Number)
	case ActionCounterSet:
		return b.builder.CounterSet(router, module, cmd.Number, int(cmd.Value))
	case ActionCallCollCommand:
		return b.builder.CallCollCommand(router, cmd.Number)
	case ActionCallVisCommand:
		return b.builder.CallVisCommand(router, module, cmd.Number)
	case ActionSetGroupMode:
		mode, err := ParseGroupMode(cmd.Mode)
		if err != nil {
			return nil, err
		}
		return b.builder.SetGroupMode(router, cmd.Number, mode)
	case ActionSetDaytimeMode:
		mode, err := ParseDaytimeMode(cmd.Mode)
		if err != nil {
			return nil, err
		}
		return b.builder.SetDaytimeMode(router, cmd.Number, mode)
	case ActionSetAlarmMode:
		return b.builder.SetAlarmMode(router, cmd.Number, cmd.On)
	case ActionRebootModule:
		return b.builder.RebootModule(router, module)
	case ActionRebootRouter:
		return b.builder.RebootRouter(router)
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownCommand, cmd.Action)
	}
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(module byte, cmd CommandMessage, cmdErr error) {
	ack := NewAckMessage(cmd, cmdErr)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := AckTopic(b.cfg.Router.Index, module)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
	if b.poller != nil {
		b.poller.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for health and diagnostics.
type BridgeMetrics struct {
	Reachable      bool
	Status         string
	FramesSent     uint64
	FramesReceived uint64
	ModulesManaged int
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	b.modulesMu.RLock()
	moduleCount := len(b.modules)
	b.modulesMu.RUnlock()

	reachable := false
	var stats ClientStats
	status := "unreachable"

	if b.transport != nil {
		reachable = b.transport.Reachable()
		stats = b.transport.Stats()
		if reachable {
			status = "healthy"
		}
	}

	return BridgeMetrics{
		Reachable:      reachable,
		Status:         status,
		FramesSent:     stats.FramesSent,
		FramesReceived: stats.FramesReceived,
		ModulesManaged: moduleCount,
	}
}
