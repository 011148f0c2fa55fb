// Habitron Bridge Daemon
//
// This is the main entry point for the Habitron bridge daemon. It connects
// a Habitron SmartIP/SmartHub gateway to an MQTT broker:
//   - Enumerates the modules on the bus and keeps a local inventory
//   - Polls module status and publishes decoded state to MQTT
//   - Translates MQTT commands into bus frames
//   - Optionally records sensor telemetry to InfluxDB
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hbtn-io/habitron-bridge/migrations"

	"github.com/hbtn-io/habitron-bridge/internal/bridges/habitron"
	"github.com/hbtn-io/habitron-bridge/internal/device"
	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/config"
	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/database"
	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/influxdb"
	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/logging"
	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyRetention is how long decoded state snapshots are kept locally.
const historyRetention = 7 * 24 * time.Hour

// historyPruneInterval is how often the retention window is enforced.
const historyPruneInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Habitron bridge daemon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise module registry
	moduleRepo := device.NewSQLiteRepository(db.DB)
	moduleRegistry := device.NewRegistry(moduleRepo)
	moduleRegistry.SetLogger(log)

	if refreshErr := moduleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading module registry: %w", refreshErr)
	}
	log.Info("module registry initialised", "modules", moduleRegistry.GetModuleCount())

	// State history with a rolling retention window
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)
	go pruneHistoryLoop(ctx, historyRepo, log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start Habitron bridge (if enabled)
	var bridge *habitron.Bridge
	if cfg.Protocols.Habitron.Enabled {
		bridge, err = startHabitronBridge(ctx, cfg, mqttClient, moduleRegistry, historyRepo, influxClient, log)
		if err != nil {
			return fmt.Errorf("starting Habitron bridge: %w", err)
		}
		defer func() {
			log.Info("stopping Habitron bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("Habitron bridge disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Habitron bridge (if enabled)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Habitron bridge daemon stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HABITRON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HABITRON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bridge health is verified during Start() - it connects to the gateway
	// and sets up MQTT subscriptions before returning successfully.

	return nil
}

// pruneHistoryLoop enforces the state history retention window until the
// context is cancelled.
func pruneHistoryLoop(ctx context.Context, repo *device.SQLiteStateHistoryRepository, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.PruneHistory(ctx, historyRetention)
			if err != nil {
				log.Warn("pruning state history failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Debug("pruned state history", "deleted", deleted)
			}
		}
	}
}

// startHabitronBridge initialises and starts the Habitron protocol bridge.
//
// Parameters:
//   - ctx: Context for connection/cancellation
//   - cfg: Application configuration
//   - mqttClient: MQTT client for publishing/subscribing
//   - registry: Module registry for inventory and state persistence
//   - history: State history recorder
//   - influxClient: Telemetry sink (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *habitron.Bridge: Running Habitron bridge
//   - error: If bridge fails to start
func startHabitronBridge(
	ctx context.Context,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	registry *device.Registry,
	history *device.SQLiteStateHistoryRepository,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*habitron.Bridge, error) {
	// Load bridge configuration (gateway address, poll interval, identity)
	bridgeCfg, err := habitron.LoadConfig(cfg.Protocols.Habitron.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading Habitron bridge config: %w", err)
	}
	log.Info("Habitron bridge config loaded",
		"path", cfg.Protocols.Habitron.ConfigFile,
		"bridge_id", bridgeCfg.Bridge.ID,
	)

	// Determine the gateway address:
	// - If a host is configured, use it directly
	// - Otherwise, probe the local subnet for a SmartIP/SmartHub
	if bridgeCfg.Router.Host == "" {
		devices, discErr := habitron.Discover(bridgeCfg.GetDiscoveryTimeout())
		if discErr != nil {
			return nil, fmt.Errorf("discovering gateway: %w", discErr)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no Habitron gateway found on the local subnet")
		}
		if len(devices) > 1 {
			log.Warn("multiple gateways discovered, using the first",
				"count", len(devices),
			)
		}
		bridgeCfg.Router.Host = devices[0].IP
		log.Info("gateway discovered",
			"ip", devices[0].IP,
			"type", devices[0].Type,
			"serial", devices[0].Serial,
			"classic", devices[0].IsClassic(),
		)
	}

	// Create the gateway transport
	transport := habitron.NewClient(bridgeCfg.ToClientConfig())
	transport.SetLogger(log)

	// Create adapters to satisfy the bridge interfaces
	mqttAdapter := &mqttBridgeAdapter{client: mqttClient, log: log}
	store := &registryStore{registry: registry, history: history, log: log}

	var telemetry habitron.TelemetrySink
	if influxClient != nil {
		telemetry = &influxTelemetry{client: influxClient}
	}

	// Create the bridge
	bridge, err := habitron.NewBridge(habitron.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: mqttAdapter,
		Transport:  transport,
		Logger:     log,
		Registry:   store,
		Telemetry:  telemetry,
		Version:    version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Habitron bridge: %w", err)
	}

	// Start the bridge
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting Habitron bridge: %w", err)
	}
	log.Info("Habitron bridge started",
		"host", bridgeCfg.Router.Host,
		"router", bridgeCfg.Router.Index,
	)

	return bridge, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
	log    *logging.Logger
}

// Publish implements habitron.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements habitron.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements habitron.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements habitron.MQTTClient.
// Note: When wired into main.go, the MQTT client is owned by run(),
// so this is a no-op. The actual disconnect happens via the defer chain.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {
	// No-op: MQTT client lifecycle is managed by run()'s defer chain
}

// registryStore adapts the module registry to the bridge's ModuleStore
// interface: bus-level descriptors and records in, registry entities out.
type registryStore struct {
	registry *device.Registry
	history  *device.SQLiteStateHistoryRepository
	log      *logging.Logger
}

// UpsertModule implements habitron.ModuleStore.
func (s *registryStore) UpsertModule(ctx context.Context, router int, desc habitron.ModuleDescriptor) error {
	mt, known := habitron.LookupModuleType(desc.Type)
	if !known {
		s.log.Warn("unknown module type on bus",
			"router", router,
			"addr", desc.Addr,
			"type", fmt.Sprintf("%d/%d", desc.Type[0], desc.Type[1]),
		)
	}

	name := desc.Name
	if name == "" {
		name = fmt.Sprintf("%s %d", mt.Name, desc.Addr)
	}

	_, err := s.registry.UpsertFromBus(ctx, &device.Module{
		RouterID: router,
		Addr:     int(desc.Addr),
		TypeCode: int(desc.Type[0])<<8 | int(desc.Type[1]),
		TypeName: mt.Name,
		Name:     name,
		Kind:     kindForProfile(mt.Profile),
	})
	return err
}

// SetModuleState implements habitron.ModuleStore.
func (s *registryStore) SetModuleState(ctx context.Context, router int, record habitron.ModuleRecord) error {
	module, err := s.registry.GetModuleByAddr(ctx, router, int(record.Addr))
	if err != nil {
		return fmt.Errorf("resolving module %d/%d: %w", router, record.Addr, err)
	}

	state, err := recordToState(record)
	if err != nil {
		return fmt.Errorf("converting record for %d/%d: %w", router, record.Addr, err)
	}

	if err := s.registry.SetModuleState(ctx, module.ID, state); err != nil {
		return err
	}

	// History is best effort; a full disk must not stop the poll loop
	if histErr := s.history.RecordStateChange(ctx, module.ID, state, device.StateHistorySourcePoll); histErr != nil {
		s.log.Warn("recording state history failed", "module", module.ID, "error", histErr)
	}
	return nil
}

// SetRouterAvailability implements habitron.ModuleStore. The router's
// verdict is applied to every module behind it.
func (s *registryStore) SetRouterAvailability(ctx context.Context, router int, available bool) error {
	status := device.HealthStatusOnline
	if !available {
		status = device.HealthStatusOffline
	}
	return s.registry.SetRouterHealth(ctx, router, status)
}

// recordToState converts a decoded module record into a registry state map.
func recordToState(record habitron.ModuleRecord) (device.State, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var state device.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	// Identity fields live on the module row, not in its state
	delete(state, "addr")
	delete(state, "type_code")
	delete(state, "type_name")
	return state, nil
}

// kindForProfile maps a decode profile to a registry module kind.
func kindForProfile(p habitron.Profile) device.ModuleKind {
	switch p {
	case habitron.ProfileController:
		return device.KindController
	case habitron.ProfileOutput:
		return device.KindOutput
	case habitron.ProfileDimmer:
		return device.KindDimmer
	case habitron.ProfileUpDown:
		return device.KindCover
	case habitron.ProfileInput:
		return device.KindInput
	case habitron.ProfileDetect, habitron.ProfileNature:
		return device.KindSensor
	case habitron.ProfileEKey:
		return device.KindEKey
	default:
		return device.KindUnknown
	}
}

// influxTelemetry adapts the InfluxDB client to the bridge's TelemetrySink.
type influxTelemetry struct {
	client *influxdb.Client
}

// WriteModuleSensors implements habitron.TelemetrySink.
func (t *influxTelemetry) WriteModuleSensors(router int, record habitron.ModuleRecord) {
	for _, sensor := range record.Sensors {
		t.client.WriteModuleSensor(router, int(record.Addr), record.TypeName, sensor.Name, sensor.Value)
	}
}

// WriteRouterStatus implements habitron.TelemetrySink.
func (t *influxTelemetry) WriteRouterStatus(router int, state habitron.RouterRecord) {
	t.client.WriteRouterPower(router, state.Voltage5, state.Voltage24, state.Currents)
	t.client.WriteRouterAvailability(router, state.SystemOK)
}
