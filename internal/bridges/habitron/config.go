package habitron

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Habitron bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge    BridgeConfig      `yaml:"bridge"`
	Router    RouterSettings    `yaml:"router"`
	Discovery DiscoverySettings `yaml:"discovery"`
	MQTT      MQTTSettings      `yaml:"mqtt"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used in MQTT client ID and health reporting.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// RouterSettings contains the SmartIP/SmartHub connection settings.
type RouterSettings struct {
	// Host is the IP address or hostname of the SmartIP gateway.
	Host string `yaml:"host"`

	// Port is the command port. Default: 7777.
	Port int `yaml:"port"`

	// Index is the router number on the bus. Default: 1.
	Index int `yaml:"index"`

	// RequestTimeout bounds a single exchange (seconds).
	// Default: 15 seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// PollInterval is the status poll period (seconds).
	// Clamped to 4..60. Default: 10 seconds.
	PollInterval int `yaml:"poll_interval"`

	// FailureThreshold is how many consecutive failed polls mark the
	// router unavailable. Default: 3.
	FailureThreshold int `yaml:"failure_threshold"`
}

// DiscoverySettings controls UDP gateway discovery at startup.
type DiscoverySettings struct {
	// Enabled turns on the broadcast probe when no router host is
	// configured. Default: true.
	Enabled bool `yaml:"enabled"`

	// Timeout is how long to collect discovery replies (seconds).
	// Default: 3 seconds.
	Timeout int `yaml:"timeout"`
}

// MQTTSettings contains MQTT broker connection settings.
type MQTTSettings struct {
	// Broker is the MQTT broker URL.
	// Example: "tcp://localhost:1883"
	Broker string `yaml:"broker"`

	// ClientID is the MQTT client identifier.
	// Should be unique per bridge instance.
	// Default: bridge.id + "-mqtt"
	ClientID string `yaml:"client_id"`

	// Username for MQTT authentication (optional).
	Username string `yaml:"username"`

	// Password for MQTT authentication (optional).
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// QoS is the MQTT quality of service level (0, 1, or 2).
	// Default: 1 (at least once delivery).
	QoS int `yaml:"qos"`

	// KeepAlive is the MQTT keep-alive interval (seconds).
	// Default: 60 seconds.
	KeepAlive int `yaml:"keep_alive"`
}

// String returns a string representation with password masked.
// Use this for logging to prevent credential exposure.
func (m MQTTSettings) String() string {
	password := ""
	if m.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTSettings{Broker:%q, ClientID:%q, Username:%q, Password:%s, QoS:%d, KeepAlive:%d}",
		m.Broker, m.ClientID, m.Username, password, m.QoS, m.KeepAlive)
}

// MarshalJSON implements json.Marshaler to redact password in JSON output.
// This prevents accidental password exposure in logs or API responses.
func (m MQTTSettings) MarshalJSON() ([]byte, error) {
	type redacted MQTTSettings
	safe := redacted(m)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is the log output format: json or text.
	// Default: json
	Format string `yaml:"format"`
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HABITRON_BRIDGE_SECTION_KEY
// For example: HABITRON_BRIDGE_ROUTER_HOST, HABITRON_BRIDGE_MQTT_BROKER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "habitron-bridge-01",
			HealthInterval: 30,
		},
		Router: RouterSettings{
			Port:             DefaultCommandPort,
			Index:            1,
			RequestTimeout:   15,
			PollInterval:     int(DefaultPollInterval / time.Second),
			FailureThreshold: defaultFailureThreshold,
		},
		Discovery: DiscoverySettings{
			Enabled: true,
			Timeout: 3,
		},
		MQTT: MQTTSettings{
			Broker:    "tcp://localhost:1883",
			QoS:       1,
			KeepAlive: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HABITRON_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("HABITRON_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Router
	if v := os.Getenv("HABITRON_BRIDGE_ROUTER_HOST"); v != "" {
		cfg.Router.Host = v
	}
	if v := os.Getenv("HABITRON_BRIDGE_ROUTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Router.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("HABITRON_BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("HABITRON_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("HABITRON_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateBridge validates bridge settings.
func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

// validateRouter validates the gateway connection settings.
func (c *Config) validateRouter() []string {
	var errs []string
	if c.Router.Host == "" && !c.Discovery.Enabled {
		errs = append(errs, "router.host is required when discovery is disabled")
	}
	if c.Router.Host != "" {
		if ip := net.ParseIP(c.Router.Host); ip == nil && strings.ContainsAny(c.Router.Host, " /") {
			errs = append(errs, fmt.Sprintf("router.host %q is not a valid address", c.Router.Host))
		}
	}
	if c.Router.Port < 1 || c.Router.Port > 65535 {
		errs = append(errs, "router.port must be between 1 and 65535")
	}
	if c.Router.Index < 0 || c.Router.Index > 255 {
		errs = append(errs, "router.index must be between 0 and 255")
	}
	if c.Router.RequestTimeout < 1 {
		errs = append(errs, "router.request_timeout must be at least 1 second")
	}
	if min, max := int(MinPollInterval/time.Second), int(MaxPollInterval/time.Second); c.Router.PollInterval < min || c.Router.PollInterval > max {
		errs = append(errs, fmt.Sprintf("router.poll_interval must be between %d and %d seconds", min, max))
	}
	if c.Router.FailureThreshold < 1 {
		errs = append(errs, "router.failure_threshold must be at least 1")
	}
	return errs
}

// validateDiscovery validates discovery settings.
func (c *Config) validateDiscovery() []string {
	var errs []string
	if c.Discovery.Enabled && c.Discovery.Timeout < 1 {
		errs = append(errs, "discovery.timeout must be at least 1 second")
	}
	return errs
}

// validateMQTT validates MQTT broker settings.
func (c *Config) validateMQTT() []string {
	var errs []string
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// ToClientConfig converts settings to a ClientConfig for the transport.
func (c *Config) ToClientConfig() ClientConfig {
	return ClientConfig{
		Host:           c.Router.Host,
		Port:           c.Router.Port,
		RequestTimeout: time.Duration(c.Router.RequestTimeout) * time.Second,
	}
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetPollInterval returns the status poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return ClampPollInterval(time.Duration(c.Router.PollInterval) * time.Second)
}

// GetDiscoveryTimeout returns the discovery collection window as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// GetMQTTClientID returns the MQTT client ID, defaulting to bridge ID if not set.
func (c *Config) GetMQTTClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return c.Bridge.ID + "-mqtt"
}
