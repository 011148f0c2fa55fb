package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
protocols:
  habitron:
    enabled: true
    config_file: "configs/habitron.yaml"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Site: SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{
					Path: "/data/habitron.db",
				},
				MQTT: MQTTConfig{
					Broker: MQTTBrokerConfig{Port: 1883},
					QoS:    1,
				},
			},
			wantErr: false,
		},
		{
			name: "missing site ID",
			config: &Config{
				Site:     SiteConfig{ID: ""},
				Database: DatabaseConfig{Path: "/data/habitron.db"},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 1883}, QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: ""},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 1883}, QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			config: &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: "/data/habitron.db"},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 1883}, QoS: 3},
			},
			wantErr: true,
		},
		{
			name: "invalid broker port",
			config: &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: "/data/habitron.db"},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 0}, QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "bridge enabled without config file",
			config: &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: "/data/habitron.db"},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 1883}, QoS: 1},
				Protocols: ProtocolsConfig{
					Habitron: HabitronConfig{Enabled: true, ConfigFile: ""},
				},
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without token",
			config: &Config{
				Site:     SiteConfig{ID: "site-001"},
				Database: DatabaseConfig{Path: "/data/habitron.db"},
				MQTT:     MQTTConfig{Broker: MQTTBrokerConfig{Port: 1883}, QoS: 1},
				InfluxDB: InfluxDBConfig{Enabled: true, URL: "http://localhost:8086"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("HABITRON_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HABITRON_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HABITRON_MQTT_USERNAME", "testuser")
	t.Setenv("HABITRON_MQTT_PASSWORD", "testpass")
	t.Setenv("HABITRON_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HABITRON_BRIDGE_CONFIG", "/etc/habitron/bridge.yaml")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Protocols.Habitron.ConfigFile != "/etc/habitron/bridge.yaml" {
		t.Errorf("Protocols.Habitron.ConfigFile = %q, want %q",
			cfg.Protocols.Habitron.ConfigFile, "/etc/habitron/bridge.yaml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if !cfg.Protocols.Habitron.Enabled {
		t.Error("defaultConfig should enable the habitron bridge")
	}
}
