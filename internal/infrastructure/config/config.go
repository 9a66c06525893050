package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for lidarlink.
// All configuration is loaded from YAML and can be overridden by environment
// variables and command-line flags.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Session     SessionConfig     `yaml:"session"`
	History     HistoryConfig     `yaml:"history"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InstrumentConfig describes how to reach the instrument's OPC UA server.
type InstrumentConfig struct {
	// URL is the server endpoint, e.g. "opc.tcp://10.0.0.5:4840".
	URL string `yaml:"url"`

	// NamespaceIndex is the namespace holding the instrument nodes.
	// Default: 2
	NamespaceIndex int `yaml:"namespace_index"`

	// ControlObject is the browse name of the object exposing remote methods.
	// Default: "LIDER"
	ControlObject string `yaml:"control_object"`

	// ControlFallback is tried when ControlObject cannot be resolved.
	// Default: "Controls"
	ControlFallback string `yaml:"control_fallback"`

	// DialTimeout bounds a single connect attempt (seconds).
	DialTimeout int `yaml:"dial_timeout"`

	// RequestTimeout bounds a single service request (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// AttributeFile optionally replaces the built-in attribute catalogue.
	AttributeFile string `yaml:"attribute_file,omitempty"`
}

// AcquisitionConfig selects and tunes the acquisition strategy.
type AcquisitionConfig struct {
	// PushPeriodMS is the publishing interval requested for change
	// subscriptions, in milliseconds. Default: 500
	PushPeriodMS int `yaml:"push_period_ms"`

	// PollRate is the polling interval in seconds. Zero selects push mode.
	PollRate float64 `yaml:"poll_rate"`

	// PollFloorMS is the minimum sleep between poll ticks (milliseconds).
	// Default: 1
	PollFloorMS int `yaml:"poll_floor_ms"`

	// PollFailureThreshold marks the session degraded after this many
	// consecutive failed poll ticks. 0 disables the check.
	PollFailureThreshold int `yaml:"poll_failure_threshold"`
}

// SessionConfig tunes liveness probing, reconnection and the command channel.
type SessionConfig struct {
	// ProbeInterval is the liveness probe period (seconds). Default: 5
	ProbeInterval int `yaml:"probe_interval"`

	// ReconnectBackoff is the fixed wait before each reconnect attempt
	// (seconds). Default: 10
	ReconnectBackoff int `yaml:"reconnect_backoff"`

	// CommandTimeout bounds a single method call or write (seconds).
	CommandTimeout int `yaml:"command_timeout"`

	// CommandQueueSize is the capacity of the command channel.
	CommandQueueSize int `yaml:"command_queue_size"`
}

// HistoryConfig contains in-memory history settings.
type HistoryConfig struct {
	// RetentionMinutes is the sliding window kept per attribute. Default: 10
	RetentionMinutes int `yaml:"retention_minutes"`

	// MaxRetentionMinutes caps runtime changes to the window. Default: 60
	MaxRetentionMinutes int `yaml:"max_retention_minutes"`
}

// DatabaseConfig contains SQLite database settings for the session journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// KeepDays bounds the journal's age. 0 keeps every event. Default: 30
	KeepDays int `yaml:"keep_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// StateInterval is how often the retained snapshot is republished
	// (seconds). Default: 30
	StateInterval int `yaml:"state_interval"`

	// PublishAttributes additionally publishes every sample on its
	// per-attribute topic.
	PublishAttributes bool `yaml:"publish_attributes"`

	// Commands enables the remote command subscription. Default: true
	Commands bool `yaml:"commands"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Measurement names the series written for telemetry samples.
	// Default: lidar
	Measurement string `yaml:"measurement"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Overrides carries command-line values. They are applied after the
// environment, so flags win over both the file and LIDARLINK_* variables.
type Overrides struct {
	// URL replaces instrument.url when non-empty.
	URL string

	// PollRate replaces acquisition.poll_rate when non-nil. Zero selects
	// push mode.
	PollRate *float64
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIDARLINK_SECTION_KEY
// For example: LIDARLINK_INSTRUMENT_URL, LIDARLINK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides is Load with command-line overrides applied last,
// before validation.
func LoadWithOverrides(path string, o Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if o.URL != "" {
		cfg.Instrument.URL = o.URL
	}
	if o.PollRate != nil {
		cfg.Acquisition.PollRate = *o.PollRate
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The instrument URL is taken from the legacy opcua_url environment
// variable when present; it still has to be non-empty before Validate passes.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			URL:             os.Getenv("opcua_url"),
			NamespaceIndex:  2,
			ControlObject:   "LIDER",
			ControlFallback: "Controls",
			DialTimeout:     10,
			RequestTimeout:  5,
		},
		Acquisition: AcquisitionConfig{
			PushPeriodMS: 500,
			PollFloorMS:  1,
		},
		Session: SessionConfig{
			ProbeInterval:    5,
			ReconnectBackoff: 10,
			CommandTimeout:   5,
			CommandQueueSize: 32,
		},
		History: HistoryConfig{
			RetentionMinutes:    10,
			MaxRetentionMinutes: 60,
		},
		Database: DatabaseConfig{
			Path:        "./data/lidarlink.db",
			WALMode:     true,
			BusyTimeout: 5,
			KeepDays:    30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lidarlink",
			},
			QoS:         1,
			TopicPrefix: "lidarlink",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StateInterval: 30,
			Commands:      true,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    5006,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     500,
			FlushInterval: 1,
			Measurement:   "lidar",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIDARLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Instrument
	if v := os.Getenv("LIDARLINK_INSTRUMENT_URL"); v != "" {
		cfg.Instrument.URL = v
	}
	if v := os.Getenv("LIDARLINK_ACQUISITION_POLL_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Acquisition.PollRate = rate
		}
	}

	// Database
	if v := os.Getenv("LIDARLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIDARLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIDARLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIDARLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LIDARLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LIDARLINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("LIDARLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LIDARLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Instrument validation
	if c.Instrument.URL == "" {
		errs = append(errs, "instrument.url is required (pass it as an argument or set LIDARLINK_INSTRUMENT_URL)")
	}
	if c.Instrument.NamespaceIndex < 0 || c.Instrument.NamespaceIndex > 65535 {
		errs = append(errs, "instrument.namespace_index must be between 0 and 65535")
	}
	if c.Instrument.RequestTimeout <= 0 {
		errs = append(errs, "instrument.request_timeout must be positive")
	}

	// Acquisition validation
	if c.Acquisition.PushPeriodMS <= 0 {
		errs = append(errs, "acquisition.push_period_ms must be positive")
	}
	if c.Acquisition.PollRate < 0 {
		errs = append(errs, "acquisition.poll_rate must not be negative")
	}
	if c.Acquisition.PollFloorMS < 1 {
		errs = append(errs, "acquisition.poll_floor_ms must be at least 1")
	}
	if c.Acquisition.PollFailureThreshold < 0 {
		errs = append(errs, "acquisition.poll_failure_threshold must not be negative")
	}

	// Session validation
	if c.Session.ProbeInterval <= 0 {
		errs = append(errs, "session.probe_interval must be positive")
	}
	if c.Session.ReconnectBackoff <= 0 {
		errs = append(errs, "session.reconnect_backoff must be positive")
	}
	if c.Session.CommandQueueSize <= 0 {
		errs = append(errs, "session.command_queue_size must be positive")
	}

	// History validation
	if c.History.RetentionMinutes < 0 {
		errs = append(errs, "history.retention_minutes must not be negative")
	}
	if c.History.MaxRetentionMinutes < c.History.RetentionMinutes {
		errs = append(errs, "history.max_retention_minutes must be at least history.retention_minutes")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.Database.KeepDays < 0 {
		errs = append(errs, "database.keep_days must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.StateInterval < 0 {
		errs = append(errs, "mqtt.state_interval must not be negative")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PushPeriod returns the subscription publishing interval as a Duration.
func (c *Config) PushPeriod() time.Duration {
	return time.Duration(c.Acquisition.PushPeriodMS) * time.Millisecond
}

// PollInterval returns the polling interval, or zero when push mode is selected.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Acquisition.PollRate * float64(time.Second))
}

// PollFloor returns the minimum sleep between poll ticks.
func (c *Config) PollFloor() time.Duration {
	return time.Duration(c.Acquisition.PollFloorMS) * time.Millisecond
}

// ProbeInterval returns the liveness probe period.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Session.ProbeInterval) * time.Second
}

// ReconnectBackoff returns the fixed wait before each reconnect attempt.
func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Session.ReconnectBackoff) * time.Second
}

// CommandTimeout returns the timeout for a single remote command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Session.CommandTimeout) * time.Second
}

// RequestTimeout returns the OPC UA request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Instrument.RequestTimeout) * time.Second
}

// DialTimeout returns the OPC UA dial timeout.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Instrument.DialTimeout) * time.Second
}

// JournalKeep returns how long journal events are kept, or 0 for forever.
func (c *Config) JournalKeep() time.Duration {
	return time.Duration(c.Database.KeepDays) * 24 * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
