package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mysa-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Sync      SyncConfig      `yaml:"sync"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig identifies the single vendor account this process acts for.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// UpgradedLiteDevices lists device ids of BB-V2-L units whose cloud
	// metadata was upgraded to the full baseboard protocol.
	UpgradedLiteDevices []string `yaml:"upgraded_lite_devices"`
}

// CloudConfig contains vendor REST API and identity service settings.
type CloudConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	RequestTimeout int    `yaml:"request_timeout"`

	Region         string `yaml:"region"`
	UserPoolID     string `yaml:"user_pool_id"`
	ClientID       string `yaml:"client_id"`
	IdentityPoolID string `yaml:"identity_pool_id"`

	// RenewMargin is how long before expiry (seconds) a token is renewed.
	RenewMargin int `yaml:"renew_margin"`
}

// RealtimeConfig contains push channel (MQTT over signed WebSocket) settings.
type RealtimeConfig struct {
	Enabled        bool                    `yaml:"enabled"`
	Endpoint       string                  `yaml:"endpoint"`
	Path           string                  `yaml:"path"`
	Service        string                  `yaml:"service"`
	QoS            int                     `yaml:"qos"`
	KeepAlive      int                     `yaml:"keep_alive"`
	PingTimeout    int                     `yaml:"ping_timeout"`
	ConnectTimeout int                     `yaml:"connect_timeout"`
	Reconnect      RealtimeReconnectConfig `yaml:"reconnect"`
}

// RealtimeReconnectConfig contains reconnection backoff settings (seconds).
type RealtimeReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// SyncConfig contains polling and reconciliation settings (seconds).
type SyncConfig struct {
	PollInterval        int `yaml:"poll_interval"`
	HomeRefreshInterval int `yaml:"home_refresh_interval"`
	StaleGuard          int `yaml:"stale_guard"`
	EventBuffer         int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MYSA_SECTION_KEY
// For example: MYSA_DATABASE_PATH, MYSA_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
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

// Default returns the built-in configuration without reading a file.
// Account credentials still have to be supplied before Validate passes.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the production vendor endpoints.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL:        "https://app-prod.mysa.cloud",
			UserAgent:      "okhttp/4.11.0",
			RequestTimeout: 15,
			Region:         "us-east-1",
			UserPoolID:     "us-east-1_GUFWfhI7g",
			ClientID:       "19efs8tgqe942atbqmot5m36t3",
			IdentityPoolID: "us-east-1:ebd95d52-9995-45da-b059-56b865a18379",
			RenewMargin:    5,
		},
		Realtime: RealtimeConfig{
			Enabled:        true,
			Endpoint:       "a3q27gia9qg3zy-ats.iot.us-east-1.amazonaws.com",
			Path:           "/mqtt",
			Service:        "iotdevicegateway",
			QoS:            1,
			KeepAlive:      60,
			PingTimeout:    10,
			ConnectTimeout: 10,
			Reconnect: RealtimeReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Sync: SyncConfig{
			PollInterval:        120,
			HomeRefreshInterval: 1800,
			StaleGuard:          90,
			EventBuffer:         256,
		},
		Database: DatabaseConfig{
			Path:        "./data/mysa.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8089,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MYSA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account - the password should only ever come from the environment
	if v := os.Getenv("MYSA_USERNAME"); v != "" {
		cfg.Account.Username = v
	}
	if v := os.Getenv("MYSA_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Cloud
	if v := os.Getenv("MYSA_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}

	// Database
	if v := os.Getenv("MYSA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("MYSA_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MYSA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Account.Username == "" {
		errs = append(errs, "account.username is required (set MYSA_USERNAME)")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required (set MYSA_PASSWORD)")
	}

	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.RequestTimeout <= 0 {
		errs = append(errs, "cloud.request_timeout must be positive")
	}
	if c.Cloud.UserPoolID == "" || c.Cloud.ClientID == "" {
		errs = append(errs, "cloud.user_pool_id and cloud.client_id are required")
	}

	if c.Realtime.Enabled {
		if c.Realtime.Endpoint == "" {
			errs = append(errs, "realtime.endpoint is required when realtime is enabled")
		}
		if c.Realtime.QoS < 0 || c.Realtime.QoS > 2 {
			errs = append(errs, "realtime.qos must be 0, 1, or 2")
		}
		if c.Realtime.KeepAlive <= 0 || c.Realtime.PingTimeout <= 0 || c.Realtime.ConnectTimeout <= 0 {
			errs = append(errs, "realtime keep_alive, ping_timeout and connect_timeout must be positive")
		}
	}

	if c.Sync.PollInterval <= 0 {
		errs = append(errs, "sync.poll_interval must be positive")
	}
	if c.Sync.StaleGuard <= 0 {
		errs = append(errs, "sync.stale_guard must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeoutDuration returns the per-call HTTP timeout.
func (c CloudConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RenewMarginDuration returns the token renewal safety margin.
func (c CloudConfig) RenewMarginDuration() time.Duration {
	return time.Duration(c.RenewMargin) * time.Second
}

// PollIntervalDuration returns the HTTP polling cadence.
func (c SyncConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// HomeRefreshDuration returns the home/electricity-rate refresh cadence.
func (c SyncConfig) HomeRefreshDuration() time.Duration {
	return time.Duration(c.HomeRefreshInterval) * time.Second
}

// StaleGuardDuration returns the pending-command guard window.
func (c SyncConfig) StaleGuardDuration() time.Duration {
	return time.Duration(c.StaleGuard) * time.Second
}

// ReadDuration returns the API read timeout as a Duration.
func (t APITimeoutConfig) ReadDuration() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteDuration returns the API write timeout as a Duration.
func (t APITimeoutConfig) WriteDuration() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleDuration returns the API idle timeout as a Duration.
func (t APITimeoutConfig) IdleDuration() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
