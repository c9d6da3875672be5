package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the observatory supervisor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Scripts    ScriptsConfig    `yaml:"scripts"`
}

// SiteConfig describes the observatory site.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for ephemeris calculations.
// Longitude is positive east.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains HTTP control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live broadcast stream.
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
}

// RedisConfig configures the optional pass lease shared by several supervisors.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	// LeaseTTL is the pass lease lifetime in seconds.
	LeaseTTL int `yaml:"lease_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings, used when output is "file".
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the bearer token settings for the control API.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// SupervisorConfig controls the evaluation machine.
type SupervisorConfig struct {
	// Freq is the wake-up frequency in Hz. 0.01 means one pass every 100 seconds.
	Freq float64 `yaml:"freq"`

	// MaxDataAge is how old, in minutes, a weather reading may be before it is ignored.
	MaxDataAge int `yaml:"max_data_age"`

	// HandlerTimeout bounds each check and response call, in seconds. 0 disables it.
	HandlerTimeout int `yaml:"handler_timeout"`

	// Instruments maps supervised instrument names to their bridge identifiers.
	// Every entry gets a flag row, which makes it part of the "all instruments" open rule.
	Instruments map[string]string `yaml:"instruments"`

	// WeatherStations lists the bridge identifiers of the weather stations.
	WeatherStations []string `yaml:"weather_stations"`

	// Fans maps fan names to bridge identifiers.
	Fans map[string]string `yaml:"fans"`

	// Checklist is an optional provisioning file applied at startup.
	Checklist string `yaml:"checklist"`
}

// NotifierConfig configures operator notifications.
type NotifierConfig struct {
	// AskTimeout is the default wait, in seconds, for an operator answer.
	AskTimeout int `yaml:"ask_timeout"`
	// TopicPrefix is the MQTT prefix used for broadcast, ask and command topics.
	TopicPrefix string `yaml:"topic_prefix"`
}

// ScriptsConfig controls execute_script responses.
type ScriptsConfig struct {
	// Dir restricts scripts to this directory when set.
	Dir string `yaml:"dir"`
	// Timeout is the default script timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CHIMERA_SECTION_KEY
// For example: CHIMERA_DATABASE_PATH, CHIMERA_SUPERVISOR_FREQ
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "observatory",
			Name:     "Observatory",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/supervisor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "chimera-supervisor",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8088,
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
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Prefix:   "chimera:",
			LeaseTTL: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Supervisor: SupervisorConfig{
			Freq:           0.01,
			MaxDataAge:     10,
			HandlerTimeout: 300,
			Instruments: map[string]string{
				"site":      "site",
				"telescope": "telescope",
				"dome":      "dome",
			},
		},
		Notifier: NotifierConfig{
			AskTimeout:  60,
			TopicPrefix: "chimera",
		},
		Scripts: ScriptsConfig{
			Timeout: 600,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CHIMERA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHIMERA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CHIMERA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CHIMERA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CHIMERA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CHIMERA_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("CHIMERA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CHIMERA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CHIMERA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("CHIMERA_SUPERVISOR_FREQ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Supervisor.Freq = f
		}
	}

	if v := os.Getenv("CHIMERA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Supervisor.Freq <= 0 {
		errs = append(errs, "supervisor.freq must be positive")
	}
	if c.Supervisor.MaxDataAge <= 0 {
		errs = append(errs, "supervisor.max_data_age must be positive")
	}
	if c.Supervisor.HandlerTimeout < 0 {
		errs = append(errs, "supervisor.handler_timeout must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		// The API can open the dome, so it never runs unauthenticated.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the api is enabled (set CHIMERA_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// WakeInterval returns the period between evaluation passes derived from Freq.
func (c *Config) WakeInterval() time.Duration {
	if c.Supervisor.Freq <= 0 {
		return 100 * time.Second
	}
	return time.Duration(math.Round(float64(time.Second) / c.Supervisor.Freq))
}

// MaxDataAge returns the weather staleness window as a Duration.
func (c *Config) MaxDataAge() time.Duration {
	return time.Duration(c.Supervisor.MaxDataAge) * time.Minute
}

// HandlerTimeout returns the per-handler timeout as a Duration.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Supervisor.HandlerTimeout) * time.Second
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
