package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LicenseConfig contains license engine configuration
type LicenseConfig struct {
	// WarningDays is the threshold below which a valid license reports
	// is_expiring_soon.
	WarningDays int `yaml:"warning_days" envconfig:"WARNING_DAYS" default:"7" validate:"gte=0"`
	// CheckInterval is the period of the background re-validation loop.
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"10s" validate:"required"`
	// ActivationRPS and ActivationBurst bound activation attempts so a
	// malfunctioning UI cannot hammer the registry.
	ActivationRPS   float64 `yaml:"activation_rps" envconfig:"ACTIVATION_RPS" default:"1"`
	ActivationBurst int     `yaml:"activation_burst" envconfig:"ACTIVATION_BURST" default:"5" validate:"gte=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/clinicore.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	LicenseFile  string `yaml:"license_file" envconfig:"LICENSE_FILE" default:"license.dat"`
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE" default:"registry.db"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CLINICORE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile reads a yaml config file. The struct is seeded with the
// declared defaults before unmarshalling, so a partial file overrides only
// the keys it names and never zeroes the rest.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := declaredDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// declaredDefaults returns a Config populated from the struct default tags
// only, ignoring the process environment.
func declaredDefaults() Config {
	var defaults Config
	_ = envconfig.Process("__CLINICORE_DEFAULTS__", &defaults)
	return defaults
}

// mergeConfigs overlays env values on top of file values. Environment wins
// for any field that differs from its declared default; every other field
// keeps the file value (itself default-filled by loadFromFile).
func mergeConfigs(file, env Config) Config {
	merged := file
	defaults := declaredDefaults()

	override(&merged.Server.Port, env.Server.Port, defaults.Server.Port)
	override(&merged.Server.ReadTimeout, env.Server.ReadTimeout, defaults.Server.ReadTimeout)
	override(&merged.Server.WriteTimeout, env.Server.WriteTimeout, defaults.Server.WriteTimeout)
	override(&merged.Server.IdleTimeout, env.Server.IdleTimeout, defaults.Server.IdleTimeout)
	override(&merged.Server.ShutdownTimeout, env.Server.ShutdownTimeout, defaults.Server.ShutdownTimeout)

	override(&merged.License.WarningDays, env.License.WarningDays, defaults.License.WarningDays)
	override(&merged.License.CheckInterval, env.License.CheckInterval, defaults.License.CheckInterval)
	override(&merged.License.ActivationRPS, env.License.ActivationRPS, defaults.License.ActivationRPS)
	override(&merged.License.ActivationBurst, env.License.ActivationBurst, defaults.License.ActivationBurst)

	override(&merged.Logging.Level, env.Logging.Level, defaults.Logging.Level)
	override(&merged.Logging.Output, env.Logging.Output, defaults.Logging.Output)
	override(&merged.Logging.FilePath, env.Logging.FilePath, defaults.Logging.FilePath)
	override(&merged.Logging.Development, env.Logging.Development, defaults.Logging.Development)

	override(&merged.Paths.DataDir, env.Paths.DataDir, defaults.Paths.DataDir)
	override(&merged.Paths.LicenseFile, env.Paths.LicenseFile, defaults.Paths.LicenseFile)
	override(&merged.Paths.RegistryFile, env.Paths.RegistryFile, defaults.Paths.RegistryFile)
	override(&merged.Paths.LogsDir, env.Paths.LogsDir, defaults.Paths.LogsDir)

	override(&merged.WebSocket.ReadBufferSize, env.WebSocket.ReadBufferSize, defaults.WebSocket.ReadBufferSize)
	override(&merged.WebSocket.WriteBufferSize, env.WebSocket.WriteBufferSize, defaults.WebSocket.WriteBufferSize)
	override(&merged.WebSocket.PingPeriod, env.WebSocket.PingPeriod, defaults.WebSocket.PingPeriod)
	override(&merged.WebSocket.PongWait, env.WebSocket.PongWait, defaults.WebSocket.PongWait)

	return merged
}

// override replaces *merged with the env value when it differs from the
// declared default, meaning it was set explicitly.
func override[T comparable](merged *T, env, def T) {
	if env != def {
		*merged = env
	}
}

// validate checks the configuration using struct tags
func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
