package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the bot and the worker.
type CommonConfig struct {
	// Version of the common config.
	Version int `koanf:"version"`
	// Deployment name, e.g. "dev" or "prod". Sent in the upstream User-Agent.
	EnvName        string         `koanf:"env_name" validate:"required"`
	Debug          Debug          `koanf:"debug"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	Retry          Retry          `koanf:"retry"`
	PostgreSQL     PostgreSQL     `koanf:"postgresql"`
	Redis          Redis          `koanf:"redis"`
}

// IsProductionEnv reports whether the deployment name marks a production environment.
func IsProductionEnv(envName string) bool {
	return strings.Contains(strings.ToLower(envName), "prod")
}

// BotConfig contains Discord and API specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int     `koanf:"version"`
	Discord Discord `koanf:"discord"`
	API     API     `koanf:"api"`
}

// WorkerConfig contains scheduled job configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Path to the style vocabulary file.
	StylesFile    string        `koanf:"styles_file" validate:"required"`
	Upstream      Upstream      `koanf:"upstream"`
	Schedule      Schedule      `koanf:"schedule"`
	Notifications Notifications `koanf:"notifications"`
}

// Debug contains logging configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
	// Log format (console, json).
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=console json"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// CircuitBreaker contains circuit breaker configuration for upstream requests.
type CircuitBreaker struct {
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period of the closed state for the circuit breaker to clear the internal counts.
	Interval int `koanf:"interval"`
	// The period of the open state after which the state of the circuit breaker becomes half-open.
	Timeout int `koanf:"timeout"`
}

// Retry contains retry configuration for upstream requests.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Full connection URL. Takes precedence over the discrete fields when set.
	DSN string `koanf:"dsn"`
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Full connection URL. Takes precedence over the discrete fields when set.
	URL string `koanf:"url"`
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Bot token used for REST calls and the gateway.
	Token string `koanf:"token"`
	// Application ID used for command registration.
	AppID uint64 `koanf:"app_id"`
	// Hex encoded Ed25519 public key for interaction signatures.
	PublicKey string `koanf:"public_key" validate:"omitempty,hexadecimal,len=64"`
	// Verify signatures on the HTTP interaction endpoint.
	VerifySignatures bool `koanf:"verify_signatures"`
	// Connect to the gateway to receive slash commands.
	EnableGateway bool `koanf:"enable_gateway"`
	// Timeout for each outbound Discord request in milliseconds.
	RequestTimeout int `koanf:"request_timeout" validate:"gte=0"`
}

// API contains admin and interaction HTTP server configuration.
type API struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port" validate:"gte=0,lte=65535"`
	// Shared secret for admin routes.
	AdminKey string `koanf:"admin_key"`
	// Manual refresh triggers allowed per minute.
	TriggerRate int `koanf:"trigger_rate" validate:"gte=0"`
	// Burst size for manual refresh triggers.
	TriggerBurst int `koanf:"trigger_burst" validate:"gte=0"`
}

// Upstream contains the rotation and tagging service configuration.
type Upstream struct {
	// Rotation service endpoint returning the current month of maps.
	RotationURL string `koanf:"rotation_url" validate:"required,url"`
	// Tagging service endpoint prefix, the map uid is appended.
	TaggingURL string `koanf:"tagging_url" validate:"required,url"`
	// Timeout for each upstream request in milliseconds.
	RequestTimeout int `koanf:"request_timeout" validate:"gte=0"`
	// Prefix of the User-Agent header, the env name is appended.
	UserAgent string `koanf:"user_agent"`
}

// Schedule contains the refresh schedule.
type Schedule struct {
	// Cron expression for the refresh job.
	RefreshCron string `koanf:"refresh_cron" validate:"required"`
	// IANA timezone the cron expression is evaluated in.
	Timezone string `koanf:"timezone" validate:"required"`
	// Job lock lease in seconds.
	LockTTL int `koanf:"lock_ttl" validate:"gte=0"`
}

// Notifications contains notification fan-out configuration.
type Notifications struct {
	// Whether notifications are enabled before an admin changes the setting.
	EnabledDefault bool `koanf:"enabled_default"`
	// Maximum concurrent sends per notify run.
	Concurrency int `koanf:"concurrency" validate:"gte=0"`
}

// LoadConfig loads the configuration from the default search paths.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".cotd",
		homeDir + "/.cotd/config",
		"/etc/cotd/config",
		"/app/config",
		"config",
		".",
	}

	return LoadConfigFromPaths(configPaths, os.LookupEnv)
}

// LoadConfigFromPaths loads common, bot and worker config files from the first
// path that has each of them, then applies environment overrides.
func LoadConfigFromPaths(configPaths []string, lookupEnv func(string) (string, bool)) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	configFiles := []string{"common", "bot", "worker"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	if err := applyEnvOverrides(&config, lookupEnv); err != nil {
		return nil, "", err
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/cotd/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
