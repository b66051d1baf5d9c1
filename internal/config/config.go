package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is constructed once at
// process start and passed by reference into the components that need it;
// nothing reads the environment at arbitrary call sites.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Checklist  ChecklistConfig  `mapstructure:"checklist"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ExtractionConfig holds configuration for the document extraction adapter.
// MockDataDir enables the deterministic override: when set, pre-recorded
// extraction results are read from disk and no network call is made.
type ExtractionConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MockDataDir string        `mapstructure:"mock_data_dir"`
}

// StorageConfig holds uploaded-file storage configuration.
type StorageConfig struct {
	Mode      string `mapstructure:"mode"` // "local" is the only supported mode
	UploadDir string `mapstructure:"upload_dir"`
}

// ChecklistConfig holds checklist validation configuration.
type ChecklistConfig struct {
	VendorRegistryPath string `mapstructure:"vendor_registry_path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/invoice_verifier.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Extraction defaults
	viper.SetDefault("extraction.model", "gpt-4o")
	viper.SetDefault("extraction.temperature", 0.1)
	viper.SetDefault("extraction.max_tokens", 4096)
	viper.SetDefault("extraction.timeout", 60*time.Second)
	viper.SetDefault("extraction.max_attempts", 3)
	viper.SetDefault("extraction.retry_delay", 2*time.Second)

	// Storage defaults
	viper.SetDefault("storage.mode", "local")
	viper.SetDefault("storage.upload_dir", "uploads")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials and test switches from environment
	viper.BindEnv("extraction.api_key", "OPENAI_API_KEY")
	viper.BindEnv("extraction.mock_data_dir", "MOCK_EXTRACTION_DATA_DIR")
	viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// The API key may be absent when the deterministic override is active;
	// the adapter reports a config failure at call time otherwise.
	if c.Extraction.APIKey == "" && c.Extraction.MockDataDir == "" {
		return fmt.Errorf("extraction.api_key is required when extraction.mock_data_dir is unset")
	}

	if c.Extraction.MaxAttempts < 1 {
		return fmt.Errorf("extraction.max_attempts must be at least 1")
	}

	if c.Storage.Mode != "local" {
		return fmt.Errorf("storage.mode %q is not supported", c.Storage.Mode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}
