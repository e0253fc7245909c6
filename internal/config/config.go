package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	EnvPrefix = "DATASYNC_"
	EnvFile   = ".env"

	defaultCatalogURL = "redis://localhost:6379/0"
	defaultDataDir    = "data"
	defaultWorkers    = 10
)

type DownloaderConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	RetryMaxBackoff    time.Duration `yaml:"retry_max_backoff"`
	BufferSize         int           `yaml:"buffer_size"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type Config struct {
	CatalogURL  string           `yaml:"catalog_url"`
	DataDir     string           `yaml:"data_dir"`
	Workers     int              `yaml:"workers"`
	LogLevel    string           `yaml:"log_level"`
	MetricsFile string           `yaml:"metrics_file"`
	ReportFile  string           `yaml:"report_file"`
	Downloader  DownloaderConfig `yaml:"downloader"`
}

func (c *Config) SetDefaults() {
	c.CatalogURL = defaultCatalogURL
	c.DataDir = defaultDataDir
	c.Workers = defaultWorkers
	c.LogLevel = LogLevelInfo
	c.Downloader = DownloaderConfig{
		Timeout:         5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    300 * time.Millisecond,
		RetryMaxBackoff: 5 * time.Second,
		BufferSize:      8 * 1024,
	}
}

// Load builds the configuration with Read and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read builds the configuration from defaults, the optional YAML file at path,
// an optional .env file and DATASYNC_ environment variables, in that order.
// The result is not validated, callers layering more values on top validate
// once they are done.
func Read(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(EnvFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// LoadFromEnv loads the env files that exist into the process environment
// (without overriding variables already set) and applies DATASYNC_ variables.
func (c *Config) LoadFromEnv(envFiles ...string) error {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot load env file %s: %w", file, err)
		}
	}

	if v := os.Getenv(EnvPrefix + "CATALOG_URL"); v != "" {
		c.CatalogURL = v
	}
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv(EnvPrefix + "REPORT_FILE"); v != "" {
		c.ReportFile = v
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Downloader.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sRETRY_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Downloader.RetryAttempts = n
	}
	if v := os.Getenv(EnvPrefix + "INSECURE_SKIP_VERIFY"); v != "" {
		c.Downloader.InsecureSkipVerify = v == "true" || v == "1"
	}

	return nil
}

func (c *Config) Validate() error {
	if c.CatalogURL == "" {
		return errors.New("config: catalog_url is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}

	if c.Downloader.Timeout <= 0 {
		return errors.New("config: downloader.timeout must be positive")
	}
	if c.Downloader.RetryAttempts < 0 {
		return errors.New("config: downloader.retry_attempts must not be negative")
	}
	if c.Downloader.BufferSize <= 0 {
		return errors.New("config: downloader.buffer_size must be positive")
	}

	return nil
}
