// Package config loads pipeline configuration from the environment,
// with an optional YAML service file. Environment variables override
// file values; CLI flags override both (applied by the commands).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openbim/ifcpipeline/internal/vol"
)

// Config holds the settings shared by the gateway, the workers and the
// cleanup command.
type Config struct {
	// APIKey is the expected X-API-Key value. Required for the gateway.
	APIKey string `yaml:"api_key"`

	// AllowedIPRanges is a comma-separated CIDR list that bypasses the
	// key check.
	AllowedIPRanges string `yaml:"allowed_ip_ranges"`

	// BrokerURL is the Redis connection string.
	BrokerURL string `yaml:"broker_url"`

	// QueueName selects which queue a worker process serves.
	QueueName string `yaml:"queue_name"`

	// GatewayAddr is the gateway listen address.
	GatewayAddr string `yaml:"gateway_addr"`

	// JobResultTTL is the retention of terminal job records.
	JobResultTTL time.Duration `yaml:"job_result_ttl"`

	// DownloadTokenTTL is the lifetime of download tokens.
	DownloadTokenTTL time.Duration `yaml:"download_token_ttl"`

	// UploadsDir, OutputDir, ExamplesDir are the shared volume roots.
	UploadsDir  string `yaml:"uploads_dir"`
	OutputDir   string `yaml:"output_dir"`
	ExamplesDir string `yaml:"examples_dir"`

	// CustomRecipesDir is scanned for custom patch recipes.
	CustomRecipesDir string `yaml:"custom_recipes_dir"`

	// ConverterBinDir holds the external transformation tools.
	ConverterBinDir string `yaml:"converter_bin_dir"`

	// CleanupMaxAge is the artifact age threshold for the sweeper.
	CleanupMaxAge time.Duration `yaml:"cleanup_max_age"`

	// UploadRateRPS and UploadRateBurst bound per-IP upload/download
	// traffic.
	UploadRateRPS   float64 `yaml:"upload_rate_rps"`
	UploadRateBurst int     `yaml:"upload_rate_burst"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	roots := vol.DefaultRoots()
	return Config{
		BrokerURL:        "redis://localhost:6379",
		GatewayAddr:      ":8000",
		JobResultTTL:     24 * time.Hour,
		DownloadTokenTTL: 30 * time.Minute,
		UploadsDir:       roots.Uploads,
		OutputDir:        roots.Output,
		ExamplesDir:      roots.Examples,
		CustomRecipesDir: "/recipes/custom",
		ConverterBinDir:  "/usr/local/bin",
		CleanupMaxAge:    7 * 24 * time.Hour,
		UploadRateRPS:    5,
		UploadRateBurst:  10,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and the environment, in that order.
func Load(file string) (Config, error) {
	cfg := Defaults()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.APIKey = getEnv("API_KEY", cfg.APIKey)
	cfg.AllowedIPRanges = getEnv("ALLOWED_IP_RANGES", cfg.AllowedIPRanges)
	cfg.BrokerURL = getEnv("BROKER_URL", cfg.BrokerURL)
	cfg.QueueName = getEnv("QUEUE_NAME", cfg.QueueName)
	cfg.GatewayAddr = getEnv("GATEWAY_ADDR", cfg.GatewayAddr)
	cfg.UploadsDir = getEnv("UPLOADS_DIR", cfg.UploadsDir)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.ExamplesDir = getEnv("EXAMPLES_DIR", cfg.ExamplesDir)
	cfg.CustomRecipesDir = getEnv("CUSTOM_RECIPES_DIR", cfg.CustomRecipesDir)
	cfg.ConverterBinDir = getEnv("CONVERTER_BIN_DIR", cfg.ConverterBinDir)

	var err error
	if cfg.JobResultTTL, err = getEnvSeconds("JOB_RESULT_TTL_SECONDS", cfg.JobResultTTL); err != nil {
		return cfg, err
	}
	if cfg.DownloadTokenTTL, err = getEnvSeconds("DOWNLOAD_TOKEN_TTL_SECONDS", cfg.DownloadTokenTTL); err != nil {
		return cfg, err
	}
	if v := os.Getenv("CLEANUP_MAX_AGE_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CLEANUP_MAX_AGE_HOURS %q: %w", v, err)
		}
		cfg.CleanupMaxAge = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}

// Roots returns the shared volume roots.
func (c Config) Roots() vol.Roots {
	return vol.Roots{
		Uploads:  c.UploadsDir,
		Output:   c.OutputDir,
		Examples: c.ExamplesDir,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return time.Duration(secs) * time.Second, nil
}
