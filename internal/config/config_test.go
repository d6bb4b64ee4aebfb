package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.BrokerURL != "redis://localhost:6379" {
		t.Errorf("BrokerURL = %v", cfg.BrokerURL)
	}
	if cfg.GatewayAddr != ":8000" {
		t.Errorf("GatewayAddr = %v", cfg.GatewayAddr)
	}
	if cfg.JobResultTTL != 24*time.Hour {
		t.Errorf("JobResultTTL = %v", cfg.JobResultTTL)
	}
	if cfg.DownloadTokenTTL != 30*time.Minute {
		t.Errorf("DownloadTokenTTL = %v", cfg.DownloadTokenTTL)
	}
	if cfg.CleanupMaxAge != 7*24*time.Hour {
		t.Errorf("CleanupMaxAge = %v", cfg.CleanupMaxAge)
	}

	roots := cfg.Roots()
	if roots.Uploads != "/uploads" || roots.Output != "/output" || roots.Examples != "/examples" {
		t.Errorf("Roots() = %+v", roots)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_KEY", "k-123")
	t.Setenv("BROKER_URL", "redis://broker:6379/2")
	t.Setenv("QUEUE_NAME", "ifcclash")
	t.Setenv("JOB_RESULT_TTL_SECONDS", "3600")
	t.Setenv("DOWNLOAD_TOKEN_TTL_SECONDS", "120")
	t.Setenv("CLEANUP_MAX_AGE_HOURS", "48")
	t.Setenv("ALLOWED_IP_RANGES", "10.0.0.0/8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIKey != "k-123" {
		t.Errorf("APIKey = %v", cfg.APIKey)
	}
	if cfg.BrokerURL != "redis://broker:6379/2" {
		t.Errorf("BrokerURL = %v", cfg.BrokerURL)
	}
	if cfg.QueueName != "ifcclash" {
		t.Errorf("QueueName = %v", cfg.QueueName)
	}
	if cfg.JobResultTTL != time.Hour {
		t.Errorf("JobResultTTL = %v", cfg.JobResultTTL)
	}
	if cfg.DownloadTokenTTL != 2*time.Minute {
		t.Errorf("DownloadTokenTTL = %v", cfg.DownloadTokenTTL)
	}
	if cfg.CleanupMaxAge != 48*time.Hour {
		t.Errorf("CleanupMaxAge = %v", cfg.CleanupMaxAge)
	}
	if cfg.AllowedIPRanges != "10.0.0.0/8" {
		t.Errorf("AllowedIPRanges = %v", cfg.AllowedIPRanges)
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pipeline.yaml")
	data := []byte("api_key: from-file\nbroker_url: redis://file:6379\ngateway_addr: \":9000\"\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BROKER_URL", "redis://env:6379")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIKey != "from-file" {
		t.Errorf("APIKey = %v, want file value", cfg.APIKey)
	}
	if cfg.GatewayAddr != ":9000" {
		t.Errorf("GatewayAddr = %v, want file value", cfg.GatewayAddr)
	}
	// Environment wins over the file.
	if cfg.BrokerURL != "redis://env:6379" {
		t.Errorf("BrokerURL = %v, want env value", cfg.BrokerURL)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("JOB_RESULT_TTL_SECONDS", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("Load() accepted invalid TTL")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() accepted missing config file")
	}
}
