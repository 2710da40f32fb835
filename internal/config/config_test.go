package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/attest/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"

[api]
base_path = "/api"
max_upload_size = "100MB"

[api.pagination]
default_page_size = 25
max_page_size = 50

[backend]
base_url = "http://backend:5000"
timeout = "5m"

[upload]
allowed_extensions = ["pdf", "txt"]
max_file_size = "10MB"

[workflow]
stage_timeout = "2m"
regulations = ["GDPR", "NIST"]
`

const overlayConfig = `
[server]
port = 9090

[backend]
base_url = "https://backend.prod:5000"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.API.MaxUploadSizeBytes() != 100<<20 {
		t.Errorf("max upload size: got %d, want %d", cfg.API.MaxUploadSizeBytes(), 100<<20)
	}
	if cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination max_page_size: got %d, want 50", cfg.API.Pagination.MaxPageSize)
	}
	if cfg.Backend.BaseURL != "http://backend:5000" {
		t.Errorf("backend base_url: got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutDuration() != 5*time.Minute {
		t.Errorf("backend timeout: got %v, want 5m", cfg.Backend.TimeoutDuration())
	}
	if cfg.Upload.Target != config.UploadTargetBackend {
		t.Errorf("upload target: got %s, want backend", cfg.Upload.Target)
	}

	orch := cfg.Orchestration()
	if diff := cmp.Diff([]string{"pdf", "txt"}, orch.AllowedExtensions); diff != "" {
		t.Errorf("allowed extensions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"GDPR", "NIST"}, orch.Regulations); diff != "" {
		t.Errorf("regulations (-want +got):\n%s", diff)
	}
	if orch.MaxFileSize != 10<<20 {
		t.Errorf("max file size: got %d, want %d", orch.MaxFileSize, 10<<20)
	}
	if orch.StageTimeout != 2*time.Minute {
		t.Errorf("stage timeout: got %v, want 2m", orch.StageTimeout)
	}
	if orch.AbandonTimeout != 5*time.Minute {
		t.Errorf("abandon timeout default: got %v, want 5m", orch.AbandonTimeout)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv(config.EnvAttestEnv, "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "https://backend.prod:5000" {
		t.Errorf("backend base_url: got %s (want overlay)", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != "5m" {
		t.Errorf("backend timeout: got %s, want 5m (from base)", cfg.Backend.Timeout)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	t.Setenv(config.EnvAttestVersion, "2.0.0")
	t.Setenv("ATTEST_SERVER_PORT", "3000")
	t.Setenv(config.EnvWorkflowRegulations, "HIPAA, ISO27001")
	t.Setenv(config.EnvLogFormat, "JSON")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if diff := cmp.Diff([]string{"HIPAA", "ISO27001"}, cfg.Workflow.Regulations); diff != "" {
		t.Errorf("regulations (-want +got):\n%s", diff)
	}
	if cfg.Logging.Format != config.LogFormatJSON {
		t.Errorf("log format: got %s, want json", cfg.Logging.Format)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if got := cfg.Server.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("server addr: got %s", got)
	}
	if cfg.Server.ReadHeaderTimeoutDuration() != 10*time.Second {
		t.Errorf("read header timeout default: got %v", cfg.Server.ReadHeaderTimeoutDuration())
	}
	if cfg.Server.IdleTimeoutDuration() != 2*time.Minute {
		t.Errorf("idle timeout default: got %v", cfg.Server.IdleTimeoutDuration())
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("backend default: got %s", cfg.Backend.BaseURL)
	}
	if cfg.Workflow.StageTimeoutDuration() != 10*time.Minute {
		t.Errorf("stage timeout default: got %v", cfg.Workflow.StageTimeoutDuration())
	}
	if cfg.Events.Topic != "attest.workflow" {
		t.Errorf("events topic default: got %s", cfg.Events.Topic)
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
}

func TestLoadStorageTarget(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv(config.EnvUploadTarget, config.UploadTargetStorage)

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "storage") {
		t.Fatalf("expected storage error without connection settings, got %v", err)
	}

	t.Setenv("ATTEST_STORAGE_CONNECTION_STRING", "conn")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.ContainerName != "attest" {
		t.Errorf("storage container default: got %s, want attest", cfg.Storage.ContainerName)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed", `shutdown_timeout = `, "parse config"},
		{"bad backend url", "[backend]\nbase_url = \"ftp://x\"", "backend"},
		{"bad upload target", "[upload]\ntarget = \"s3\"", "upload"},
		{"bad max file size", "[upload]\nmax_file_size = \"lots\"", "max_file_size"},
		{"bad log level", "[logging]\nlevel = \"loud\"", "logging"},
		{"bad idle timeout", "[server]\nidle_timeout = \"soon\"", "idle_timeout"},
		{"bad port", "[server]\nport = 70000", "port"},
		{
			"write timeout below stage timeout",
			"[server]\nwrite_timeout = \"1m\"\n[workflow]\nstage_timeout = \"5m\"",
			"write_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, config.BaseConfigFile, tt.content)
			chdir(t, dir)

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnv(t *testing.T) {
	cfg := &config.Config{}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}

	t.Setenv(config.EnvAttestEnv, "production")
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}
