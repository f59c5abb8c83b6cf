package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	return path
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[log]
level = "debug"

[pool]
workers = 4
queue_size = 64

[bus]
default_strategy = "pooled"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want default text", cfg.Log.Format)
	}
	if cfg.Pool.Workers != 4 || cfg.Pool.QueueSize != 64 {
		t.Errorf("Pool = %+v, want workers 4, queue 64", cfg.Pool)
	}
	if cfg.Bus.DefaultStrategy != "pooled" {
		t.Errorf("Bus.DefaultStrategy = %q, want pooled", cfg.Bus.DefaultStrategy)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "typebus.yaml", `
log:
  format: json
metrics:
  enabled: true
  addr: "127.0.0.1:9100"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_UnknownSetting(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[pool]
threads = 4
`)

	_, err := Load(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Load() error = %v, want ParseError", err)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[log]
level = "shouting"
`)

	_, err := Load(path)
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Load() error = %v, want ErrValidationFailed", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[log]
level = "debug"
`)
	t.Setenv("TYPEBUS_LOG_LEVEL", "error")
	t.Setenv("TYPEBUS_POOL_QUEUE_SIZE", "32")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
	if cfg.Pool.QueueSize != 32 {
		t.Errorf("Pool.QueueSize = %d, want 32", cfg.Pool.QueueSize)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("typebus.ini", []byte("level=debug"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse("typebus.toml", []byte("[log\nlevel="))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse() error = %v, want ParseError", err)
	}
	if perr.Path != "typebus.toml" {
		t.Errorf("Path = %q, want typebus.toml", perr.Path)
	}
}

func TestLoadEnv(t *testing.T) {
	got := LoadEnv([]string{
		"TYPEBUS_METRICS_ENABLED=true",
		"TYPEBUS_POOL_WORKERS=8",
		"TYPEBUS_CONFIG=/etc/typebus.toml",
		"HOME=/root",
	})

	metrics, ok := got["metrics"].(map[string]any)
	if !ok || metrics["enabled"] != true {
		t.Errorf("metrics = %v, want enabled true", got["metrics"])
	}
	pool, ok := got["pool"].(map[string]any)
	if !ok || pool["workers"] != int64(8) {
		t.Errorf("pool = %v, want workers 8", got["pool"])
	}
	if len(got) != 2 {
		t.Errorf("LoadEnv() = %v, want only mapped variables", got)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"log":  map[string]any{"level": "info", "format": "text"},
		"pool": map[string]any{"workers": 2},
	}
	src := map[string]any{
		"log":  map[string]any{"level": "debug"},
		"pool": "replaced",
	}

	got := DeepMerge(dst, src)
	log := got["log"].(map[string]any)
	if log["level"] != "debug" || log["format"] != "text" {
		t.Errorf("log = %v", log)
	}
	if got["pool"] != "replaced" {
		t.Errorf("pool = %v, want replaced", got["pool"])
	}
}
