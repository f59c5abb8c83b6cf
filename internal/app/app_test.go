package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dshills/typebus/internal/config"
	"github.com/dshills/typebus/internal/logging"
)

func newTestApp(t *testing.T, opts Options) (*Application, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.Output = &out
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}

	application, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(application.Shutdown)
	return application, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	return path
}

func TestNew_Defaults(t *testing.T) {
	application, _ := newTestApp(t, Options{})

	cfg := application.Config()
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if application.Bus() == nil {
		t.Fatal("Bus() is nil")
	}
	if application.MetricsAddr() != "" {
		t.Errorf("MetricsAddr() = %q, want empty", application.MetricsAddr())
	}
	if got, want := application.pool.Stats().Workers, runtime.GOMAXPROCS(0); got != want {
		t.Errorf("pool workers = %d, want GOMAXPROCS %d", got, want)
	}
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		scenario string
		want     string
	}{
		{"hierarchy", "animal=2 dog=2"},
		{"stress", "final publish reached 200 subscribers"},
		{"weak", "weak receiver invoked 0 times, strong receiver invoked 1 times"},
		{"lua", "replies=1"},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			application, out := newTestApp(t, Options{Scenario: tt.scenario, Subscribers: 200})

			if err := application.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v\n%s", err, out)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
			if application.Bus().Stats().Subscriptions != 0 {
				t.Errorf("scenario left %d subscriptions", application.Bus().Stats().Subscriptions)
			}
		})
	}
}

func TestRun_LuaScriptFile(t *testing.T) {
	script := writeFile(t, "echo.lua", `
		typebus.on("dog", function(d)
			if d.name ~= "echo" then
				typebus.emit("dog", { name = "echo", breed = d.breed })
			end
		end)
	`)
	application, out := newTestApp(t, Options{Scenario: "lua", ScriptPath: script})

	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "replies=1") {
		t.Errorf("output = %q, want one reply", out)
	}
}

func TestRun_UnknownScenario(t *testing.T) {
	application, _ := newTestApp(t, Options{Scenario: "nope"})

	err := application.Run(context.Background())
	if !errors.Is(err, ErrUnknownScenario) {
		t.Errorf("Run() error = %v, want ErrUnknownScenario", err)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	application, _ := newTestApp(t, Options{Wait: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !application.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("application did not start")
		}
		time.Sleep(time.Millisecond)
	}

	if err := application.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	application, _ := newTestApp(t, Options{MetricsAddr: "127.0.0.1:0"})
	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	resp, err := http.Get("http://" + application.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`typebus_published_total{bus="main"} 4`,
		`typebus_pool_workers{pool="main"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q\n%s", want, body)
		}
	}
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[pool]
workers = 2

[bus]
default_strategy = "pooled"
`)
	application, _ := newTestApp(t, Options{ConfigPath: path})

	cfg := application.Config()
	if cfg.Pool.Workers != 2 || cfg.Bus.DefaultStrategy != "pooled" {
		t.Errorf("Config() = %+v", cfg)
	}
	if got := application.pool.Stats().Workers; got != 2 {
		t.Errorf("pool workers = %d, want 2", got)
	}
}

func TestConfigFile_Invalid(t *testing.T) {
	path := writeFile(t, "typebus.toml", `
[bus]
default_strategy = "eventually"
`)
	_, err := New(Options{ConfigPath: path, Output: io.Discard, LogOutput: io.Discard})

	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Component != "config" {
		t.Fatalf("New() error = %v, want config InitError", err)
	}
	if !errors.Is(err, config.ErrValidationFailed) {
		t.Errorf("New() error = %v, want ErrValidationFailed", err)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeFile(t, "typebus.yaml", "log:\n  level: error\n")
	application, _ := newTestApp(t, Options{ConfigPath: path, LogLevel: "debug"})

	if got := application.Config().Log.Level; got != "debug" {
		t.Errorf("Log.Level = %q, want debug", got)
	}
	if !application.Logger().Enabled(logging.LevelDebug) {
		t.Error("debug logging should be enabled")
	}
}

func TestLiveReload(t *testing.T) {
	path := writeFile(t, "typebus.toml", "[log]\nlevel = \"info\"\n")
	application, _ := newTestApp(t, Options{ConfigPath: path})

	if application.Logger().Enabled(logging.LevelDebug) {
		t.Fatal("debug logging enabled before reload")
	}
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !application.Logger().Enabled(logging.LevelDebug) {
		if time.Now().After(deadline) {
			t.Fatal("log level was not reloaded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := application.Config().Log.Level; got != "debug" {
		t.Errorf("Config().Log.Level = %q, want debug", got)
	}
}
