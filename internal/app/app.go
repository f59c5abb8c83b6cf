// Package app wires configuration, logging, the worker pool, the bus and
// its optional collaborators into a runnable application, and runs the
// demonstration scenarios.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/typebus"
	"github.com/dshills/typebus/internal/config"
	"github.com/dshills/typebus/internal/dispatch"
	"github.com/dshills/typebus/internal/logging"
	"github.com/dshills/typebus/internal/metrics"
)

// Application owns one bus and everything around it.
type Application struct {
	mu sync.RWMutex

	cfg    config.Config
	logger *logging.Logger
	pool   *dispatch.Pool
	bus    *typebus.Bus

	prom       *metrics.Prom
	metricsSrv *http.Server
	metricsLn  net.Listener
	watcher    *config.Watcher

	running  atomic.Bool
	shutOnce sync.Once

	opts Options
}

// Options configures the application. Non-empty fields override the
// configuration file.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// Scenario selects what Run does.
	Scenario string

	// Subscribers is the number of concurrent subscribers in the stress scenario.
	Subscribers int

	// ScriptPath is a Lua script for the lua scenario.
	ScriptPath string

	// MetricsAddr enables the metrics endpoint on this address.
	MetricsAddr string

	// Wait keeps Run serving metrics after the scenario until ctx is done.
	Wait bool

	// Output receives scenario reports. Defaults to os.Stdout.
	Output io.Writer

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// New creates an application and initializes its components.
func New(opts Options) (*Application, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.Scenario == "" {
		opts.Scenario = "hierarchy"
	}
	if opts.Subscribers <= 0 {
		opts.Subscribers = 1000
	}

	app := &Application{opts: opts}
	if err := app.bootstrap(); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Configuration
	cfg, err := config.Load(app.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.applyOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = cfg

	// 2. Logging
	app.logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Output: app.opts.LogOutput,
		JSON:   cfg.Log.Format == "json",
	})
	logging.SetDefault(app.logger)

	// 3. Worker pool
	poolOpts := []dispatch.PoolOption{
		dispatch.WithQueueSize(cfg.Pool.QueueSize),
		dispatch.WithPoolPanicHandler(func(v any, _ []byte) {
			app.logger.Error("pool task panicked: %v", v)
		}),
	}
	if cfg.Pool.Workers > 0 {
		poolOpts = append(poolOpts, dispatch.WithWorkerCount(cfg.Pool.Workers))
	}
	app.pool = dispatch.NewPool(poolOpts...)
	if err := app.pool.Start(); err != nil {
		return &InitError{Component: "pool", Err: err}
	}

	// 4. Bus
	strategy, _ := cfg.Strategy()
	app.bus = typebus.New(
		typebus.WithLogger(app.logger),
		typebus.WithPool(app.pool),
		typebus.WithDefaultStrategy(strategy),
	)

	// 5. Metrics
	if cfg.Metrics.Enabled {
		if err := app.startMetrics(); err != nil {
			return &InitError{Component: "metrics", Err: err}
		}
	}

	// 6. Live reload
	if app.opts.ConfigPath != "" {
		w, err := config.NewWatcher(app.opts.ConfigPath, app.reload,
			config.WithErrorHandler(func(err error) {
				app.logger.WithError(err).Warn("config reload failed")
			}))
		if err != nil {
			return &InitError{Component: "config watcher", Err: err}
		}
		app.watcher = w
	}

	app.logger.WithFields(map[string]any{
		"strategy": strategy.String(),
		"workers":  app.pool.Stats().Workers,
	}).Debug("application initialized")
	return nil
}

func (app *Application) applyOverrides(cfg *config.Config) {
	if app.opts.LogLevel != "" {
		cfg.Log.Level = app.opts.LogLevel
	}
	if app.opts.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = app.opts.MetricsAddr
	}
	if app.opts.ScriptPath != "" {
		cfg.Script.Path = app.opts.ScriptPath
	}
}

func (app *Application) startMetrics() error {
	ln, err := net.Listen("tcp", app.cfg.Metrics.Addr)
	if err != nil {
		return err
	}

	app.prom = metrics.NewProm()
	app.prom.Collector.AddBus("main", app.bus)
	app.prom.Collector.AddPool("main", app.pool)

	mux := http.NewServeMux()
	mux.Handle(app.cfg.Metrics.Path, app.prom.Handler())
	app.metricsLn = ln
	app.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := app.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.WithError(err).Error("metrics server stopped")
		}
	}()
	app.logger.Info("serving metrics on http://%s%s", ln.Addr(), app.cfg.Metrics.Path)
	return nil
}

// reload applies the settings that can change at runtime.
func (app *Application) reload(cfg config.Config) {
	app.applyOverrides(&cfg)

	app.mu.Lock()
	old := app.cfg.Log.Level
	app.cfg.Log = cfg.Log
	app.mu.Unlock()

	// Command line flags win over the file.
	if app.opts.LogLevel == "" && cfg.Log.Level != old {
		app.logger.SetLevel(logging.ParseLevel(cfg.Log.Level))
		app.logger.Info("log level changed to %s", cfg.Log.Level)
	}
}

// Run runs the selected scenario. With Options.Wait it then keeps serving
// until ctx is done.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	scenario, ok := scenarios[app.opts.Scenario]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScenario, app.opts.Scenario)
	}

	app.logger.WithField("scenario", app.opts.Scenario).Debug("running scenario")
	if err := scenario(ctx, app); err != nil {
		return err
	}

	if app.opts.Wait {
		<-ctx.Done()
	}
	return nil
}

// Shutdown releases every component in reverse initialization order.
func (app *Application) Shutdown() {
	app.shutOnce.Do(app.shutdown)
}

func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	if app.metricsSrv != nil {
		_ = app.metricsSrv.Shutdown(ctx)
	}
	if app.bus != nil {
		app.bus.Dispose()
	}
	if app.pool != nil {
		if err := app.pool.Stop(ctx); err != nil && app.logger != nil {
			app.logger.WithError(err).Warn("pool did not stop cleanly")
		}
	}
}

// IsRunning returns true while Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Bus returns the application bus.
func (app *Application) Bus() *typebus.Bus {
	return app.bus
}

// Config returns the effective configuration.
func (app *Application) Config() config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// MetricsAddr returns the address the metrics endpoint listens on, or ""
// when metrics are disabled.
func (app *Application) MetricsAddr() string {
	if app.metricsLn == nil {
		return ""
	}
	return app.metricsLn.Addr().String()
}

func (app *Application) printf(format string, args ...any) {
	fmt.Fprintf(app.opts.Output, format, args...)
}
