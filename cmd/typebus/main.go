// Package main is the entry point for the typebus demonstration tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/typebus/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, app.ErrScenarioFailed) {
			return 2
		}
		return 1
	}

	return 0
}

func parseFlags() app.Options {
	var opts app.Options
	var showVersion bool
	var showHelp bool

	defaultConfig := os.Getenv("TYPEBUS_CONFIG")

	flag.StringVar(&opts.ConfigPath, "config", defaultConfig, "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.ConfigPath, "c", defaultConfig, "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.Scenario, "scenario", "hierarchy", "Scenario to run ("+strings.Join(app.Scenarios(), ", ")+")")
	flag.StringVar(&opts.Scenario, "s", "hierarchy", "Scenario to run (shorthand)")
	flag.IntVar(&opts.Subscribers, "subscribers", 1000, "Concurrent subscribers for the stress scenario")
	flag.IntVar(&opts.Subscribers, "n", 1000, "Concurrent subscribers (shorthand)")
	flag.StringVar(&opts.ScriptPath, "script", "", "Lua script for the lua scenario")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&opts.Wait, "wait", false, "Keep serving after the scenario until interrupted")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "typebus - typed, hierarchy-aware publish/subscribe\n\n")
		fmt.Fprintf(os.Stderr, "Usage: typebus [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  typebus                              Walk through the Animal/Dog hierarchy\n")
		fmt.Fprintf(os.Stderr, "  typebus -s stress -n 5000            Subscribe and publish from 5000 goroutines\n")
		fmt.Fprintf(os.Stderr, "  typebus -s lua -script dogs.lua      Run a Lua script against the bus\n")
		fmt.Fprintf(os.Stderr, "  typebus -metrics-addr :9090 -wait    Serve metrics until interrupted\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("typebus %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	return opts
}
