// Package main is the entry point for the Plugstorm plugin host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dshills/plugstorm/internal/app"
	"github.com/dshills/plugstorm/internal/config"
	"github.com/dshills/plugstorm/internal/host"
	"github.com/dshills/plugstorm/internal/plugin"
	"github.com/dshills/plugstorm/internal/plugin/hook"
	"github.com/dshills/plugstorm/internal/plugin/luasrc"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	LogLevel   string
	Watch      bool
	List       bool

	// Extra plugin directories from positional arguments
	PluginPaths []string
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	opts := parseFlags()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger := app.NewLogger(app.LoggerConfig{
		Level:  app.ParseLogLevel(level),
		Prefix: "plugstorm",
	})
	app.SetLogger(logger)

	var settings *config.Settings
	if cfg.Settings.Path != "" {
		settings, err = config.OpenSettings(cfg.Settings.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open settings: %v\n", err)
			return 1
		}
	} else {
		settings = config.NewSettings()
	}

	registry := host.NewRegistry()

	// Activation is driven explicitly below so settings defaults are
	// seeded and the disabled list applied before any setup runs.
	managerConfig := cfg.ManagerConfig()
	autoActivate := managerConfig.AutoActivate
	managerConfig.AutoActivate = false

	mgr := plugin.NewManager(managerConfig,
		plugin.WithProviders(registry.Providers(settings)),
		plugin.WithLogger(logger),
	)

	mgr.Hooks().On(hook.RouteRegistered, func(e hook.Event) {
		logger.Info("plugin %q added route %q (%v)", e.PluginID, e.Name, e.Data["path"])
	})

	paths := append([]string{}, cfg.Plugins.Paths...)
	paths = append(paths, opts.PluginPaths...)
	if len(paths) == 0 {
		paths = luasrc.DefaultPluginPaths()
	}

	src := luasrc.NewSource(luasrc.WithPaths(paths...), luasrc.WithLogger(logger))
	records := mgr.RegisterFromSource(ctx, src)

	for _, rec := range records {
		if len(rec.Metadata.Settings) == 0 {
			continue
		}
		if err := settings.Seed(rec.ID(), rec.Metadata.Settings); err != nil {
			logger.Warn("seed settings for %q: %v", rec.ID(), err)
		}
	}

	applyDisabled(ctx, mgr, logger, cfg.Plugins.Disabled)

	if autoActivate {
		if err := mgr.ActivateAll(ctx); err != nil {
			logger.Warn("some plugins failed to activate: %v", err)
		}
	}

	logger.Info("%d plugins registered, %d active", mgr.Count(), mgr.CountActive())

	if opts.List {
		printPlugins(mgr, registry)
		return 0
	}

	if opts.Watch {
		watcher, err := config.Watch(configPath, func(newCfg *config.Config) {
			if newCfg.Logging.Level != "" {
				logger.SetLevel(app.ParseLogLevel(newCfg.Logging.Level))
			}
			applyDisabled(ctx, mgr, logger, newCfg.Plugins.Disabled)
		})
		if err != nil {
			logger.Warn("config watch disabled: %v", err)
		} else {
			defer watcher.Close()
			logger.Info("watching %s for changes", configPath)
		}
	}

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("plugstorm %s ready", version)
	<-signals

	if err := mgr.DeactivateAll(ctx); err != nil {
		logger.Warn("shutdown: %v", err)
	}

	snap := mgr.Metrics().Snapshot()
	logger.Info("shutting down after %s: %d activations, %d failures, %d hook events",
		snap.Uptime.Round(time.Second), snap.Activations, snap.ActivationFailures, snap.HookEmits)
	return 0
}

// applyDisabled reconciles plugin enabled flags against the disabled
// list. Toggling a flag activates or deactivates the plugin.
func applyDisabled(ctx context.Context, mgr *plugin.Manager, logger *app.Logger, disabled []string) {
	disabledSet := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		disabledSet[id] = true
	}

	for _, rec := range mgr.Plugins() {
		enabled := !disabledSet[rec.ID()]
		if rec.Metadata.Enabled == enabled {
			continue
		}
		e := enabled
		if !mgr.UpdateMetadata(ctx, rec.ID(), plugin.MetadataUpdate{Enabled: &e}) {
			logger.Warn("failed to set plugin %q enabled=%v", rec.ID(), e)
		}
	}
}

// printPlugins writes a plugin summary table to stdout.
func printPlugins(mgr *plugin.Manager, registry *host.Registry) {
	fmt.Printf("%-24s %-10s %-12s %s\n", "ID", "VERSION", "STATE", "DEPENDENCIES")
	for _, rec := range mgr.Plugins() {
		fmt.Printf("%-24s %-10s %-12s %s\n",
			rec.ID(), rec.Metadata.Version, rec.State(), strings.Join(rec.Metadata.Dependencies, ", "))
	}
	fmt.Printf("\n%d components, %d routes, %d locales, %d permissions\n",
		len(registry.ComponentNames()), len(registry.Routes()), len(registry.Locales()), len(registry.Permissions()))
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.Watch, "watch", false, "Reload configuration on change")
	flag.BoolVar(&opts.List, "list", false, "List plugins and exit")
	flag.BoolVar(&opts.List, "l", false, "List plugins and exit (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Plugstorm - Lua plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: plugstorm [options] [plugin-dirs...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  plugstorm                   Run with configured plugin paths\n")
		fmt.Fprintf(os.Stderr, "  plugstorm ./plugins         Also search ./plugins\n")
		fmt.Fprintf(os.Stderr, "  plugstorm -list             Show plugin states and exit\n")
		fmt.Fprintf(os.Stderr, "  plugstorm -watch            Live-reload the config file\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Plugstorm %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if opts.LogLevel != "" {
		switch opts.LogLevel {
		case "debug", "info", "warn", "error":
			// Valid
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
			os.Exit(1)
		}
	}

	// Remaining arguments are extra plugin directories
	opts.PluginPaths = flag.Args()

	return opts
}
