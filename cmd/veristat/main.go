// Package main provides the CLI for the Veristat report pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veristat-labs/veristat/internal/bundle"
	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/internal/config"
	"github.com/veristat-labs/veristat/internal/engine"
	"github.com/veristat-labs/veristat/internal/executor"
	"github.com/veristat-labs/veristat/internal/notifier"
	"github.com/veristat-labs/veristat/internal/registry"
	"github.com/veristat-labs/veristat/internal/render"
	"github.com/veristat-labs/veristat/internal/state"
	"github.com/veristat-labs/veristat/internal/ui"
	"github.com/veristat-labs/veristat/internal/worker"
	"github.com/veristat-labs/veristat/pkg/core"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
}

var (
	// Global flags
	configDir string
	verbose   bool
)

func main() {
	commands := map[string]*Command{
		"serve": {
			Name:        "serve",
			Description: "Start the report pipeline server",
			Run:         serveCmd,
		},
		"compile": {
			Name:        "compile",
			Description: "Compile a widget and print diagnostics",
			Run:         compileCmd,
		},
		"migrate": {
			Name:        "migrate",
			Description: "Run store migrations and exit",
			Run:         migrateCmd,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Run:         versionCmd,
		},
	}

	if len(os.Args) < 2 {
		printUsage(commands)
		os.Exit(0)
	}

	cmdName := os.Args[1]

	if cmdName == "help" || cmdName == "-h" || cmdName == "--help" {
		printUsage(commands)
		os.Exit(0)
	}

	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage(commands)
		os.Exit(1)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(commands map[string]*Command) {
	fmt.Println("Veristat - Governance Report Pipeline")
	fmt.Println()
	fmt.Println("Usage: veristat <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range []string{"serve", "compile", "migrate", "version"} {
		if c, ok := commands[cmd]; ok {
			fmt.Printf("  %-12s %s\n", c.Name, c.Description)
		}
	}
	fmt.Println()
	fmt.Println("Run 'veristat <command> -h' for help on a specific command.")
}

func setupFlags(fs *flag.FlagSet) {
	fs.StringVar(&configDir, "config", ".", "Directory containing veristat.yaml")
	fs.BoolVar(&verbose, "v", false, "Verbose output")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(cfg *config.Config) (core.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return state.OpenPostgres(cfg.Store.DSN)
	default:
		return state.OpenSQLite(cfg.Store.Path)
	}
}

// serveCmd starts the pipeline server.
func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	setupFlags(fs)
	port := fs.Int("port", 0, "Override server port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger := newLogger()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	assets, err := render.BuildViewer(!cfg.Render.ViewerDev)
	if err != nil {
		return err
	}

	surface, err := render.NewSurface()
	if err != nil {
		return err
	}
	defer func() { _ = surface.Close() }()

	comp := compiler.New(logger)
	cache := bundle.New(comp, logger)
	exec := executor.New(logger)
	reg := registry.NewFSRegistry(cfg.Plugins.Dir)
	capturer := render.NewChromeCapturer(cfg.Render.BrowserPath)

	renderer := render.NewService(cache, exec, reg, capturer, surface, assets, render.Options{
		ReportsDir:  cfg.Render.ReportsDir,
		Timeout:     time.Duration(cfg.Render.TimeoutSeconds) * time.Second,
		MaxSessions: cfg.Render.MaxSessions,
	}, logger)

	n := notifier.New()
	dispatcher := worker.NewHTTPDispatcher(cfg.Worker.BaseURL,
		time.Duration(cfg.Worker.TimeoutSeconds)*time.Second)
	eng := engine.New(store, dispatcher, renderer, n, logger)

	server := ui.NewServer(ui.Config{
		Engine:   eng,
		Compiler: comp,
		Registry: reg,
		Notifier: n,
		Port:     cfg.Server.Port,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Plugins.Watch {
		go func() {
			if err := registry.WatchSources(ctx, cfg.Plugins.Dir, logger, func(path string) {
				logger.Info("widget source changed", "file", path)
			}); err != nil {
				logger.Error("plugin watcher stopped", "error", err)
			}
		}()
	}

	return server.Serve(ctx)
}

// compileCmd compiles one widget from the plugins directory.
func compileCmd(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	setupFlags(fs)
	printCode := fs.Bool("print", false, "Print the compiled module")
	fs.Usage = func() {
		fmt.Println("Usage: veristat compile [options] <pluginID> <widgetID>")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected <pluginID> <widgetID>")
	}
	pluginID, widgetID := fs.Arg(0), fs.Arg(1)

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	reg := registry.NewFSRegistry(cfg.Plugins.Dir)
	source, err := reg.Source(pluginID, widgetID)
	if err != nil {
		return err
	}

	compiled, err := compiler.New(newLogger()).Compile(source, reg.CompileContext(pluginID, widgetID))
	if err != nil {
		return err
	}

	fmt.Printf("Compiled %s/%s\n", pluginID, widgetID)
	fmt.Printf("  Key:  %s\n", compiled.Key)
	fmt.Printf("  Name: %s\n", compiled.Frontmatter.Name)
	if *printCode {
		fmt.Println()
		fmt.Println(compiled.Code)
	}
	return nil
}

// migrateCmd opens the store, which runs pending migrations.
func migrateCmd(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	setupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sqlStore, ok := store.(*state.SQLStore)
	if !ok {
		return nil
	}
	v, err := sqlStore.MigrationVersion()
	if err != nil {
		return err
	}
	fmt.Printf("Store migrated to version %d\n", v)
	return nil
}

// versionCmd shows version information.
func versionCmd(_ []string) error {
	fmt.Printf("Veristat v%s\n", version)
	fmt.Println("Governance report pipeline built with Go")
	return nil
}
