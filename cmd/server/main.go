// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/speedreader/internal/api/httpapi"
	"github.com/osa030/speedreader/internal/app/filter"
	"github.com/osa030/speedreader/internal/app/reader"
	"github.com/osa030/speedreader/internal/infra/config"
	"github.com/osa030/speedreader/internal/infra/logger"
	"github.com/osa030/speedreader/internal/infra/metrics"
)

var (
	app        = kingpin.New("speedreader-server", "Speed reading playback server")
	configPath = app.Flag("config", "Path to config file (built-in defaults when omitted)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
	listFiltersCmd = app.Command("list-filters", "List available passage filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if command == checkConfigCmd.FullCommand() {
		if err := reader.NewRegistry(cfg.Reader.MaxReaders, nil).SetupFilters(cfg.Filters); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid filter config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config OK: addr=%s speed=%.0fwpm chunk=%d max_readers=%d auth=%t\n",
			cfg.Server.Addr, cfg.Reader.SpeedWPM, cfg.Reader.WordsPerChunk, cfg.Reader.MaxReaders, cfg.AuthEnabled())
		return
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	m := metrics.New("speedreader")
	readers := reader.NewRegistry(cfg.Reader.MaxReaders, m)
	if err := readers.SetupFilters(cfg.Filters); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	api := httpapi.New(cfg, readers, m)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Router(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s auth=%t", cfg.Server.Addr, cfg.AuthEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running hooks that may call it.
	select {
	case err := <-serverErrCh:
		readers.Close()
		return errors.Wrap(err, "server error")
	case <-time.After(100 * time.Millisecond):
	}

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received %s, shutting down...", sig)
	case err := <-serverErrCh:
		serveErr = errors.Wrap(err, "server error")
	}

	// Closing readers first ends every websocket stream with a close frame.
	readers.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return serveErr
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-24s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
