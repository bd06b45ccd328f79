// Package main is the command-line front end of the equipment inventory client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/app"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/coordinator"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/logging"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/version"
)

const usage = `Usage: invtracker [global flags] <command> [flags]

Commands:
  inventory [-type T] [-status S] [-refresh]   show the inventory
  borrow -borrower B -type T -name N [...]     record a borrow
  return -borrower B -name N [...]             record a return
  borrowed                                     list borrowed equipment
  stats                                        inventory, client and cache statistics
  ping                                         test the endpoint connection
  sync                                         test the connection and send queued requests
  cache stats|cleanup|clear                    inspect or maintain the local cache
  watch                                        refresh periodically and print changes

Global flags:
`

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("invtracker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config.yaml (default: config/config.yaml or config.yaml)")
	versionFlag := fs.Bool("version", false, "Print version information")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *versionFlag {
		fmt.Fprintln(stdout, version.Info())
		return exitOK
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	command, cmdArgs := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[command]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return exitUsage
	}

	result, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitError
	}
	cfg := result.Config

	logger := logging.New(logging.Options{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		Out:    stderr,
	})
	slog.SetDefault(logger)
	logger.Debug("starting invtracker",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(ctx, app.Config{
		AppConfig:          result,
		Logger:             logger,
		Notifier:           printNotifier(stderr),
		DisableCleanupLoop: command != "watch",
	})
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		if *metricsFile != "" && cfg.Metrics.Enabled {
			if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
				logger.Error("failed to write metrics file", "path", *metricsFile, "error", err)
			}
		}
	}()

	c := &cli{app: application, stdout: stdout, stderr: stderr}
	return handler(ctx, c, cmdArgs)
}

func printNotifier(w io.Writer) coordinator.Notifier {
	return coordinator.NotifierFunc(func(n coordinator.Notification) {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	})
}
