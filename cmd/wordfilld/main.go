// wordfilld - word completion daemon
//
// The daemon listens on a unix socket. A hotkey tool runs
// "wordfillctl trigger"; the daemon reads the word at the caret of the
// focused field, looks up completions and broadcasts where the popup
// should appear. The popup front-end answers with "select" or "dismiss"
// and the chosen completion is written back into the field.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wordfill/internal/config"
	"wordfill/internal/logging"
)

var version = "dev"

// envDetached marks the re-executed background child.
const envDetached = "WORDFILLD_DETACHED"

func main() {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		foreground bool
	)

	cmd := &cobra.Command{
		Use:   "wordfilld",
		Short: "Word completion daemon",
		Long: `wordfilld completes the word at the text cursor of the focused field.

Bind a hotkey to "wordfillctl trigger". A popup front-end subscribes to
the daemon's events and reports the chosen completion back.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground && os.Getenv(envDetached) == "" {
				return detach()
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "stay attached to the terminal")

	return cmd
}

// detach re-executes the daemon in its own session and returns.
func detach() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	child := exec.Command(exe, os.Args[1:]...)
	child.Env = append(os.Environ(), envDetached+"=1")
	child.SysProcAttr = daemonSysProcAttr()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	fmt.Printf("wordfilld started (PID %d)\n", child.Process.Pid)
	return child.Process.Release()
}

func run(ctx context.Context, configPath, logLevel string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logCfg, err := loggingConfig(cfg.Logging)
	if err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "wordfilld",
		Logger:    logger,
	})

	var runErr error
	if crash.Recover("", func() {
		runErr = serve(ctx, cfg, loader, logLevel, crash, logger)
	}) {
		return errors.New("daemon panicked; see the crash report")
	}
	return runErr
}

func serve(ctx context.Context, cfg *config.Config, loader *config.Loader, logLevel string, crash *logging.CrashHandler, logger *logging.Logger) error {
	d, err := newDaemon(ctx, cfg, nativePlatform(logger), logger)
	if err != nil {
		return err
	}
	d.configPath = loader.Path()
	d.levelOverride = logLevel
	d.crash = crash
	d.watch(loader)

	if err := d.start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.shutdown(shutdownCtx)
}

func loggingConfig(c config.LoggingConfig) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = logging.ParseFormat(c.Format)
	cfg.Output = strings.ToLower(c.Output)
	if c.FilePath != "" {
		cfg.FilePath = c.FilePath
	}
	cfg.MaxSize = int64(c.MaxSizeMB)
	cfg.MaxBackups = c.MaxBackups
	cfg.MaxAge = c.MaxAgeDays
	cfg.Component = "wordfilld"
	return cfg, nil
}
