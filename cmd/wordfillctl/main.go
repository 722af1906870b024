// wordfillctl is the control CLI for wordfilld.
//
// Bind "wordfillctl trigger" to a hotkey to complete the word at the
// caret. The remaining commands inspect and tune the running daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wordfill/internal/config"
	"wordfill/internal/ipc"
)

var version = "dev"

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	socketPath string
	jsonOutput bool
	timeout    time.Duration
}

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "wordfillctl",
		Short: "Control utility for wordfilld",
		Long: `wordfillctl talks to a running wordfilld over its control socket.

Typical setup:
  wordfilld                       # start the daemon
  wordfillctl permission --prompt # grant accessibility access once
  wordfillctl trigger             # bind this to a hotkey`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVarP(&opts.socketPath, "socket", "s", "", "daemon socket (default from config)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print responses as JSON")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(
		triggerCmd(opts),
		selectCmd(opts),
		dismissCmd(opts),
		statsCmd(opts),
		preloadCmd(opts),
		lookupCmd(opts),
		clearCmd(opts),
		statusCmd(opts),
		permissionCmd(opts),
		reloadCmd(opts),
		watchCmd(opts),
		configCmd(opts),
	)
	return cmd
}

// socket resolves the daemon socket: flag, then config and environment.
func (o *options) socket() (string, error) {
	if o.socketPath != "" {
		return o.socketPath, nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.IPC.SocketPath, nil
}

// connect dials the daemon. The caller closes the client.
func (o *options) connect() (*ipc.IPCClient, error) {
	path, err := o.socket()
	if err != nil {
		return nil, err
	}
	cfg := ipc.DefaultClientConfig(path)
	cfg.ClientName = "wordfillctl"
	cfg.ClientVersion = version
	if o.timeout > 0 {
		cfg.RequestTimeout = o.timeout
	}

	client := ipc.NewClient(cfg)
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("%w (socket %s); start it with: wordfilld", err, path)
		}
		return nil, err
	}
	return client, nil
}

func (o *options) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}
