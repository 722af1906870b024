package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"wordfill/internal/config"
	"wordfill/internal/ipc"
)

// withClient connects, runs fn and closes the connection.
func withClient(opts *options, fn func(client *ipc.IPCClient) error) error {
	client, err := opts.connect()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// emit prints v as JSON with --json, otherwise calls human.
func emit(cmd *cobra.Command, opts *options, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if opts.jsonOutput {
		return printJSON(w, v)
	}
	human(w)
	return nil
}

func triggerCmd(opts *options) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Complete the word at the caret of the focused field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				ctx, cancel := opts.context(cmd.Context())
				defer cancel()
				resp, err := client.Trigger(ctx, !noWait)
				if err != nil {
					return err
				}
				return emit(cmd, opts, resp, func(w io.Writer) {
					c := paletteFor(w)
					switch resp.Outcome {
					case "shown":
						fmt.Fprintf(w, "%s%s%s %s%s%s (%d completions)\n",
							c.Green, resp.Outcome, c.Reset, c.Cyan, resp.CycleID, c.Reset, resp.Completions)
					case "started":
						fmt.Fprintln(w, resp.Outcome)
					default:
						fmt.Fprintf(w, "%s%s%s", c.Yellow, resp.Outcome, c.Reset)
						if resp.Reason != "" {
							fmt.Fprintf(w, ": %s", resp.Reason)
						}
						fmt.Fprintln(w)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return before the popup is shown")
	return cmd
}

func selectCmd(opts *options) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "select <cycle-id> [completion]",
		Short: "Insert a completion for a shown cycle",
		Long: `Insert a completion for the cycle whose popup is showing. Pass the
completion text, or --index to pick by position.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &ipc.SelectRequest{CycleID: args[0]}
			switch {
			case len(args) == 2:
				req.Completion = &args[1]
			case index >= 0:
				req.Index = &index
			default:
				return fmt.Errorf("give a completion or --index")
			}

			return withClient(opts, func(client *ipc.IPCClient) error {
				ctx, cancel := opts.context(cmd.Context())
				defer cancel()
				resp, err := client.Select(ctx, req)
				if err != nil {
					return err
				}
				if err := emit(cmd, opts, resp, func(w io.Writer) {
					c := paletteFor(w)
					if resp.Inserted {
						fmt.Fprintf(w, "%sinserted%s via %s", c.Green, c.Reset, resp.Strategy)
						if resp.SkippedRunes > 0 {
							fmt.Fprintf(w, " (%d characters skipped)", resp.SkippedRunes)
						}
						fmt.Fprintln(w)
					}
				}); err != nil {
					return err
				}
				if resp.Error != "" {
					return fmt.Errorf("insertion failed: %s", resp.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", -1, "completion position, starting at 0")
	return cmd
}

func dismissCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss [cycle-id]",
		Short: "Close the popup without inserting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withClient(opts, func(client *ipc.IPCClient) error {
				return client.Dismiss(id)
			})
		},
	}
}

func statsCmd(opts *options) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show completion cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				s, err := client.Stats(verbose)
				if err != nil {
					return err
				}
				return emit(cmd, opts, s, func(w io.Writer) {
					printSection(w, "CACHE")
					printField(w, "Entries", "%d / %d", s.Entries, s.MaxEntries)
					printField(w, "Size", "%s / %s", formatBytes(s.Bytes), formatBytes(s.MaxBytes))
					printField(w, "Hits", "%d", s.Hits)
					printField(w, "Misses", "%d", s.Misses)
					printField(w, "Evictions", "%d", s.Evictions)
					printField(w, "Hit rate", "%.1f%%", s.HitRate*100)
					if len(s.Items) > 0 {
						printSection(w, "ENTRIES (most recent first)")
						for _, it := range s.Items {
							fmt.Fprintf(w, "  %-20s %-6s %3d  %s\n", it.Word, it.Locale, it.Completions, formatBytes(it.Cost))
						}
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list cached words")
	return cmd
}

func preloadCmd(opts *options) *cobra.Command {
	var (
		locale string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "preload [word...]",
		Short: "Resolve words ahead of time",
		Long: `Resolve words into the cache ahead of time. With no words and no
--file the daemon uses its configured seed list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			words := args
			if file != "" {
				more, err := readWords(file)
				if err != nil {
					return err
				}
				words = append(words, more...)
			}
			return withClient(opts, func(client *ipc.IPCClient) error {
				ctx, cancel := opts.context(cmd.Context())
				defer cancel()
				resp, err := client.Preload(ctx, words, locale)
				if err != nil {
					return err
				}
				return emit(cmd, opts, resp, func(w io.Writer) {
					fmt.Fprintf(w, "loaded %d of %d words\n", resp.Loaded, resp.Requested)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&locale, "locale", "l", "", "BCP-47 locale (default from daemon config)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read words from file, one per line")
	return cmd
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" && !strings.HasPrefix(w, "#") {
			words = append(words, w)
		}
	}
	return words, sc.Err()
}

func lookupCmd(opts *options) *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "lookup <word>",
		Short: "Show the completions for a word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				resp, err := client.Lookup(args[0], locale)
				if err != nil {
					return err
				}
				return emit(cmd, opts, resp, func(w io.Writer) {
					c := paletteFor(w)
					if len(resp.Completions) == 0 {
						fmt.Fprintf(w, "%sno completions%s\n", c.Dim, c.Reset)
						return
					}
					for i, s := range resp.Completions {
						fmt.Fprintf(w, "%s%2d%s  %s\n", c.Dim, i, c.Reset, s)
					}
					if resp.Cached {
						fmt.Fprintf(w, "%s(cached)%s\n", c.Dim, c.Reset)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&locale, "locale", "l", "", "BCP-47 locale (default from daemon config)")
	return cmd
}

func clearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the completion cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				if err := client.ClearCache(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return nil
			})
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				s, err := client.Status()
				if err != nil {
					return err
				}
				return emit(cmd, opts, s, func(w io.Writer) {
					c := paletteFor(w)
					printSection(w, "DAEMON STATUS")
					printField(w, "Version", "%s%s%s", c.Cyan, s.Version, c.Reset)
					printField(w, "Platform", "%s", s.Platform)
					printField(w, "Uptime", "%s", s.Uptime.Round(time.Second))
					printField(w, "Started", "%s", s.StartedAt.Format(time.RFC3339))
					if s.Authorized {
						printField(w, "Access", "%s%sGRANTED%s", c.Bold, c.Green, c.Reset)
					} else {
						printField(w, "Access", "%s%sNOT GRANTED%s (run: wordfillctl permission --prompt)", c.Bold, c.Yellow, c.Reset)
					}
					printField(w, "Displays", "%d", s.Displays)
					printField(w, "Providers", "%s", strings.Join(s.Providers, ", "))
					printField(w, "Clients", "%d", s.Clients)
					if s.Health != "" {
						printField(w, "Health", "%s", s.Health)
					}
					if s.ActiveCycle != "" {
						printField(w, "Active cycle", "%s", s.ActiveCycle)
					}
					if s.ConfigPath != "" {
						printField(w, "Config", "%s", s.ConfigPath)
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
}

func permissionCmd(opts *options) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Check or request accessibility access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				resp, err := client.Permission(prompt)
				if err != nil {
					return err
				}
				return emit(cmd, opts, resp, func(w io.Writer) {
					c := paletteFor(w)
					switch {
					case resp.Authorized:
						fmt.Fprintf(w, "%saccess granted%s\n", c.Green, c.Reset)
					case resp.Prompted:
						fmt.Fprintf(w, "%saccess not granted yet%s; enable wordfilld in the system accessibility settings\n", c.Yellow, c.Reset)
					default:
						fmt.Fprintf(w, "%saccess not granted%s\n", c.Yellow, c.Reset)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "ask the system to prompt the user")
	return cmd
}

func reloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the daemon re-read its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				if err := client.ReloadConfig(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration reloaded")
				return nil
			})
		},
	}
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print daemon events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(client *ipc.IPCClient) error {
				if err := client.Subscribe(); err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for {
					select {
					case <-cmd.Context().Done():
						return nil
					case ev, ok := <-client.Events():
						if !ok {
							return nil
						}
						if err := printEvent(w, opts.jsonOutput, ev); err != nil {
							return err
						}
					}
				}
			})
		},
	}
}

var eventNames = map[ipc.EventType]string{
	ipc.EventPopupShow:      "popup_show",
	ipc.EventPopupDismiss:   "popup_dismiss",
	ipc.EventInsertResult:   "insert_result",
	ipc.EventPermission:     "permission",
	ipc.EventError:          "error",
	ipc.EventDaemonShutdown: "daemon_shutdown",
	ipc.EventConfigChanged:  "config_changed",
}

func eventName(t ipc.EventType) string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "0x" + strconv.FormatUint(uint64(t), 16)
}

func printEvent(w io.Writer, asJSON bool, ev *ipc.Event) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}
	c := paletteFor(w)
	fmt.Fprintf(w, "%s%s%s %s%-15s%s %s %s\n",
		c.Dim, ev.Timestamp.Local().Format("15:04:05.000"), c.Reset,
		c.Cyan, eventName(ev.Type), c.Reset,
		ev.CycleID, string(ev.Data))
	return nil
}

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialise the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configFile(opts))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), cfg.Clone())
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg.Clone())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile(opts)
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile(opts)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func configFile(opts *options) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	return config.ConfigPath()
}
