package main

import (
	"fmt"
	"os"

	"github.com/rmacdonaldsmith/pusher-go/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags and the state PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath string
	key        string
	cluster    string
	host       string
	port       int
	insecure   bool
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pusher-cli",
		Short: "Command line client for Pusher-protocol brokers",
		Long: `pusher-cli connects to a Pusher-protocol broker, subscribes to channels
and prints the events it receives. Settings come from an optional YAML config
file and are overridden by flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: opts.initialize,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	flags.StringVar(&opts.key, "key", "", "Application key")
	flags.StringVar(&opts.cluster, "cluster", "", "Broker cluster (selects ws-<cluster>.pusher.com)")
	flags.StringVar(&opts.host, "host", "", "Custom broker host")
	flags.IntVar(&opts.port, "port", 0, "Broker port (default 443, or 80 with --insecure)")
	flags.BoolVar(&opts.insecure, "insecure", false, "Use ws:// instead of wss://")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newURLCommand(opts))
	rootCmd.AddCommand(newListenCommand(opts))
	rootCmd.AddCommand(newLoginCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// initialize loads the config file, applies flag overrides and builds the
// logger.
func (o *rootOptions) initialize(cmd *cobra.Command, args []string) error {
	// Skip for help and the root itself
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	cfg, err := config.LoadWithDefaults(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("key") {
		cfg.App.Key = o.key
	}
	if flags.Changed("cluster") {
		cfg.App.Cluster = o.cluster
	}
	if flags.Changed("host") {
		cfg.Connection.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Connection.Port = o.port
	}
	if flags.Changed("insecure") {
		cfg.Connection.Insecure = o.insecure
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	o.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(level).
		With().
		Timestamp().
		Logger()
	o.cfg = cfg
	return nil
}

// requireConfig validates the settings commands that connect need.
func (o *rootOptions) requireConfig() error {
	if o.cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}
	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
