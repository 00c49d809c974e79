package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "rsvp-server",
		Short: "RSVP server - event management with ownership-scoped access",
		Long: `rsvp-server runs the event management API.

Signed-in users create events and share them through a public URL where
guests RSVP without an account. Only an event's creator or an admin may
change it, delete it, or read its RSVPs.

Running the binary without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serveOptions{})
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUsersCommand(opts),
		newRSVPsCommand(opts),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads the environment, or the --config file when given, and
// applies the logging flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if level := strings.TrimSpace(o.logLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(o.logFormat); format != "" {
		cfg.Logging.Format = format
	}
	return cfg, nil
}
