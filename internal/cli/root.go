package cli

import (
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "yaml" | "json"
	LogLevel string
}

// NewRootCommand creates the root command of entityctl. The defaults of the
// global flags come from cfg.
func NewRootCommand(cfg Config) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entityctl",
		Short: "entityctl - replay entity store changesets",
		Long: `Build in-memory entity stores of record collections, replay recorded
changesets on them, and print the resulting collections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level, err := parseLevel(opts.LogLevel)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(component.InjectLogger(cmd.Context(), logger))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print every change to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (yaml|json)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewEncodeCommand(opts))

	return cmd
}
