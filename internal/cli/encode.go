package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-digitaltwin/go-entitystore/changeset"
)

// EncodeOptions holds flags for the encode command.
type EncodeOptions struct {
	*RootOptions
	Output string
}

// EncodeResult summarises an encoded changeset.
type EncodeResult struct {
	Steps   int      `json:"steps" yaml:"steps"`
	Targets []string `json:"targets" yaml:"targets"`
	Bytes   int      `json:"bytes" yaml:"bytes"`
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <script.yaml>",
		Short: "Encode the steps of a script as a changeset",
		Long: `Record the steps of a script and write them as an encoded changeset, which
apply replays with --steps. The declared collections are not encoded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "file to write the changeset to (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runEncode(cmd *cobra.Command, opts *EncodeOptions, path string) error {
	script, err := LoadScript(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load script", err)
	}
	var r changeset.Recorder
	script.Record(&r)

	data, err := changeset.Encode(r.Steps())
	if err != nil {
		return WrapExitError(ExitFailure, "encode changeset", err)
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("write %s", opts.Output), err)
	}

	result := EncodeResult{Steps: r.Len(), Bytes: len(data), Targets: []string{}}
	for name := range changeset.Targets(r.Steps()) {
		result.Targets = append(result.Targets, name)
	}
	return write(cmd.OutOrStdout(), opts.Format, result)
}
