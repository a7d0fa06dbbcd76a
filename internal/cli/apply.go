package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/danielorbach/go-component"
	"github.com/spf13/cobra"

	"github.com/go-digitaltwin/go-entitystore"
	"github.com/go-digitaltwin/go-entitystore/changeset"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Atomic bool
	Steps  []string // Encoded changesets replayed after the script's steps.
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Version     uint64             `json:"version" yaml:"version"`
	Dispatches  int                `json:"dispatches" yaml:"dispatches"`
	Collections []CollectionResult `json:"collections" yaml:"collections"`
}

// CollectionResult lists the records of a collection after the replay.
type CollectionResult struct {
	Name    string             `json:"name" yaml:"name"`
	Records []changeset.Record `json:"records" yaml:"records"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <script.yaml>",
		Short: "Replay the steps of a script on its collections",
		Long: `Build a store of the collections declared by the script, replay its steps
and print the resulting collections.

Each step is dispatched on its own, so a failing step leaves the effects of
the previous ones. With --atomic, all steps are dispatched at once: either
every step applies, or none does.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Atomic, "atomic", false, "dispatch all steps at once")
	cmd.Flags().StringArrayVar(&opts.Steps, "steps", nil, "encoded changeset to replay after the script (repeatable)")

	return cmd
}

func runApply(cmd *cobra.Command, opts *ApplyOptions, path string) error {
	ctx := cmd.Context()
	logger := component.Logger(ctx)

	script, err := LoadScript(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load script", err)
	}
	var r changeset.Recorder
	script.Record(&r)
	steps := r.Steps()
	for _, name := range opts.Steps {
		data, err := os.ReadFile(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "read changeset", err)
		}
		decoded, err := changeset.Decode(data)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("decode changeset %s", name), err)
		}
		steps = append(steps, decoded...)
	}

	store, err := script.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "build store", err)
	}
	defer store.Close()

	if opts.Verbose {
		stderr := cmd.ErrOrStderr()
		cancel := store.Subscribe(func(c entitystore.Changed) {
			fmt.Fprint(stderr, entitystore.FormatChanged(c, ""))
		})
		defer cancel()
	}

	var batches [][]changeset.Step
	if opts.Atomic {
		batches = [][]changeset.Step{steps}
	} else {
		for _, step := range steps {
			batches = append(batches, []changeset.Step{step})
		}
	}
	for i, batch := range batches {
		if err := store.Dispatch(ctx, changeset.Replay(batch)); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("apply batch %d", i), err)
		}
	}
	logger.Info("Applied changeset",
		slog.Int("steps", len(steps)),
		slog.Int("dispatches", len(batches)),
		slog.Uint64("version", store.Snapshot().Version()),
	)

	result := ApplyResult{
		Version:    store.Snapshot().Version(),
		Dispatches: len(batches),
	}
	for _, c := range script.Collections {
		records := changeset.Key(c.Name).Get(store).Entities()
		if records == nil {
			records = []changeset.Record{}
		}
		result.Collections = append(result.Collections, CollectionResult{Name: c.Name, Records: records})
	}
	if err := write(cmd.OutOrStdout(), opts.Format, result); err != nil {
		return WrapExitError(ExitCommandError, "write result", err)
	}
	return nil
}
