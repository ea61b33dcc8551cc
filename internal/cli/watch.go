package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live changes to your contacts",
		Long: `Refresh, subscribe to the contact service's change feed and print the
contact view every time it changes. Stops on Ctrl-C, or after --count
views.

Example:
  lifesignal watch
  lifesignal watch --format json --count 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many views (0 = until interrupted)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	f := newFormatter(cmd, opts.RootOptions)
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions, f.GetErrWriter())
	if err != nil {
		return openFailure(f, err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("error closing backends", "error", cerr)
		}
	}()

	// A failed refresh is reported in the first view; the stream keeps
	// retrying.
	if err := a.engine.Refresh(ctx); err != nil {
		f.VerboseLog("initial refresh failed: %v", err)
	}
	if err := a.engine.StartStream(ctx); err != nil {
		return f.Fail(ExitFailure, ErrCodeBackend, "watch failed", err)
	}

	enc := json.NewEncoder(f.Writer)
	seen := 0
	for v := range a.engine.Observe(ctx) {
		report := newViewReport(v, true)
		if opts.Format == "json" {
			if err := enc.Encode(CLIResponse{Status: "ok", Data: report}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(f.Writer, "--- version %d at %s\n", v.Version, formatTime(v.At))
			fmt.Fprint(f.Writer, report.Text())
			if v.Err != nil {
				fmt.Fprintf(f.Writer, "last error: %v\n", v.Err)
			}
		}
		seen++
		if opts.Count > 0 && seen >= opts.Count {
			cancel()
		}
	}
	return nil
}
