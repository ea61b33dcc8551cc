package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tojkuv/LifeSignal-sub007/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Owner      string // overrides the configured owner
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lifesignal CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lifesignal",
		Short: "LifeSignal - check-ins, pings and alerts between people who look out for each other",
		Long: `LifeSignal keeps a local copy of your contacts in sync with the contact
service: who responds for you, who depends on you, their check-in
schedules, pending pings and manual alerts.

Each command loads the local snapshot, talks to the configured backend
and saves the result. Run 'lifesignal init' first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "", "act as this user (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewContactsCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewRolesCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))
	cmd.AddCommand(NewClearPingCommand(opts))
	cmd.AddCommand(NewAlertCommand(opts))
	cmd.AddCommand(NewCheckInCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
