package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping <user-id>",
		Short: "Ask a contact to check in",
		Long: `Send a ping to a contact. The contact sees an incoming ping until they
check in or clear it. Only one ping per contact can be pending.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				if err := a.engine.SendPing(ctx, args[0]); err != nil {
					return nil, err
				}
				return actionResult{Action: "pinged", Target: args[0]}, nil
			})
		},
	}
}

// NewClearPingCommand creates the clear-ping command.
func NewClearPingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear-ping <user-id>",
		Short:         "Clear the pings pending between you and a contact",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				if err := a.engine.ClearPing(ctx, args[0]); err != nil {
					return nil, err
				}
				return actionResult{Action: "cleared ping for", Target: args[0]}, nil
			})
		},
	}
}

// NewAlertCommand creates the alert command.
func NewAlertCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "alert on|off",
		Short: "Raise or clear your manual alert",
		Long: `Raise or clear the manual alert shown to every contact. Raising an
alert that is already active changes nothing.`,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:     []string{"on", "off"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			on := args[0] == "on"
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				if on {
					if err := a.engine.ActivateAlert(ctx); err != nil {
						return nil, err
					}
					return actionResult{Action: "alert activated"}, nil
				}
				if err := a.engine.DeactivateAlert(ctx); err != nil {
					return nil, err
				}
				return actionResult{Action: "alert deactivated"}, nil
			})
		},
	}
}

// NewCheckInCommand creates the checkin command.
func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Check in now",
		Long: `Record a check-in, restart your schedule and answer any pending
incoming pings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				if err := a.engine.CheckIn(ctx); err != nil {
					return nil, err
				}
				v := a.engine.View()
				return checkInResult{At: formatTime(v.Self.LastCheckIn), Next: formatTime(v.SelfStatus.Deadline)}, nil
			})
		},
	}
}

type checkInResult struct {
	At   string `json:"at"`
	Next string `json:"next_deadline"`
}

func (r checkInResult) Text() string {
	return fmt.Sprintf("Checked in at %s, next check-in due by %s\n", r.At, r.Next)
}
