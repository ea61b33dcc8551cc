package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tojkuv/LifeSignal-sub007/internal/config"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Backend  string
	Driver   string
	SeedDemo bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write a default configuration file for the given owner.

The local store is placed next to the config file. An existing config
file is never overwritten.

Example:
  lifesignal init --owner alice
  lifesignal init --owner alice --backend redis --store badger`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "", "remote backend (memory|redis|postgres)")
	cmd.Flags().StringVar(&opts.Driver, "store", "", "local store driver (sqlite|badger|memory)")
	cmd.Flags().BoolVar(&opts.SeedDemo, "demo", false, "seed demo contacts on first refresh")

	return cmd
}

func runInit(cmd *cobra.Command, opts *InitOptions) error {
	f := newFormatter(cmd, opts.RootOptions)

	cfg, err := config.WriteDefault(opts.ConfigPath, opts.Owner, func(cfg *config.Config) {
		if opts.Backend != "" {
			cfg.Remote.Backend = opts.Backend
		}
		if opts.Driver != "" {
			cfg.Store.Driver = opts.Driver
		}
		cfg.Engine.SeedDemoData = opts.SeedDemo
	})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "init failed", err)
	}

	f.VerboseLog("config written to %s", opts.ConfigPath)
	return f.Success(initResult{Path: opts.ConfigPath, Owner: cfg.Owner, Store: cfg.Store.Path})
}

type initResult struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
	Store string `json:"store"`
}

func (r initResult) Text() string {
	return fmt.Sprintf("Config written to %s\n", r.Path)
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	Name     string
	Phone    string
	Avatar   string
	Note     string
	Interval time.Duration
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish or edit your profile",
		Long: `Publish the owner's profile to the contact service.

Only the flags given are changed. The new descriptive fields and
check-in interval are copied to every contact's record about you.

Example:
  lifesignal register --name "Alice" --interval 24h
  lifesignal register --note "Spare key under the mat"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := contact.ProfileUpdate{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &opts.Name
			}
			if flags.Changed("phone") {
				u.PhoneNumber = &opts.Phone
			}
			if flags.Changed("avatar") {
				u.AvatarRef = &opts.Avatar
			}
			if flags.Changed("note") {
				u.Note = &opts.Note
			}
			if flags.Changed("interval") {
				u.CheckInInterval = &opts.Interval
			}
			return execute(cmd, opts.RootOptions, true, func(ctx context.Context, a *app) (any, error) {
				p, err := a.engine.UpdateProfile(ctx, u)
				if err != nil {
					return nil, err
				}
				return profileResult{ID: p.ID, Name: p.Name, Interval: formatDuration(p.CheckInInterval)}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar reference")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note shown to your contacts")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 24*time.Hour, "check-in interval")

	return cmd
}

type profileResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Interval string `json:"check_in_interval"`
}

func (r profileResult) Text() string {
	return fmt.Sprintf("Profile %s (%s) published, check in every %s\n", r.ID, r.Name, r.Interval)
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh",
		Short:         "Fetch all contacts from the contact service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				return newViewReport(a.engine.View(), false), nil
			})
		},
	}
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Offline bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show your check-in state, pending pings and alerts",
		Long: `Show the owner's own schedule, the number of contacts waiting for a
response and the contacts with an active manual alert.

With --offline the persisted snapshot is shown without contacting the
contact service.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts.RootOptions, !opts.Offline, func(ctx context.Context, a *app) (any, error) {
				return newViewReport(a.engine.View(), false), nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "use the local snapshot only")

	return cmd
}
