package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/engine"
)

// ContactsOptions holds flags for the contacts command.
type ContactsOptions struct {
	*RootOptions
	Offline bool
}

// NewContactsCommand creates the contacts command.
func NewContactsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List responders and dependents",
		Long: `List every contact, grouped by role, with its check-in state and
pending pings or alerts. A contact holding both roles is listed twice.

Example:
  lifesignal contacts
  lifesignal contacts --offline --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts.RootOptions, !opts.Offline, func(ctx context.Context, a *app) (any, error) {
				return newViewReport(a.engine.View(), true), nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "use the local snapshot only")

	return cmd
}

// RolesOptions holds the role flags shared by add and roles.
type RolesOptions struct {
	*RootOptions
	Responder bool
	Dependent bool
}

func (o *RolesOptions) roles() contact.Roles {
	return contact.Roles{Responder: o.Responder, Dependent: o.Dependent}
}

func addRoleFlags(cmd *cobra.Command, opts *RolesOptions) {
	cmd.Flags().BoolVar(&opts.Responder, "responder", false, "the contact responds for you")
	cmd.Flags().BoolVar(&opts.Dependent, "dependent", false, "the contact depends on you")
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RolesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Create a relationship with another user",
		Long: `Create a relationship with another registered user. Both directed
records are written; if the second write fails the first is undone.

Example:
  lifesignal add bob --responder
  lifesignal add carol --responder --dependent`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts.RootOptions, true, func(ctx context.Context, a *app) (any, error) {
				r, err := a.engine.AddContact(ctx, args[0], opts.roles())
				if err != nil {
					return nil, err
				}
				return recordResult{Action: "added", Contact: newContactReport(r, r.Status(a.engine.View().At))}, nil
			})
		},
	}
	addRoleFlags(cmd, opts)

	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <user-id>",
		Short:         "Delete a relationship",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, a *app) (any, error) {
				if err := a.engine.RemoveContact(ctx, args[0]); err != nil {
					return nil, err
				}
				return actionResult{Action: "removed", Target: args[0]}, nil
			})
		},
	}
}

// NewRolesCommand creates the roles command.
func NewRolesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RolesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roles <user-id>",
		Short: "Change the roles of a contact",
		Long: `Set the roles of an existing contact. Roles not given are cleared,
so 'lifesignal roles bob' leaves bob with no role.

Example:
  lifesignal roles bob --dependent`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := opts.roles()
			return execute(cmd, opts.RootOptions, true, func(ctx context.Context, a *app) (any, error) {
				r, err := a.engine.UpdateContact(ctx, args[0], engine.ContactUpdate{Roles: &roles})
				if err != nil {
					return nil, err
				}
				return recordResult{Action: "updated", Contact: newContactReport(r, r.Status(a.engine.View().At))}, nil
			})
		},
	}
	addRoleFlags(cmd, opts)

	return cmd
}
