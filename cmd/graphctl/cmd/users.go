package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castillorm/graphctl/pkg/sdk"
)

// runAction dispatches to the single action selected by validateInvocation.
func runAction(ctx context.Context, cmd *cobra.Command, opts *options, directory *sdk.Client) error {
	flags := cmd.Flags()
	switch {
	case flags.Changed(flagListUsers):
		return runListUsers(ctx, cmd, opts, directory)
	case flags.Changed(flagSearch):
		return runSearchUsers(ctx, cmd, opts, directory)
	case opts.createUser:
		return runCreateUser(ctx, cmd, opts, directory)
	case flags.Changed(flagDeleteUser):
		return runDeleteUser(ctx, cmd, opts, directory)
	default:
		return usageErrorf("no action selected")
	}
}

func runListUsers(ctx context.Context, cmd *cobra.Command, opts *options, directory *sdk.Client) error {
	users, err := directory.ListUsers(ctx, opts.listUsers)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	return printUsers(cmd.OutOrStdout(), opts.output, users)
}

func runSearchUsers(ctx context.Context, cmd *cobra.Command, opts *options, directory *sdk.Client) error {
	users, err := directory.SearchUsers(ctx, opts.search, opts.top)
	if err != nil {
		return fmt.Errorf("failed to search users: %w", err)
	}
	return printUsers(cmd.OutOrStdout(), opts.output, users)
}

func runCreateUser(ctx context.Context, cmd *cobra.Command, opts *options, directory *sdk.Client) error {
	user, err := directory.CreateUser(ctx, sdk.CreateUserInput{
		DisplayName: opts.displayName,
		Username:    opts.username,
		Password:    opts.password,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.output == outputJSON {
		return writeJSON(out, user)
	}
	fmt.Fprintln(out, "User created:")
	printUser(out, *user)
	return nil
}

func runDeleteUser(ctx context.Context, cmd *cobra.Command, opts *options, directory *sdk.Client) error {
	if err := directory.DeleteUser(ctx, opts.deleteUser); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.output == outputJSON {
		return writeJSON(out, map[string]string{"deleted": opts.deleteUser})
	}
	fmt.Fprintln(out, "User deleted.")
	return nil
}
