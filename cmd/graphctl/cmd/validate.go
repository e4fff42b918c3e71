package cmd

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// validateInvocation enforces the flag contract before anything else runs.
func validateInvocation(cmd *cobra.Command, opts *options, args []string) error {
	flags := cmd.Flags()

	var chosen []string
	for _, name := range actionFlags {
		// --create-user=false does not select an action
		if flags.Changed(name) && (name != flagCreateUser || opts.createUser) {
			chosen = append(chosen, "--"+name)
		}
	}
	switch len(chosen) {
	case 0:
		return usageErrorf("one of %s is required", "--"+strings.Join(actionFlags, ", --"))
	case 1:
	default:
		return usageErrorf("flags %s are mutually exclusive", strings.Join(chosen, ", "))
	}

	// "--list-users 25" leaves 25 as a positional argument because the
	// flag value is optional.
	if len(args) > 0 {
		if !flags.Changed(flagListUsers) || len(args) != 1 {
			return usageErrorf("unexpected arguments: %s", strings.Join(args, " "))
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return usageErrorf("invalid value %q for --%s: expected an integer", args[0], flagListUsers)
		}
		opts.listUsers = n
	}

	switch opts.output {
	case outputText, outputJSON:
	default:
		return usageErrorf("invalid --%s %q: expected %s or %s", flagOutput, opts.output, outputText, outputJSON)
	}

	warn := pterm.Warning.WithWriter(cmd.ErrOrStderr())

	switch {
	case flags.Changed(flagListUsers):
		if opts.listUsers <= 0 {
			return usageErrorf("--%s must be a positive integer, got %d", flagListUsers, opts.listUsers)
		}
	case flags.Changed(flagSearch):
		if opts.search == "" {
			return usageErrorf("--%s requires a non-empty prefix", flagSearch)
		}
		if opts.top <= 0 {
			return usageErrorf("--%s must be a positive integer, got %d", flagTop, opts.top)
		}
	case opts.createUser:
		var missing []string
		if opts.displayName == "" {
			missing = append(missing, "--"+flagDisplayName)
		}
		if opts.username == "" {
			missing = append(missing, "--"+flagUsername)
		}
		if opts.password == "" {
			missing = append(missing, "--"+flagPassword)
		}
		if len(missing) > 0 {
			return usageErrorf("--%s requires --%s, --%s, --%s (missing: %s)",
				flagCreateUser, flagDisplayName, flagUsername, flagPassword, strings.Join(missing, ", "))
		}
	case flags.Changed(flagDeleteUser):
		if opts.deleteUser == "" {
			return usageErrorf("--%s requires a user ID or principal name", flagDeleteUser)
		}
	}

	if !opts.createUser {
		for _, name := range []string{flagDisplayName, flagUsername, flagPassword} {
			if flags.Changed(name) {
				warn.Printfln("--%s is only used with --%s; ignoring", name, flagCreateUser)
			}
		}
	}
	if flags.Changed(flagTop) && !flags.Changed(flagSearch) {
		warn.Printfln("--%s is only used with --%s; ignoring", flagTop, flagSearch)
	}

	return nil
}
