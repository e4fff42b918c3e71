package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/castillorm/graphctl/cmd/graphctl/internal/client"
	"github.com/castillorm/graphctl/cmd/graphctl/internal/config"
	"github.com/castillorm/graphctl/cmd/graphctl/internal/logger"
	"github.com/castillorm/graphctl/pkg/sdk"
)

const (
	flagListUsers   = "list-users"
	flagSearch      = "search"
	flagCreateUser  = "create-user"
	flagDeleteUser  = "delete-user"
	flagDisplayName = "display-name"
	flagUsername    = "username"
	flagPassword    = "password"
	flagTop         = "top"
	flagConfig      = "config"
	flagDebug       = "debug"
	flagOutput      = "output"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// actionFlags are mutually exclusive; exactly one is required.
var actionFlags = []string{flagListUsers, flagSearch, flagCreateUser, flagDeleteUser}

// options holds parsed flag values for a single invocation.
type options struct {
	listUsers  int
	search     string
	createUser bool
	deleteUser string

	displayName string
	username    string
	password    string

	top        int
	configPath string
	debug      bool
	output     string

	log logger.Sugared
}

// NewRootCmd builds the graphctl command. Each call returns an independent
// command tree so tests can execute it repeatedly.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "graphctl",
		Short: "Manage directory users through Microsoft Graph",
		Long: `graphctl manages Entra ID (Azure AD) users through the Microsoft Graph API.
It authenticates as an application using the client-credentials grant and supports
listing, searching, creating and deleting users.

Exactly one of --list-users, --search, --create-user or --delete-user is required.
Configuration is read from config.json (or --config) and GRAPHCTL_* environment variables.`,
		Example: `  graphctl --list-users 25
  graphctl --search Ann
  graphctl --create-user --display-name "Ann Lee" --username alee --password 'P@ssw0rd!'
  graphctl --delete-user alee@contoso.com`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInvocation(cmd, opts, args); err != nil {
				return err
			}

			if os.Getenv("GRAPHCTL_DEBUG") == "1" {
				opts.debug = true
			}
			opts.log = logger.New(opts.debug)

			configPath := opts.configPath
			if configPath == "" {
				configPath = os.Getenv("GRAPHCTL_CONFIG")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			opts.log.Debugw("configuration loaded",
				"graph_api_url", cfg.GraphAPIURL,
				"authority_host", cfg.AuthorityHost,
				"credential_backend", cfg.CredentialBackend,
				"tenant_domain", cfg.TenantDomain,
			)

			cmd.SetContext(config.InjectConfig(cmd.Context(), cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = opts.log.Sync() }()

			cfg := config.MustFromContext(cmd.Context())
			directory, err := client.NewProvider(cfg, opts.log).SDKClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
			defer cancel()

			return runAction(ctx, cmd, opts, directory)
		},
	}

	flags := rootCmd.Flags()
	flags.IntVar(&opts.listUsers, flagListUsers, sdk.DefaultPageSize, "List the first N users (default 10 when no value is given)")
	flags.Lookup(flagListUsers).NoOptDefVal = fmt.Sprint(sdk.DefaultPageSize)
	flags.StringVar(&opts.search, flagSearch, "", "Search users whose display name or mail starts with the given prefix")
	flags.BoolVar(&opts.createUser, flagCreateUser, false, "Create a new user (requires --display-name, --username, --password)")
	flags.StringVar(&opts.deleteUser, flagDeleteUser, "", "Delete a user by object ID or user principal name")

	flags.StringVar(&opts.displayName, flagDisplayName, "", "Display name for --create-user")
	flags.StringVar(&opts.username, flagUsername, "", "Username (principal name local part) for --create-user")
	flags.StringVar(&opts.password, flagPassword, "", "Initial password for --create-user; must be changed at next sign-in")

	flags.IntVar(&opts.top, flagTop, sdk.DefaultPageSize, "Maximum number of results for --search")
	flags.StringVar(&opts.configPath, flagConfig, "", "Path to the configuration file (env: GRAPHCTL_CONFIG, default ./config.json)")
	flags.BoolVar(&opts.debug, flagDebug, false, "Log token and HTTP request diagnostics to stderr (also set via GRAPHCTL_DEBUG=1)")
	flags.StringVarP(&opts.output, flagOutput, "o", outputText, "Output format: text or json")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{msg: "invalid flags", err: err}
	})

	return rootCmd
}

// Run executes graphctl with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		// cobra falls back to os.Args when given nil
		args = []string{}
	}

	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	switch code {
	case ExitUsage:
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, rootCmd.UsageString())
	case ExitFailure:
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// Execute runs the root command and exits the process.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
