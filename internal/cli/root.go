package cli

import (
	"context"

	"resumatch/internal/client"
	"resumatch/internal/common"
	"resumatch/internal/config"
	"resumatch/internal/errors"
	"resumatch/internal/session"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}
type vaultKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}
var vaultKey = vaultKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumatch",
	Short: "Match your resume against job descriptions",
	Long: `Resumatch scores a resume against a job description and streams the
analysis progress live. It also tracks job applications, shows billing and
dashboard information, and can run a local relay that re-serves analysis
streams to other tools.`,
	SilenceUsage: true,
}

// Execute runs the root command. vault may be nil when Vault is disabled.
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger, vault *config.VaultClient) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	ctx = context.WithValue(ctx, vaultKey, vault)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

func getVaultFromContext(ctx context.Context) *config.VaultClient {
	vault, _ := ctx.Value(vaultKey).(*config.VaultClient)
	return vault
}

// newSession opens the configured token store
func newSession(ctx context.Context) (session.Accessor, error) {
	cfg := getConfigFromContext(ctx)
	return session.New(cfg.Session, getVaultFromContext(ctx), getLoggerFromContext(ctx))
}

// newAPIClient builds a backend client over the configured token store
func newAPIClient(ctx context.Context, opts ...client.Option) (*client.Client, error) {
	cfg := getConfigFromContext(ctx)
	acc, err := newSession(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]client.Option{client.WithStreamConfig(cfg.Stream)}, opts...)
	return client.New(cfg.API, acc, getLoggerFromContext(ctx), opts...)
}

// addOutputFlags registers -o and --format on cmd and fills out
func addOutputFlags(cmd *cobra.Command, out *common.CommandConfig) {
	cmd.Flags().StringVarP(&out.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&out.OutputFormat, "format", "", "Output format: json, yaml, text, markdown or pretty")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.SupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

// resolveOutput applies the default format and validates it
func resolveOutput(cmd *cobra.Command, out *common.CommandConfig) error {
	cfg := getConfigFromContext(cmd.Context())
	if out.OutputFormat == "" {
		out.OutputFormat = cfg.App.DefaultFormat
	}
	return common.ValidateOutputFormat(out.OutputFormat, cfg.App.SupportedFormats)
}

// fetchCommand builds a command that prints what fetch returns
func fetchCommand[Output any](use, short string, args cobra.PositionalArgs,
	fetch func(cmd *cobra.Command, c *client.Client, args []string) (Output, error)) *cobra.Command {
	var out common.CommandConfig
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return resolveOutput(cmd, &out)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd.Context())
			if err != nil {
				return err
			}
			return common.RunFetchCommand(cmd.Context(), getLoggerFromContext(cmd.Context()), out,
				func(ctx context.Context) (Output, error) {
					return fetch(cmd, c, args)
				})
		},
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(analysisCmd)
	rootCmd.AddCommand(applicationsCmd)
	rootCmd.AddCommand(billingCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(oauthCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(versionCmd)
}
