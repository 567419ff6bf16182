// Package commands implements the cts command line interface
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbase/cts-browser/config"
	"github.com/kbase/cts-browser/internal/app"
	"github.com/kbase/cts-browser/internal/constants"
	"github.com/kbase/cts-browser/internal/jobsync"
	"github.com/kbase/cts-browser/internal/logger"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagToken         = "token"
	flagMock          = "mock"
	flagOutput        = "output"
	flagLogLevel      = "log-level"
	flagEnvFile       = "env-file"
)

// output formats
const (
	outputJSON  = "json"
	outputTable = "table"
)

// cli holds the parsed global flags and, once PersistentPreRunE has run,
// the application context
type cli struct {
	serverAddress string
	token         string
	mock          bool
	output        string
	logLevel      string
	envFile       string

	app *app.App
}

// NewRootCmd builds the cts command tree
func NewRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "cts",
		Short: "CTS CLI - browse and monitor jobs on the KBase CTS",
		Long: `cts is a command line tool for browsing, monitoring and canceling jobs
submitted to the KBase CDM Task Service. Use --mock to work against built-in
sample data without a token.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.serverAddress, flagServerAddress, "s", "", envHelp("Base URL of the CTS", constants.EnvAPIBase))
	flags.StringVar(&c.token, flagToken, "", envHelp("KBase auth token", constants.EnvAuthToken))
	flags.BoolVar(&c.mock, flagMock, false, envHelp("Serve requests from built-in sample data", constants.EnvMockMode))
	flags.StringVarP(&c.output, flagOutput, "o", outputTable, "Output format: json or table")
	flags.StringVar(&c.logLevel, flagLogLevel, "", envHelp("Log level", constants.EnvLogLevel))
	flags.StringVar(&c.envFile, flagEnvFile, ".env", "Optional env file to load")

	rootCmd.AddCommand(newJobsCmd(c))
	rootCmd.AddCommand(newSitesCmd(c))
	rootCmd.AddCommand(newMockServerCmd(c))
	rootCmd.AddCommand(newProxyCmd(c))

	return rootCmd
}

func envHelp(usage, env string) string {
	return fmt.Sprintf("%s (env: %s)", usage, env)
}

// setup loads the configuration with flag > env > default precedence and
// builds the application context
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.output != outputJSON && c.output != outputTable {
		return fmt.Errorf("invalid output format '%s' (expected json or table)", c.output)
	}

	cfg, err := config.Load(c.envFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed(flagServerAddress) {
		cfg.APIBase = c.serverAddress
	}
	if flags.Changed(flagToken) {
		cfg.Token = c.token
	}
	if flags.Changed(flagMock) {
		cfg.MockMode = c.mock
	}
	if flags.Changed(flagLogLevel) {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Configure(cfg.LogLevel, logger.FormatText, cmd.ErrOrStderr()); err != nil {
		return err
	}

	c.app, err = app.New(cfg)
	if err != nil {
		return err
	}
	c.app.Start(cmd.Context())

	logger.Debugf("Using CTS at %s (mock mode: %t)", cfg.APIBase, cfg.MockMode)
	return nil
}

// requireEnabled fails with a hint when kind cannot run under in
func requireEnabled(kind jobsync.Kind, in jobsync.Inputs) error {
	if jobsync.Enabled(kind, in) {
		return nil
	}
	if !in.HasToken && !in.MockMode {
		return fmt.Errorf("no credentials: pass --%s, set %s, or use --%s", flagToken, constants.EnvAuthToken, flagMock)
	}
	return fmt.Errorf("%s query is not available for the current selection", kind)
}

// Execute runs the command tree with ctx
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
