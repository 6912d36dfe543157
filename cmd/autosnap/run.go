package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/driftbyte/autosnap/pkg/config"
	"github.com/driftbyte/autosnap/pkg/engine"
	"github.com/driftbyte/autosnap/pkg/hook"
	"github.com/driftbyte/autosnap/pkg/logging"
	"github.com/driftbyte/autosnap/pkg/provider"
	"github.com/driftbyte/autosnap/pkg/provider/aws"
)

// NewRunCommand builds the `run <period>` command. Meant to be invoked by
// cron or an equivalent scheduler:
//
//	@hourly  autosnap run hour
//	@daily   autosnap run day
//	@weekly  autosnap run week
//	@monthly autosnap run month
//
// The process exits non-zero only for configuration and startup errors.
// Per-volume failures are logged and summarized; partial failure is not
// process failure.
func NewRunCommand(version string) *cobra.Command {
	var (
		policyFile      string
		region          string
		credentialsFile string
		logLevel        string
		parallelism     int
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:       "run <period>",
		Short:     "Create and retire snapshots for one period",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"hour", "day", "week", "month"},
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := config.ParsePeriod(args[0])
			if err != nil {
				return err
			}

			settings, err := config.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("reading settings from environment: %w", err)
			}
			applyFlagOverrides(cmd.Flags(), &settings, policyFile, region, credentialsFile, logLevel, parallelism)

			lvl, err := logging.ParseLevel(settings.LogLevel)
			if err != nil {
				return err
			}
			log := logging.New(logging.Config{Level: lvl}).WithField("version", version)

			cfg, err := config.Load(settings.PolicyFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := aws.NewClient(ctx, log, aws.Config{
				Region:          settings.Region,
				CredentialsFile: settings.CredentialsFile,
				Retry: provider.RetryConfig{
					MaxAttempts: settings.RetryMaxAttempts,
					BaseDelay:   settings.RetryBaseDelay,
				},
			})
			if err != nil {
				return err
			}

			runner := engine.NewRunner(log, cfg, client, hook.NewRegistry(cfg), engine.RunnerConfig{
				Parallelism: settings.Parallelism,
				DryRun:      dryRun,
			})
			_, err = runner.Run(ctx, period)
			return err
		},
	}

	cmd.Flags().StringVar(&policyFile, "config", "", "path to the policy file (default $AUTOSNAP_POLICY_FILE)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region of the volumes")
	cmd.Flags().StringVar(&credentialsFile, "credentials-file", "", "path to an AWS shared credentials file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max concurrent volumes per policy")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log intended creations and deletions without mutating anything")

	return cmd
}

// Flags win over environment, environment wins over defaults.
func applyFlagOverrides(flags *pflag.FlagSet, settings *config.Settings, policyFile, region, credentialsFile, logLevel string, parallelism int) {
	if flags.Changed("config") {
		settings.PolicyFile = policyFile
	}
	if flags.Changed("region") {
		settings.Region = region
	}
	if flags.Changed("credentials-file") {
		settings.CredentialsFile = credentialsFile
	}
	if flags.Changed("log-level") {
		settings.LogLevel = logLevel
	}
	if flags.Changed("parallelism") {
		settings.Parallelism = parallelism
	}
}
