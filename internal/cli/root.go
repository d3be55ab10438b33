package cli

import (
	"github.com/spf13/cobra"

	"github.com/opsrun-io/opsrun/internal/logging"
)

var (
	flagScope        string
	flagBucket       string
	flagNamespace    string
	flagBucketRegion string
	flagLogLevel     string
	flagLogFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "opsrun",
	Short: "Day-2 operations against provisioned infrastructure",
	Long: `OpsRun executes operational actions (start/stop) against resources a
provisioning run already created. It resolves an operation manifest
against the live Terraform snapshot, skips work that is already done,
and records every outcome in both resource tags and a durable state
record.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel, flagLogFormat)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagScope, "scope", "oci", "Provider scope the manifest addresses (oci, aws)")
	pf.StringVar(&flagBucket, "bucket", "", "State bucket name (env STATE_BUCKET)")
	pf.StringVar(&flagNamespace, "namespace", "", "Object storage namespace (env STATE_NAMESPACE)")
	pf.StringVar(&flagBucketRegion, "bucket-region", "", "Region hosting the state bucket (env STATE_BUCKET_REGION)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(versionCmd)
}
