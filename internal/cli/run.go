package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsrun-io/opsrun/internal/ops"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Execute an operation manifest",
	Long: `Resolves the manifest against the provisioning snapshot, skips targets
whose action is already applied, executes the rest, and records outcomes
in both channels. Exits non-zero unless every target ends success or
already-satisfied.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	p, err := buildPipeline(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Operation %s in %s/%s (run %s):\n",
		report.OperationType, cfg.Scope, report.Region, report.RunID)
	renderReport(report)
	fmt.Printf("\n%d succeeded, %d already satisfied, %d failed, %d timed out, %d precondition failed, %d unresolved.\n",
		countOutcomes(report.Outcomes, ops.OutcomeSuccess),
		countOutcomes(report.Outcomes, ops.OutcomeAlreadySatisfied),
		countOutcomes(report.Outcomes, ops.OutcomeFailure),
		countOutcomes(report.Outcomes, ops.OutcomeTimeout),
		countOutcomes(report.Outcomes, ops.OutcomePreconditionFailed),
		len(report.Unresolved))

	if report.DurableWriteFailed {
		fmt.Println("WARNING: durable state record was not written; audit trail is incomplete.")
	}
	if report.Failed() {
		return fmt.Errorf("operation %s did not fully succeed", report.OperationType)
	}
	return nil
}
