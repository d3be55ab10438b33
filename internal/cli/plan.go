package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsrun-io/opsrun/internal/precheck"
)

var planCmd = &cobra.Command{
	Use:   "plan <manifest>",
	Short: "Show what a run would do without executing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	p, err := buildPipeline(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	results, op, err := p.Plan(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Operation %s in %s/%s would:\n", op.Type, cfg.Scope, op.Region)
	for _, res := range results {
		symbol := " "
		switch res.Decision {
		case precheck.DecisionProceed:
			symbol = "~"
		case precheck.DecisionAlreadySatisfied:
			symbol = "="
		case precheck.DecisionPreconditionFailed:
			symbol = "!"
		}
		line := fmt.Sprintf("  %s %s  %s → %s", symbol, res.Target.LogicalKey, res.Target.Action, res.Decision)
		if res.Reason != "" {
			line += "  (" + res.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}
