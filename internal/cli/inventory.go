package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory <manifest>",
	Short: "Print the Ansible dynamic inventory for a manifest",
	Long: `Builds the dynamic inventory the action playbooks consume: resolved
targets as hosts under the operation's group, with per-host vars
carrying the matched resource's identity and the requested action.`,
	Args: cobra.ExactArgs(1),
	RunE: runInventory,
}

func runInventory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	p, err := buildPipeline(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	doc, err := p.Inventory(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(string(doc))
	return nil
}
