package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/ui"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage change sets",
	Long: `A change set is a draft workspace layered over the published flow.
One change set can be open per routing at a time; its edits become live only
when it is published.`,
}

var draftCreateCmd = &cobra.Command{
	Use:   "create <routing-id>",
	Short: "Open a new change set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := manager.CreateDraft(rootCtx, args[0], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cs)
			return nil
		}
		fmt.Printf("%s Created change set %s for routing %s\n",
			styled(ui.RenderPass, ui.IconPass), cs.ID, cs.RoutingID)
		return nil
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list <routing-id>",
	Short: "List change sets for a routing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, err := store.ListChangeSets(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(sets)
			return nil
		}
		if len(sets) == 0 {
			fmt.Printf("No change sets for routing %s\n", args[0])
			return nil
		}
		for _, cs := range sets {
			status := string(cs.Status)
			switch {
			case cs.Status.IsTerminal():
				status = styled(ui.RenderMuted, status)
			case cs.IsOpen():
				status = styled(ui.RenderAccent, status)
			}
			fmt.Printf("%-12s %-11s %s %s\n", cs.ID, status, cs.CreatedBy,
				cs.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var draftPublishCmd = &cobra.Command{
	Use:   "publish <routing-id> <change-set-id>",
	Short: "Validate and publish a change set",
	Args:  cobra.ExactArgs(2),
	Long: `Validate the draft's effective flow and promote it to published.

The promotion is atomic: either every draft segment replaces its published
counterpart, or nothing changes. Validation errors abort before any write.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := manager.Publish(rootCtx, args[0], args[1], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			if !result.IsValid() {
				cmd.SilenceUsage = true
				return fmt.Errorf("validation failed")
			}
			return nil
		}
		printValidationResult(args[0], result)
		if !result.IsValid() {
			cmd.SilenceUsage = true
			return fmt.Errorf("publish aborted")
		}
		fmt.Printf("%s Published change set %s\n", styled(ui.RenderPass, ui.IconPass), args[1])
		return nil
	},
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard <routing-id> <change-set-id>",
	Short: "Discard a change set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.Discard(rootCtx, args[0], args[1], getActor()); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{"discarded": args[1]})
			return nil
		}
		fmt.Printf("%s Discarded change set %s (published flow untouched)\n",
			styled(ui.RenderPass, ui.IconPass), args[1])
		return nil
	},
}

func init() {
	draftCmd.AddCommand(draftCreateCmd, draftListCmd, draftPublishCmd, draftDiscardCmd)
	rootCmd.AddCommand(draftCmd)
}
