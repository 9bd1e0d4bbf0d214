package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/export"
	"github.com/voxlab/callflow/internal/types"
	"github.com/voxlab/callflow/internal/ui"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Inspect and edit flows",
}

// scopeFromFlags resolves the --draft flag into a scope.
func scopeFromFlags(cmd *cobra.Command) types.Scope {
	changeSetID, _ := cmd.Flags().GetString("draft")
	if changeSetID == "" {
		return types.Published
	}
	return types.Draft(changeSetID)
}

var flowShowCmd = &cobra.Command{
	Use:   "show <routing-id>",
	Short: "Show a flow's segments and transitions",
	Args:  cobra.ExactArgs(1),
	Long: `Show the effective flow for a routing. With --draft, draft segments
overlay their published counterparts, exactly as the flow would publish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := manager.LoadFlow(rootCtx, args[0], scopeFromFlags(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(view)
			return nil
		}

		snap := view.Snapshot
		fmt.Println(styled(ui.RenderCategory, "flow "+snap.RoutingID))
		if snap.InitSegment != "" {
			fmt.Printf("entry: %s\n", snap.InitSegment)
		}
		segs := append([]*types.Segment(nil), snap.Segments...)
		sort.SliceStable(segs, func(i, j int) bool {
			if segs[i].Order != segs[j].Order {
				return segs[i].Order < segs[j].Order
			}
			return segs[i].Name < segs[j].Name
		})
		for _, seg := range segs {
			title := seg.Name
			if seg.DisplayName != "" {
				title += " " + styled(ui.RenderMuted, "("+seg.DisplayName+")")
			}
			fmt.Printf("%3d %s [%s]\n", seg.Order, title, seg.Type)
			for _, tr := range seg.Transitions {
				label := tr.ResultName
				if tr.IsDefault {
					label = "default"
				}
				if tr.ContextKey != "" {
					label += ":" + tr.ContextKey
				}
				target := tr.Target
				if target == "" {
					target = styled(ui.RenderMuted, "(exit)")
				}
				fmt.Printf("      %s -> %s\n", label, target)
			}
		}
		fmt.Println(styled(ui.RenderMuted, ui.SeparatorLight))
		printValidationResult(snap.RoutingID, view.Validation)
		return nil
	},
}

var flowSaveCmd = &cobra.Command{
	Use:   "save <routing-id> <file>",
	Short: "Validate a flow document and save it",
	Args:  cobra.ExactArgs(2),
	Long: `Save a flow document into a draft (--draft) or straight into the
published scope. The flow is validated first; a document with structural
errors is rejected without writing anything.

Examples:
  cf flow save main flow.yaml --draft cs-1a2b3c4d
  cf flow save main flow.json --prune`,
	RunE: func(cmd *cobra.Command, args []string) error {
		changeSetID, _ := cmd.Flags().GetString("draft")
		prune, _ := cmd.Flags().GetBool("prune")

		result, err := saveDocument(args[1], args[0], changeSetID, prune)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
		} else {
			printValidationResult(args[0], result)
		}
		if !result.IsValid() {
			cmd.SilenceUsage = true
			return fmt.Errorf("save aborted, nothing written")
		}
		return nil
	},
}

// saveDocument reads a flow document from path and saves it through the
// lifecycle manager. Shared by flow save and import.
func saveDocument(path, routingID, changeSetID string, prune bool) (*types.ValidationResult, error) {
	f, err := os.Open(path) // #nosec G304 - user-supplied document path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := export.Decode(f, export.DetectFormat(path))
	if err != nil {
		return nil, err
	}
	if doc.RoutingID != routingID {
		return nil, fmt.Errorf("document is for routing %s, not %s", doc.RoutingID, routingID)
	}
	snap, err := doc.Snapshot()
	if err != nil {
		return nil, err
	}
	return manager.Save(rootCtx, routingID, changeSetID, snap, prune, getActor())
}

var flowReorderCmd = &cobra.Command{
	Use:   "reorder <routing-id>",
	Short: "Recompute breadth-first execution order",
	Args:  cobra.ExactArgs(1),
	Long: `Recompute segment ordering by breadth-first traversal from the entry
segment and persist it. Segments the traversal cannot reach are placed after
the reachable ones, in name order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orders, err := manager.Reorder(rootCtx, args[0], scopeFromFlags(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(orders)
			return nil
		}
		names := make([]string, 0, len(orders))
		for name := range orders {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return orders[names[i]] < orders[names[j]] })
		for _, name := range names {
			fmt.Printf("%3d %s\n", orders[name], name)
		}
		return nil
	},
}

func init() {
	flowShowCmd.Flags().String("draft", "", "Change set id to overlay")
	flowSaveCmd.Flags().String("draft", "", "Change set id to save into (default: published scope)")
	flowSaveCmd.Flags().Bool("prune", false, "Deactivate segments missing from the document")
	flowReorderCmd.Flags().String("draft", "", "Change set id to reorder")

	flowCmd.AddCommand(flowShowCmd, flowSaveCmd, flowValidateCmd, flowReorderCmd)
	rootCmd.AddCommand(flowCmd)
}
