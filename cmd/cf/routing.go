package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/idgen"
	"github.com/voxlab/callflow/internal/types"
	"github.com/voxlab/callflow/internal/ui"
)

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Manage the routing directory",
	Long:  `Routing entries map call sources (dialed numbers, SIP endpoints) to a routing and its entry segment.`,
}

var routingAddCmd = &cobra.Command{
	Use:   "add <routing-id>",
	Short: "Add a routing entry",
	Args:  cobra.ExactArgs(1),
	Long: `Add an entry to the routing directory.

Examples:
  cf routing add main --source +15550100 --init welcome
  cf routing add support --source sip:help@example.com --init triage --flag after_hours=true`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		initSegment, _ := cmd.Flags().GetString("init")
		flagPairs, _ := cmd.Flags().GetStringSlice("flag")

		flags, err := parseFlagPairs(flagPairs)
		if err != nil {
			return err
		}

		entry := &types.RoutingEntry{
			ID:          idgen.New(idgen.PrefixRoutingEntry),
			RoutingID:   args[0],
			Source:      source,
			InitSegment: initSegment,
			Flags:       flags,
			Active:      true,
		}
		if err := store.PutRoutingEntry(rootCtx, entry); err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(entry)
			return nil
		}
		fmt.Printf("%s Added %s to routing %s (entry %s)\n",
			styled(ui.RenderPass, ui.IconPass), source, entry.RoutingID, entry.ID)
		return nil
	},
}

var routingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routing ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := store.ListRoutingIDs(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(ids)
			return nil
		}
		if len(ids) == 0 {
			fmt.Println("No routings. Add one with 'cf routing add'.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var routingShowCmd = &cobra.Command{
	Use:   "show <routing-id>",
	Short: "Show a routing's entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		entries, err := store.ListRoutingEntries(rootCtx, args[0], !all)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(entries)
			return nil
		}
		if len(entries) == 0 {
			fmt.Printf("No entries for routing %s\n", args[0])
			return nil
		}
		fmt.Println(styled(ui.RenderCategory, "routing "+args[0]))
		for _, e := range entries {
			state := ""
			if !e.Active {
				state = " " + styled(ui.RenderMuted, "(inactive)")
			}
			fmt.Printf("  %-14s %s -> %s%s\n", e.ID, e.Source, e.InitSegment, state)
			for k, v := range e.Flags {
				fmt.Printf("    %s\n", styled(ui.RenderMuted, fmt.Sprintf("%s=%t", k, v)))
			}
		}
		return nil
	},
}

func parseFlagPairs(pairs []string) (map[string]bool, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	flags := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		key, value, found := strings.Cut(p, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --flag %q, expected name=true|false", p)
		}
		switch value {
		case "true":
			flags[key] = true
		case "false":
			flags[key] = false
		default:
			return nil, fmt.Errorf("invalid --flag %q, expected name=true|false", p)
		}
	}
	return flags, nil
}

func init() {
	routingAddCmd.Flags().String("source", "", "Call source (dialed number or endpoint)")
	routingAddCmd.Flags().String("init", "", "Entry segment name")
	routingAddCmd.Flags().StringSlice("flag", nil, "Behavior flag as name=true|false (repeatable)")
	_ = routingAddCmd.MarkFlagRequired("source")
	_ = routingAddCmd.MarkFlagRequired("init")

	routingShowCmd.Flags().Bool("all", false, "Include inactive entries")

	routingCmd.AddCommand(routingAddCmd, routingListCmd, routingShowCmd)
	rootCmd.AddCommand(routingCmd)
}
