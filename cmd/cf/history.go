package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/config"
	"github.com/voxlab/callflow/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Routing version snapshots",
	Long: `Record and restore versions of a routing's entries. Rollback recreates
the entries from a snapshot; it never rewrites history.`,
}

var historySnapshotCmd = &cobra.Command{
	Use:   "snapshot <routing-id>",
	Short: "Record the current routing entries as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := histories.Snapshot(rootCtx, args[0], getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(snap)
			return nil
		}
		fmt.Printf("%s Recorded version %d of routing %s\n",
			styled(ui.RenderPass, ui.IconPass), snap.Version, args[0])
		return nil
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list <routing-id>",
	Short: "List recorded versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := histories.List(rootCtx, args[0])
		if err != nil {
			return err
		}
		active, err := histories.ActiveVersion(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(snaps)
			return nil
		}
		if len(snaps) == 0 {
			fmt.Printf("No versions recorded for routing %s\n", args[0])
			return nil
		}
		for _, s := range snaps {
			marker := " "
			if s.Version == active {
				marker = styled(ui.RenderAccent, "*")
			}
			fmt.Printf("%s v%-4d %s %s\n", marker, s.Version,
				s.CreatedAt.Format("2006-01-02 15:04"), s.CreatedBy)
		}
		return nil
	},
}

var historyRollbackCmd = &cobra.Command{
	Use:   "rollback <routing-id> <version>",
	Short: "Restore routing entries from a recorded version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		entries, err := histories.Rollback(rootCtx, args[0], version, getActor())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(entries)
			return nil
		}
		fmt.Printf("%s Restored %d entries of routing %s from version %d\n",
			styled(ui.RenderPass, ui.IconPass), len(entries), args[0], version)
		return nil
	},
}

var historyCleanupCmd = &cobra.Command{
	Use:   "cleanup <routing-id>",
	Short: "Delete old versions",
	Args:  cobra.ExactArgs(1),
	Long:  `Delete old versions, keeping the newest --keep and the active version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if !cmd.Flags().Changed("keep") {
			keep = config.GetInt(config.KeyHistoryKeep)
		}
		removed, err := histories.Cleanup(rootCtx, args[0], keep)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(removed)
			return nil
		}
		if len(removed) == 0 {
			fmt.Println("Nothing to clean up")
			return nil
		}
		fmt.Printf("%s Removed %d versions: %v\n",
			styled(ui.RenderPass, ui.IconPass), len(removed), removed)
		return nil
	},
}

func init() {
	historyCleanupCmd.Flags().Int("keep", 10, "Versions to keep (default from history.keep config)")

	historyCmd.AddCommand(historySnapshotCmd, historyListCmd, historyRollbackCmd, historyCleanupCmd)
	rootCmd.AddCommand(historyCmd)
}
