package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/config"
	"github.com/voxlab/callflow/internal/ui"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Maintenance operations",
}

var adminPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete long-inactive segments",
	Long: `Delete segments that have been inactive for longer than --older-than.
Deactivated segments are kept around so discarded drafts and pruned flows can
be inspected; purge is the one operation that physically removes them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if !cmd.Flags().Changed("older-than") {
			olderThan = config.GetDuration(config.KeyPurgeTTL)
		}

		n, err := store.PurgeInactiveSegments(rootCtx, olderThan)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int64{"purged": n})
			return nil
		}
		fmt.Printf("%s Purged %d inactive segments\n", styled(ui.RenderPass, ui.IconPass), n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Printf("cf version %s (%s)\n", Version, Build)
	},
}

func init() {
	adminPurgeCmd.Flags().Duration("older-than", 0, "Inactivity age before deletion (default from purge.ttl config)")

	adminCmd.AddCommand(adminPurgeCmd)
	rootCmd.AddCommand(adminCmd, versionCmd)
}
