package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the callflow database",
	Long: `Create the callflow database and schema.

Examples:
  cf init                     # Create at the default path
  cf init --db ./flows.db     # Create at an explicit path`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveDBPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("database already exists at %s", path)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}

		s, err := sqlite.New(rootCtx, path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer func() { _ = s.Close() }()

		if jsonOutput {
			outputJSON(map[string]string{"db": path})
			return nil
		}
		fmt.Printf("Initialized callflow database at %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
