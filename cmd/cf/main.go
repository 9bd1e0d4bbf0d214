package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/config"
	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/history"
	"github.com/voxlab/callflow/internal/lifecycle"
	"github.com/voxlab/callflow/internal/storage/sqlite"
)

// Version and Build are set at link time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	dbPath     string
	actor      string
	jsonOutput bool

	store     *sqlite.Store
	manager   *lifecycle.Manager
	histories *history.Manager

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noDBCommands run without opening the store.
var noDBCommands = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
}

func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noDBCommands[c.Name()] {
			return false
		}
	}
	return true
}

// getActor resolves the audit actor.
// Priority: --actor flag > CALLFLOW_ACTOR env/config > $USER > "unknown"
func getActor() string {
	if actor != "" {
		return actor
	}
	if configured := config.GetString(config.KeyActor); configured != "" {
		return configured
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return config.GetString(config.KeyDB)
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: $CALLFLOW_DB or ~/.callflow/callflow.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for audit trail (default: $CALLFLOW_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "cf - Call-flow versioning and validation engine",
	Long: `Versioned IVR call-flow editor backend. Flows are graphs of segments
connected by result-labeled transitions; edits accumulate in drafts and are
validated before publishing atomically.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("cf version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if jsonOutput {
			config.Set(config.KeyJSON, true)
		}
		jsonOutput = config.GetBool(config.KeyJSON)

		if !needsStore(cmd) {
			return nil
		}
		if cmd.Name() == "init" {
			return nil // init opens the store itself to create the file
		}

		path := resolveDBPath()
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no database at %s (run 'cf init' first)", path)
		}
		s, err := sqlite.New(rootCtx, path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		store = s
		manager = lifecycle.New(store, loadDictionary())
		histories = history.New(store)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// loadDictionary merges custom segment types from config over the builtins.
func loadDictionary() *dictionary.Dictionary {
	dict, err := dictionary.FromViper(config.Viper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring invalid segment_types config: %v\n", err)
		return dictionary.Builtin()
	}
	return dict
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
