package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/voxlab/callflow/internal/export"
	"github.com/voxlab/callflow/internal/types"
	"github.com/voxlab/callflow/internal/ui"
)

var flowValidateCmd = &cobra.Command{
	Use:   "validate [routing-id]",
	Short: "Validate flows without writing anything",
	Long: `Run the validation rules against a stored flow, every stored flow
(--all), or a flow document on disk (--file). Validation never writes.

With --file and --watch, the document is re-validated every time it changes.

Examples:
  cf flow validate main
  cf flow validate main --draft cs-1a2b3c4d
  cf flow validate --all
  cf flow validate --file flow.yaml --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		file, _ := cmd.Flags().GetString("file")
		watch, _ := cmd.Flags().GetBool("watch")

		switch {
		case all:
			return validateAll(cmd)
		case file != "":
			if watch {
				return watchDocument(cmd, file)
			}
			return validateDocument(cmd, file)
		case len(args) == 1:
			view, err := manager.LoadFlow(rootCtx, args[0], scopeFromFlags(cmd))
			if err != nil {
				return err
			}
			return reportResult(cmd, args[0], view.Validation)
		default:
			return fmt.Errorf("specify a routing id, --all, or --file")
		}
	},
}

func validateAll(cmd *cobra.Command) error {
	results, err := manager.ValidateAll(rootCtx)
	if err != nil {
		return err
	}
	if jsonOutput {
		outputJSON(results)
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := 0
	for _, id := range ids {
		if !jsonOutput {
			printValidationResult(id, results[id])
		}
		if !results[id].IsValid() {
			failed++
		}
	}
	if failed > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("%d of %d routings failed validation", failed, len(ids))
	}
	return nil
}

func validateDocument(cmd *cobra.Command, path string) error {
	result, label, err := checkDocument(path)
	if err != nil {
		return err
	}
	return reportResultLabel(cmd, label, result)
}

// checkDocument decodes and validates a flow document. No database writes.
func checkDocument(path string) (*types.ValidationResult, string, error) {
	f, err := os.Open(path) // #nosec G304 - user-supplied document path
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := export.Decode(f, export.DetectFormat(path))
	if err != nil {
		return nil, "", err
	}
	snap, err := doc.Snapshot()
	if err != nil {
		return nil, "", err
	}
	return manager.ValidateOnly(snap), doc.RoutingID, nil
}

// watchDocument re-validates path whenever it changes, until interrupted.
// Editors replace files rather than writing in place, so the watch is on the
// directory and filtered by name.
func watchDocument(cmd *cobra.Command, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	runOnce := func() {
		result, label, err := checkDocument(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("%s %s\n", styled(ui.RenderMuted, time.Now().Format("15:04:05")), path)
		printValidationResult(label, result)
	}
	runOnce()

	// Write bursts (editor save = create + chmod + write) collapse into one run.
	var pending <-chan time.Time
	target := filepath.Clean(path)
	for {
		select {
		case <-rootCtx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Warning: watcher error: %v\n", err)
		case <-pending:
			pending = nil
			runOnce()
		}
	}
}

func reportResult(cmd *cobra.Command, routingID string, result *types.ValidationResult) error {
	return reportResultLabel(cmd, routingID, result)
}

func reportResultLabel(cmd *cobra.Command, label string, result *types.ValidationResult) error {
	if jsonOutput {
		outputJSON(result)
	} else {
		printValidationResult(label, result)
	}
	if !result.IsValid() {
		cmd.SilenceUsage = true
		return fmt.Errorf("validation failed")
	}
	return nil
}

func init() {
	flowValidateCmd.Flags().String("draft", "", "Change set id to overlay")
	flowValidateCmd.Flags().Bool("all", false, "Validate every routing")
	flowValidateCmd.Flags().String("file", "", "Validate a flow document instead of a stored flow")
	flowValidateCmd.Flags().Bool("watch", false, "With --file: re-validate on change")
}
