package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/voxlab/callflow/internal/types"
	"github.com/voxlab/callflow/internal/ui"
)

// outputJSON writes v as indented JSON to stdout.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode output: %v\n", err)
		os.Exit(1)
	}
}

// styled gates lipgloss rendering on a real terminal; piped output stays plain.
func styled(render func(string) string, s string) string {
	if !ui.IsTerminal() {
		return s
	}
	return render(s)
}

// printValidationResult renders a validation result for humans. Errors first,
// then warnings, then a one-line verdict.
func printValidationResult(routingID string, result *types.ValidationResult) {
	for _, issue := range result.Errors {
		fmt.Printf("%s %s: %s\n", styled(ui.RenderFail, ui.IconFail), issue.Location, issue.Message)
		if issue.Suggestion != "" {
			fmt.Printf("  %s\n", styled(ui.RenderMuted, issue.Suggestion))
		}
	}
	for _, issue := range result.Warnings {
		fmt.Printf("%s %s: %s\n", styled(ui.RenderWarn, ui.IconWarn), issue.Location, issue.Message)
		if issue.Suggestion != "" {
			fmt.Printf("  %s\n", styled(ui.RenderMuted, issue.Suggestion))
		}
	}
	if result.IsValid() {
		fmt.Printf("%s %s: valid (%d warnings)\n",
			styled(ui.RenderPass, ui.IconPass), routingID, len(result.Warnings))
	} else {
		fmt.Printf("%s %s: %d errors, %d warnings\n",
			styled(ui.RenderFail, ui.IconFail), routingID, len(result.Errors), len(result.Warnings))
	}
}
