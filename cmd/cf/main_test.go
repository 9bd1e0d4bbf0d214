package main

import (
	"testing"
)

func TestParseFlagPairs(t *testing.T) {
	flags, err := parseFlagPairs([]string{"after_hours=true", "vip=false"})
	if err != nil {
		t.Fatalf("parseFlagPairs: %v", err)
	}
	if !flags["after_hours"] || flags["vip"] {
		t.Errorf("unexpected flags: %v", flags)
	}

	if _, err := parseFlagPairs(nil); err != nil {
		t.Errorf("empty input should be fine: %v", err)
	}

	for _, bad := range []string{"after_hours", "=true", "vip=yes"} {
		if _, err := parseFlagPairs([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNeedsStore(t *testing.T) {
	if needsStore(versionCmd) {
		t.Error("version should not open the store")
	}
	if !needsStore(flowShowCmd) {
		t.Error("flow show needs the store")
	}
	if !needsStore(historyRollbackCmd) {
		t.Error("history rollback needs the store")
	}
}
