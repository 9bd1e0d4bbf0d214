package sqlite

import (
	"context"
	"testing"

	"github.com/voxlab/callflow/internal/types"
)

// newTestStore opens an isolated store for one test. By default it uses a
// temp-file database: ":memory:" shares one database across the process,
// which lets parallel tests interfere.
func newTestStore(t *testing.T, dbPath string) *Store {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test database: %v", cerr)
		}
	})
	return store
}

// seedRouting registers an active routing entry so segment writes against
// the routing pass the directory gate.
func seedRouting(t *testing.T, store *Store, routingID, initSegment string) {
	t.Helper()
	err := store.PutRoutingEntry(context.Background(), &types.RoutingEntry{
		ID:          "re-" + routingID,
		RoutingID:   routingID,
		Source:      "+15550100",
		InitSegment: initSegment,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("failed to seed routing %s: %v", routingID, err)
	}
}

// testSegment builds a minimal valid segment in the published scope.
func testSegment(routingID, name string, transitions ...*types.Transition) *types.Segment {
	return &types.Segment{
		RoutingID:   routingID,
		Name:        name,
		Type:        "menu",
		Config:      []types.ConfigEntry{{Key: "prompt", Value: name + ".wav"}},
		Transitions: transitions,
		Scope:       types.Published,
		Active:      true,
	}
}
