package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/lifecycle"
	"github.com/voxlab/callflow/internal/storage/sqlite"
	"github.com/voxlab/callflow/internal/types"
)

func sampleSnapshot() *types.FlowSnapshot {
	return &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "welcome",
		Segments: []*types.Segment{
			{Name: "welcome", Type: "menu", Order: 1,
				Config: []types.ConfigEntry{{Key: "prompt", Value: "welcome.wav"}, {Key: "timeout", Value: "5"}},
				Hooks:  map[string]string{"on_enter": "log.enter"},
				Transitions: []*types.Transition{
					{ResultName: "sales", Target: "queue"},
					{ResultName: "hours", ContextKey: "after_hours", Target: "closed"},
					{ResultName: "hours", ContextKey: types.ContextDefault, Target: "queue"},
				}},
			{Name: "queue", Type: "transfer", Order: 2,
				Config:      []types.ConfigEntry{{Key: "destination", Value: "tel:100"}},
				Transitions: []*types.Transition{{IsDefault: true, Target: "closed"}}},
			{Name: "closed", Type: "hangup", Order: 3},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			doc := FromSnapshot(sampleSnapshot(), "alice")

			var buf bytes.Buffer
			if err := Encode(&buf, doc, format); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			back, err := Decode(&buf, format)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			snap, err := back.Snapshot()
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}

			if snap.RoutingID != "main" || snap.InitSegment != "welcome" {
				t.Errorf("header lost: %+v", snap)
			}
			if len(snap.Segments) != 3 {
				t.Fatalf("segment count = %d", len(snap.Segments))
			}
			welcome := snap.Index()["welcome"]
			if len(welcome.Config) != 2 || welcome.Config[0].Key != "prompt" {
				t.Errorf("config order lost: %+v", welcome.Config)
			}
			if welcome.Hooks["on_enter"] != "log.enter" {
				t.Errorf("hooks lost: %v", welcome.Hooks)
			}
			if len(welcome.Transitions) != 3 {
				t.Fatalf("transitions lost: %+v", welcome.Transitions)
			}
			if welcome.Transitions[1].ContextKey != "after_hours" {
				t.Errorf("context key lost: %+v", welcome.Transitions[1])
			}
			if welcome.Transitions[2].Position != 2 {
				t.Errorf("position not rebuilt: %+v", welcome.Transitions[2])
			}
			if !snap.Index()["queue"].Transitions[0].IsDefault {
				t.Error("default flag lost")
			}
		})
	}
}

func TestExportIsDeterministic(t *testing.T) {
	snap := sampleSnapshot()
	// Shuffle input order; export sorts by execution order.
	snap.Segments[0], snap.Segments[2] = snap.Segments[2], snap.Segments[0]

	doc := FromSnapshot(snap, "alice")
	if doc.Segments[0].Name != "welcome" || doc.Segments[2].Name != "closed" {
		t.Errorf("segments not in execution order: %v", []string{
			doc.Segments[0].Name, doc.Segments[1].Name, doc.Segments[2].Name})
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"future format version", `{"format_version": 99, "routing_id": "main", "segments": []}`},
		{"missing routing id", `{"format_version": 1, "segments": []}`},
		{"nameless segment", `{"format_version": 1, "routing_id": "main", "segments": [{"type": "menu"}]}`},
		{"typeless segment", `{"format_version": 1, "routing_id": "main", "segments": [{"name": "a"}]}`},
		{"duplicate segment", `{"format_version": 1, "routing_id": "main", "segments": [{"name": "a", "type": "menu"}, {"name": "a", "type": "menu"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tc.body), FormatJSON); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestSnapshotSharesNoMapsWithDocument(t *testing.T) {
	doc := FromSnapshot(sampleSnapshot(), "alice")
	doc.Segments[0].Transitions[0].Params = map[string]string{"priority": "high"}

	snap, err := doc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	welcome := snap.Index()["welcome"]
	welcome.Hooks["on_enter"] = "mutated"
	welcome.Transitions[0].Params["priority"] = "mutated"

	if doc.Segments[0].Hooks["on_enter"] != "log.enter" {
		t.Errorf("snapshot mutation leaked into document hooks: %v", doc.Segments[0].Hooks)
	}
	if doc.Segments[0].Transitions[0].Params["priority"] != "high" {
		t.Errorf("snapshot mutation leaked into document params: %v", doc.Segments[0].Transitions[0].Params)
	}
}

func TestDetectFormat(t *testing.T) {
	if got := DetectFormat("flow.yaml"); got != FormatYAML {
		t.Errorf("flow.yaml -> %s", got)
	}
	if got := DetectFormat("flow.YML"); got != FormatYAML {
		t.Errorf("flow.YML -> %s", got)
	}
	if got := DetectFormat("flow.json"); got != FormatJSON {
		t.Errorf("flow.json -> %s", got)
	}
	if got := DetectFormat("flow"); got != FormatJSON {
		t.Errorf("no extension -> %s", got)
	}
}

func TestImportIntoFreshRouting(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test store: %v", cerr)
		}
	})
	// A fresh environment's entry points at a placeholder; the document
	// must supply the real entry segment.
	if err := store.PutRoutingEntry(ctx, &types.RoutingEntry{
		ID: "re-1", RoutingID: "main", Source: "+15550100", InitSegment: "placeholder", Active: true,
	}); err != nil {
		t.Fatalf("failed to seed routing: %v", err)
	}
	m := lifecycle.New(store, dictionary.Builtin())

	var buf bytes.Buffer
	if err := Encode(&buf, FromSnapshot(sampleSnapshot(), "alice"), FormatJSON); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	result, err := Import(ctx, m, &buf, FormatJSON, "", false, "alice")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("import rejected: %+v", result.Errors)
	}

	entries, err := store.ListRoutingEntries(ctx, "main", true)
	if err != nil {
		t.Fatalf("ListRoutingEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].InitSegment != "welcome" {
		t.Errorf("routing entry not updated from the document: %+v", entries)
	}

	// The imported flow validates identically to the document it came from.
	view, err := m.LoadFlow(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("LoadFlow: %v", err)
	}
	if view.Snapshot.InitSegment != "welcome" {
		t.Errorf("loaded init segment = %q, want welcome", view.Snapshot.InitSegment)
	}
	if len(view.Validation.Errors) != len(result.Errors) ||
		len(view.Validation.Warnings) != len(result.Warnings) {
		t.Errorf("stored flow validates differently: import %+v, load %+v", result, view.Validation)
	}
}

func TestImportValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test store: %v", cerr)
		}
	})
	if err := store.PutRoutingEntry(ctx, &types.RoutingEntry{
		ID: "re-1", RoutingID: "main", Source: "+15550100", InitSegment: "welcome", Active: true,
	}); err != nil {
		t.Fatalf("failed to seed routing: %v", err)
	}
	m := lifecycle.New(store, dictionary.Builtin())

	// Structurally valid document, dangling target inside.
	body := `{"format_version": 1, "routing_id": "main", "init_segment": "welcome",
		"segments": [{"name": "welcome", "type": "menu",
		"transitions": [{"result_name": "ok", "target": "nowhere"}]}]}`
	result, err := Import(ctx, m, strings.NewReader(body), FormatJSON, "", false, "alice")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.IsValid() {
		t.Fatal("dangling target not caught")
	}
	segs, err := store.ListSegments(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("rejected import wrote %d rows", len(segs))
	}

	// Corrected document goes through.
	good := `{"format_version": 1, "routing_id": "main", "init_segment": "welcome",
		"segments": [{"name": "welcome", "type": "hangup"}]}`
	result, err = Import(ctx, m, strings.NewReader(good), FormatJSON, "", false, "alice")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("valid import rejected: %+v", result.Errors)
	}
	segs, _ = store.ListSegments(ctx, "main", types.Published)
	if len(segs) != 1 {
		t.Errorf("import wrote %d rows, want 1", len(segs))
	}
}
