package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/storage/sqlite"
	"github.com/voxlab/callflow/internal/types"
)

func newTestManager(t *testing.T) (*Manager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test store: %v", cerr)
		}
	})
	return New(store, dictionary.Builtin()), store
}

func seedRouting(t *testing.T, store *sqlite.Store, routingID, initSegment string) {
	t.Helper()
	err := store.PutRoutingEntry(context.Background(), &types.RoutingEntry{
		ID:          "re-" + routingID,
		RoutingID:   routingID,
		Source:      "+15550100",
		InitSegment: initSegment,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("failed to seed routing: %v", err)
	}
}

func flowAB() *types.FlowSnapshot {
	return &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments: []*types.Segment{
			{Name: "A", Type: "menu",
				Config:      []types.ConfigEntry{{Key: "prompt", Value: "a.wav"}},
				Transitions: []*types.Transition{{ResultName: "ok", Target: "B"}}},
			{Name: "B", Type: "hangup"},
		},
	}
}

func TestCreateDraftGatedOnRouting(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	if _, err := m.CreateDraft(ctx, "ghost", "alice"); !errors.Is(err, storage.ErrRoutingNotFound) {
		t.Errorf("expected ErrRoutingNotFound, got %v", err)
	}

	seedRouting(t, store, "main", "A")
	cs, err := m.CreateDraft(ctx, "main", "alice")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if cs.Status != types.StatusDraft || cs.CreatedBy != "alice" {
		t.Errorf("unexpected draft: %+v", cs)
	}

	if _, err := m.CreateDraft(ctx, "main", "bob"); !errors.Is(err, storage.ErrDraftExists) {
		t.Errorf("expected ErrDraftExists, got %v", err)
	}
}

func TestSaveValidFlow(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, err := m.CreateDraft(ctx, "main", "alice")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	result, err := m.Save(ctx, "main", cs.ID, flowAB(), false, "alice")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.IsValid() || len(result.Warnings) != 0 {
		t.Errorf("clean flow produced findings: %+v", result)
	}

	// Segments landed in the draft scope with BFS order.
	segs, err := store.ListSegments(ctx, "main", types.Draft(cs.ID))
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 2 || segs[0].Name != "A" || segs[0].Order != 1 || segs[1].Order != 2 {
		t.Errorf("unexpected draft segments: %+v", segs)
	}
	// Nothing in published scope yet.
	pub, _ := store.ListSegments(ctx, "main", types.Published)
	if len(pub) != 0 {
		t.Errorf("save leaked into published scope: %+v", pub)
	}

	got, err := store.GetChangeSet(ctx, cs.ID)
	if err != nil {
		t.Fatalf("GetChangeSet: %v", err)
	}
	if got.Status != types.StatusValidated {
		t.Errorf("save should mark the draft validated, got %s", got.Status)
	}
}

func TestSaveStructuralErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, _ := m.CreateDraft(ctx, "main", "alice")

	bad := flowAB()
	bad.Segments[0].Transitions[0].Target = "nowhere"
	result, err := m.Save(ctx, "main", cs.ID, bad, false, "alice")
	if err != nil {
		t.Fatalf("Save returned transport error: %v", err)
	}
	if result.IsValid() {
		t.Fatal("structural error not detected")
	}

	segs, err := store.ListSegments(ctx, "main", types.Draft(cs.ID))
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("rejected save wrote %d rows", len(segs))
	}
	got, _ := store.GetChangeSet(ctx, cs.ID)
	if got.Status != types.StatusDraft {
		t.Errorf("rejected save changed status to %s", got.Status)
	}
}

func TestSaveReturnsWarningsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, _ := m.CreateDraft(ctx, "main", "alice")

	looped := flowAB()
	looped.Segments[0].Transitions = append(looped.Segments[0].Transitions,
		&types.Transition{ResultName: "retry", Target: "A"})
	result, err := m.Save(ctx, "main", cs.ID, looped, false, "alice")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("cycle blocked a save: %+v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected cycle warning alongside success")
	}
}

func TestSaveUpdatesRoutingInitSegment(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	// Fresh environment: the entry was created before any flow existed and
	// points at a placeholder.
	seedRouting(t, store, "main", "placeholder")

	result, err := m.Save(ctx, "main", "", flowAB(), false, "alice")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("save rejected: %+v", result.Errors)
	}

	entries, err := store.ListRoutingEntries(ctx, "main", true)
	if err != nil {
		t.Fatalf("ListRoutingEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].InitSegment != "A" {
		t.Errorf("routing entry not pointed at the saved flow's entry: %+v", entries)
	}

	// The stored flow now validates the same way the document did.
	view, err := m.LoadFlow(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("LoadFlow: %v", err)
	}
	if view.Snapshot.InitSegment != "A" {
		t.Errorf("loaded init segment = %q, want A", view.Snapshot.InitSegment)
	}
	if !view.Validation.IsValid() || len(view.Validation.Warnings) != 0 {
		t.Errorf("stored flow diverges from the document's report: %+v", view.Validation)
	}
}

func TestDraftSaveLeavesRoutingInitSegment(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}

	cs, _ := m.CreateDraft(ctx, "main", "alice")
	draft := flowAB()
	draft.InitSegment = "B"
	if _, err := m.Save(ctx, "main", cs.ID, draft, false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}

	entries, _ := store.ListRoutingEntries(ctx, "main", true)
	if entries[0].InitSegment != "A" {
		t.Errorf("draft save moved the routing entry to %q", entries[0].InitSegment)
	}
}

func TestPartialSaveOrdersFromEffectiveGraph(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}

	cs, _ := m.CreateDraft(ctx, "main", "alice")
	// Partial document: only B, no init segment of its own. Order must come
	// from the effective traversal A -> B, not from B standing alone.
	edit := &types.FlowSnapshot{
		RoutingID: "main",
		Segments:  []*types.Segment{{Name: "B", Type: "hangup", DisplayName: "v2"}},
	}
	if _, err := m.Save(ctx, "main", cs.ID, edit, false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}

	seg, err := store.GetSegment(ctx, "main", "B", types.Draft(cs.ID))
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if seg.Order != 2 {
		t.Errorf("order = %d, want 2 from the effective graph", seg.Order)
	}
}

func TestSaveIntoTerminalChangeSetRejected(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	if err := m.Discard(ctx, "main", cs.ID, "alice"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	_, err := m.Save(ctx, "main", cs.ID, flowAB(), false, "alice")
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPublishPromotesDraft(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	if _, err := m.Save(ctx, "main", cs.ID, flowAB(), false, "alice"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := m.Publish(ctx, "main", cs.ID, "carol")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("publish validation failed: %+v", result.Errors)
	}

	pub, err := store.ListSegments(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(pub) != 2 {
		t.Fatalf("expected 2 published segments, got %d", len(pub))
	}
	for _, seg := range pub {
		if !seg.Scope.IsPublished() {
			t.Errorf("segment %s kept draft scope", seg.Name)
		}
	}

	got, _ := store.GetChangeSet(ctx, cs.ID)
	if got.Status != types.StatusPublished || got.PublishedBy != "carol" {
		t.Errorf("change set not finalized: %+v", got)
	}
}

func TestPublishReplacesSameNamePublished(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	// Publish v1 directly into the published scope.
	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}

	// Draft edits A only; B stays published from v1.
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	edit := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments: []*types.Segment{
			{Name: "A", Type: "menu", DisplayName: "v2",
				Config:      []types.ConfigEntry{{Key: "prompt", Value: "a2.wav"}},
				Transitions: []*types.Transition{{ResultName: "ok", Target: "B"}}},
		},
	}
	if _, err := m.Save(ctx, "main", cs.ID, edit, false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}
	if _, err := m.Publish(ctx, "main", cs.ID, "alice"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	a, err := store.GetSegment(ctx, "main", "A", types.Published)
	if err != nil {
		t.Fatalf("GetSegment A: %v", err)
	}
	if a.DisplayName != "v2" || a.Config[0].Value != "a2.wav" {
		t.Errorf("published A not replaced: %+v", a)
	}
	if _, err := store.GetSegment(ctx, "main", "B", types.Published); err != nil {
		t.Errorf("untouched published B lost: %v", err)
	}
}

func TestPublishTerminalChangeSetRejected(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	if _, err := m.Save(ctx, "main", cs.ID, flowAB(), false, "alice"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := m.Publish(ctx, "main", cs.ID, "alice"); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	if _, err := m.Publish(ctx, "main", cs.ID, "alice"); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("second publish must fail with ErrInvalidTransition, got %v", err)
	}
	if err := m.Discard(ctx, "main", cs.ID, "alice"); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("discard of published must fail, got %v", err)
	}
}

// failOnPublishTx wraps a transaction and fails the final status flip,
// simulating a crash at the end of the promotion.
type failOnPublishTx struct {
	storage.Transaction
	injected error
}

func (f *failOnPublishTx) TransitionChangeSet(ctx context.Context, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error {
	if to == types.StatusPublished {
		return f.injected
	}
	return f.Transaction.TransitionChangeSet(ctx, id, from, to, actor)
}

type failOnPublishStore struct {
	storage.Store
	injected error
}

func (f *failOnPublishStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return f.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(&failOnPublishTx{Transaction: tx, injected: f.injected})
	})
}

func TestPublishIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	_, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	injected := errors.New("injected mid-publish failure")
	m := New(&failOnPublishStore{Store: store, injected: injected}, dictionary.Builtin())

	// v1 straight to published, then a draft carrying v2.
	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}
	cs, err := m.CreateDraft(ctx, "main", "alice")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	v2 := flowAB()
	v2.Segments[0].DisplayName = "v2"
	if _, err := m.Save(ctx, "main", cs.ID, v2, false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}

	if _, err := m.Publish(ctx, "main", cs.ID, "alice"); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	// Published state is exactly as before the call.
	a, err := store.GetSegment(ctx, "main", "A", types.Published)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if a.DisplayName == "v2" {
		t.Error("failed publish leaked draft content into published scope")
	}
	// The draft survives untouched and open.
	draft, err := store.ListSegments(ctx, "main", types.Draft(cs.ID))
	if err != nil {
		t.Fatalf("ListSegments draft: %v", err)
	}
	if len(draft) != 2 {
		t.Errorf("draft rows changed by failed publish: %+v", draft)
	}
	got, _ := store.GetChangeSet(ctx, cs.ID)
	if got.Status.IsTerminal() {
		t.Errorf("failed publish finalized the change set: %s", got.Status)
	}
}

func TestDiscardNeverTouchesPublished(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	if _, err := m.Save(ctx, "main", cs.ID, flowAB(), false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}

	if err := m.Discard(ctx, "main", cs.ID, "alice"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	draft, _ := store.ListSegments(ctx, "main", types.Draft(cs.ID))
	if len(draft) != 0 {
		t.Errorf("draft segments still active: %+v", draft)
	}
	pub, _ := store.ListSegments(ctx, "main", types.Published)
	if len(pub) != 2 {
		t.Errorf("discard touched published scope: %+v", pub)
	}
	got, _ := store.GetChangeSet(ctx, cs.ID)
	if got.Status != types.StatusDiscarded {
		t.Errorf("change set not discarded: %s", got.Status)
	}
}

func TestLoadFlowDraftOverlaysPublished(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("direct save: %v", err)
	}
	cs, _ := m.CreateDraft(ctx, "main", "alice")
	edit := &types.FlowSnapshot{
		RoutingID: "main", InitSegment: "A",
		Segments: []*types.Segment{
			{Name: "A", Type: "menu", DisplayName: "draft-A",
				Config:      []types.ConfigEntry{{Key: "prompt", Value: "a.wav"}},
				Transitions: []*types.Transition{{ResultName: "ok", Target: "B"}}},
		},
	}
	if _, err := m.Save(ctx, "main", cs.ID, edit, false, "alice"); err != nil {
		t.Fatalf("draft save: %v", err)
	}

	view, err := m.LoadFlow(ctx, "main", types.Draft(cs.ID))
	if err != nil {
		t.Fatalf("LoadFlow: %v", err)
	}
	if view.Snapshot.InitSegment != "A" {
		t.Errorf("init segment not resolved: %q", view.Snapshot.InitSegment)
	}
	idx := view.Snapshot.Index()
	if len(idx) != 2 {
		t.Fatalf("overlay wrong: %v", view.Snapshot.Names())
	}
	if idx["A"].DisplayName != "draft-A" {
		t.Errorf("draft did not win the overlay: %+v", idx["A"])
	}
	if !view.Validation.IsValid() {
		t.Errorf("merged view invalid: %+v", view.Validation.Errors)
	}
}

func TestLoadFlowMergesTypeHooks(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	flow := flowAB()
	flow.Segments[0].Hooks = map[string]string{"on_enter": "custom.enter"}
	if _, err := m.Save(ctx, "main", "", flow, false, "alice"); err != nil {
		t.Fatalf("save: %v", err)
	}

	view, err := m.LoadFlow(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("LoadFlow: %v", err)
	}
	hooks := view.Snapshot.Index()["A"].Hooks
	if hooks["on_enter"] != "custom.enter" {
		t.Errorf("instance hook lost: %v", hooks)
	}
	if hooks["on_timeout"] != "menu.timeout" {
		t.Errorf("type default hook missing: %v", hooks)
	}
}

func TestValidateOnlyHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	bad := flowAB()
	bad.Segments[0].Transitions[0].Target = "nowhere"
	result := m.ValidateOnly(bad)
	if result.IsValid() {
		t.Error("bad flow validated")
	}
	segs, _ := store.ListSegments(ctx, "main", types.Published)
	if len(segs) != 0 {
		t.Errorf("validate-only persisted rows: %+v", segs)
	}
}

func TestValidateAll(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")
	seedRouting(t, store, "alt", "missing-init")

	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := m.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results["main"].IsValid() {
		t.Errorf("main should be valid: %+v", results["main"].Errors)
	}
	if results["alt"].IsValid() {
		t.Error("alt has no init segment and must be invalid")
	}
}

func TestReorderPersistsBFSOrder(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	seedRouting(t, store, "main", "A")

	if _, err := m.Save(ctx, "main", "", flowAB(), false, "alice"); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Clobber the order, then recompute.
	if err := store.SetSegmentOrders(ctx, "main", types.Published, map[string]int{"A": 9, "B": 1}); err != nil {
		t.Fatalf("SetSegmentOrders: %v", err)
	}
	orders, err := m.Reorder(ctx, "main", types.Published)
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if orders["A"] != 1 || orders["B"] != 2 {
		t.Errorf("unexpected orders: %v", orders)
	}
}
