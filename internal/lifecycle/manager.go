// Package lifecycle owns the draft/publish/discard workflow over the
// segment graph store. It is the only writer that moves ChangeSets through
// their state machine; the HTTP layer and the CLI call it, never the store
// directly.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/graph"
	"github.com/voxlab/callflow/internal/idgen"
	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/types"
	"github.com/voxlab/callflow/internal/validation"
)

// Manager orchestrates the store and the validator inside single
// transaction boundaries.
type Manager struct {
	store     storage.Store
	dict      *dictionary.Dictionary
	validator *validation.Validator
}

// New returns a manager over the given store and type dictionary.
func New(store storage.Store, dict *dictionary.Dictionary) *Manager {
	return &Manager{
		store:     store,
		dict:      dict,
		validator: validation.New(dict),
	}
}

// FlowView is a loaded flow plus its validation report.
type FlowView struct {
	Snapshot   *types.FlowSnapshot     `json:"snapshot"`
	Validation *types.ValidationResult `json:"validation"`
}

// CreateDraft opens a new ChangeSet for a routing. One open draft per
// routing: a second create fails with storage.ErrDraftExists.
func (m *Manager) CreateDraft(ctx context.Context, routingID, actor string) (*types.ChangeSet, error) {
	exists, err := m.store.RoutingExists(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("routing %s: %w", routingID, storage.ErrRoutingNotFound)
	}
	cs := &types.ChangeSet{
		ID:        idgen.New(idgen.PrefixChangeSet),
		RoutingID: routingID,
		Status:    types.StatusDraft,
		CreatedBy: actor,
	}
	if err := m.store.CreateChangeSet(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// LoadFlow returns the effective flow of a scope with its validation. For a
// draft scope, draft segments overlay same-name published segments, which is
// the graph the draft would become when published. Hook handlers are the
// dictionary defaults merged with per-segment overrides, instance wins.
func (m *Manager) LoadFlow(ctx context.Context, routingID string, scope types.Scope) (*FlowView, error) {
	snap, err := m.loadSnapshot(ctx, m.store, routingID, scope)
	if err != nil {
		return nil, err
	}
	return &FlowView{Snapshot: snap, Validation: m.validator.Validate(snap)}, nil
}

// segmentLister is the read surface loadSnapshot needs, satisfied by both
// the store and an open transaction.
type segmentLister interface {
	ListSegments(ctx context.Context, routingID string, scope types.Scope) ([]*types.Segment, error)
	ListRoutingEntries(ctx context.Context, routingID string, activeOnly bool) ([]*types.RoutingEntry, error)
}

func (m *Manager) loadSnapshot(ctx context.Context, src segmentLister, routingID string, scope types.Scope) (*types.FlowSnapshot, error) {
	published, err := src.ListSegments(ctx, routingID, types.Published)
	if err != nil {
		return nil, err
	}
	segments := published
	if !scope.IsPublished() {
		draft, err := src.ListSegments(ctx, routingID, scope)
		if err != nil {
			return nil, err
		}
		inDraft := make(map[string]bool, len(draft))
		for _, seg := range draft {
			inDraft[seg.Name] = true
		}
		merged := make([]*types.Segment, 0, len(published)+len(draft))
		for _, seg := range published {
			if !inDraft[seg.Name] {
				merged = append(merged, seg)
			}
		}
		segments = append(merged, draft...)
	}

	for _, seg := range segments {
		seg.Hooks = m.dict.MergeHooks(seg.Type, seg.Hooks)
	}

	snap := &types.FlowSnapshot{
		RoutingID:   routingID,
		InitSegment: "",
		Segments:    segments,
	}
	entries, err := src.ListRoutingEntries(ctx, routingID, true)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		snap.InitSegment = entries[0].InitSegment
	}
	return snap, nil
}

// effectiveAfterSave builds the flow a save would leave in effect, without
// writing anything. Incoming segments win over stored ones of the same name;
// stored segments of the target scope survive unless prune drops them;
// published segments always show through under a draft scope.
func (m *Manager) effectiveAfterSave(ctx context.Context, routingID string, scope types.Scope, flow *types.FlowSnapshot, prune bool) (*types.FlowSnapshot, error) {
	incoming := flow.Index()

	covered := make(map[string]bool, len(incoming))
	for name := range incoming {
		covered[name] = true
	}

	var segments []*types.Segment
	if !prune {
		current, err := m.store.ListSegments(ctx, routingID, scope)
		if err != nil {
			return nil, err
		}
		for _, seg := range current {
			if !covered[seg.Name] {
				segments = append(segments, seg)
				covered[seg.Name] = true
			}
		}
	}
	if !scope.IsPublished() {
		published, err := m.store.ListSegments(ctx, routingID, types.Published)
		if err != nil {
			return nil, err
		}
		for _, seg := range published {
			if !covered[seg.Name] {
				segments = append(segments, seg)
			}
		}
	}
	segments = append(segments, flow.Segments...)

	effective := &types.FlowSnapshot{
		RoutingID:   routingID,
		InitSegment: flow.InitSegment,
		Segments:    segments,
	}
	if effective.InitSegment == "" {
		entries, err := m.store.ListRoutingEntries(ctx, routingID, true)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			effective.InitSegment = entries[0].InitSegment
		}
	}
	return effective, nil
}

// syncInitSegment points the routing's active entries at the flow's entry
// segment. Imported documents carry their own init segment; without this the
// validation report would be computed against the document's entry while the
// routing kept whatever entry it was created with.
func syncInitSegment(ctx context.Context, tx storage.Transaction, routingID, initSegment string) error {
	entries, err := tx.ListRoutingEntries(ctx, routingID, true)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.InitSegment == initSegment {
			continue
		}
		entry.InitSegment = initSegment
		if err := tx.PutRoutingEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// ValidateOnly validates a caller-supplied flow without touching storage.
// Used for live feedback while editing.
func (m *Manager) ValidateOnly(flow *types.FlowSnapshot) *types.ValidationResult {
	return m.validator.Validate(flow)
}

// ValidateAll loads and validates every routing concurrently. Validation is
// pure, so routings can proceed in parallel.
func (m *Manager) ValidateAll(ctx context.Context) (map[string]*types.ValidationResult, error) {
	ids, err := m.store.ListRoutingIDs(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*types.ValidationResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			view, err := m.LoadFlow(gctx, id, types.Published)
			if err != nil {
				return fmt.Errorf("routing %s: %w", id, err)
			}
			results[i] = view.Validation
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*types.ValidationResult, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

// Save validates and persists a flow into a ChangeSet scope. What gets
// validated is the flow the save would leave in effect: the incoming segments
// plus whatever still shows through underneath them, so partial drafts that
// target published segments pass. On validation errors nothing is written and
// the report is returned; on success every segment is upserted in one
// transaction, execution order is recomputed from the traversal, and the
// ChangeSet moves to validated. An empty changeSetID saves directly into the
// published scope, for routings without an active draft; there a non-empty
// flow InitSegment is also written back to the routing's active entries, so
// an imported document fully determines where the flow starts. Draft saves
// never touch the routing entries; the directory stays on the published
// flow's entry while a draft is in flight.
func (m *Manager) Save(ctx context.Context, routingID, changeSetID string, flow *types.FlowSnapshot, prune bool, actor string) (*types.ValidationResult, error) {
	exists, err := m.store.RoutingExists(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("routing %s: %w", routingID, storage.ErrRoutingNotFound)
	}

	scope := types.Published
	if changeSetID != "" {
		cs, err := m.changeSetFor(ctx, routingID, changeSetID)
		if err != nil {
			return nil, err
		}
		if !cs.IsOpen() {
			return nil, fmt.Errorf("change set %s is %s: %w", cs.ID, cs.Status, storage.ErrInvalidTransition)
		}
		scope = types.Draft(changeSetID)
	}

	effective, err := m.effectiveAfterSave(ctx, routingID, scope, flow, prune)
	if err != nil {
		return nil, err
	}
	result := m.validator.Validate(effective)
	if !result.IsValid() {
		return result, nil
	}

	orders := graph.OrderMap(effective)
	err = m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if prune {
			existing, err := tx.ListSegments(ctx, routingID, scope)
			if err != nil {
				return err
			}
			incoming := flow.Index()
			for _, seg := range existing {
				if _, ok := incoming[seg.Name]; !ok {
					if err := tx.DeactivateSegment(ctx, routingID, seg.Name, scope); err != nil {
						return err
					}
				}
			}
		}
		for _, seg := range flow.Segments {
			seg.RoutingID = routingID
			seg.Scope = scope
			if seg.Order == 0 {
				seg.Order = orders[seg.Name]
			}
			if err := tx.PutSegment(ctx, seg); err != nil {
				return err
			}
		}
		if scope.IsPublished() && flow.InitSegment != "" {
			if err := syncInitSegment(ctx, tx, routingID, flow.InitSegment); err != nil {
				return err
			}
		}
		if changeSetID != "" {
			return tx.TransitionChangeSet(ctx, changeSetID,
				[]types.ChangeSetStatus{types.StatusDraft, types.StatusValidating, types.StatusValidated},
				types.StatusValidated, actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Publish re-validates the draft's effective flow and, on success, promotes
// it in one transaction: same-name published segments are deactivated, draft
// segments are copied into the published scope (targets are names, so no
// remapping), and the ChangeSet is marked published. Any failure rolls the
// whole promotion back.
func (m *Manager) Publish(ctx context.Context, routingID, changeSetID, actor string) (*types.ValidationResult, error) {
	cs, err := m.changeSetFor(ctx, routingID, changeSetID)
	if err != nil {
		return nil, err
	}
	if !cs.IsOpen() {
		return nil, fmt.Errorf("change set %s is %s: %w", cs.ID, cs.Status, storage.ErrInvalidTransition)
	}

	scope := types.Draft(changeSetID)
	snap, err := m.loadSnapshot(ctx, m.store, routingID, scope)
	if err != nil {
		return nil, err
	}
	result := m.validator.Validate(snap)
	if !result.IsValid() {
		return result, nil
	}

	err = m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		// Compare-and-set guards against a concurrent publish of the same
		// ChangeSet: the loser finds the status already moved and fails here
		// with no side effects.
		if err := tx.TransitionChangeSet(ctx, changeSetID,
			[]types.ChangeSetStatus{types.StatusDraft, types.StatusValidating, types.StatusValidated},
			types.StatusValidated, actor); err != nil {
			return err
		}
		if err := tx.TransitionChangeSet(ctx, changeSetID,
			[]types.ChangeSetStatus{types.StatusValidated}, types.StatusPublishing, actor); err != nil {
			return err
		}

		draftSegs, err := tx.ListSegments(ctx, routingID, scope)
		if err != nil {
			return err
		}
		for _, seg := range draftSegs {
			if err := tx.DeactivateSegment(ctx, routingID, seg.Name, types.Published); err != nil {
				return err
			}
			copied := *seg
			copied.Scope = types.Published
			copied.Transitions = cloneTransitions(seg.Transitions)
			if err := tx.PutSegment(ctx, &copied); err != nil {
				return err
			}
		}

		return tx.TransitionChangeSet(ctx, changeSetID,
			[]types.ChangeSetStatus{types.StatusPublishing}, types.StatusPublished, actor)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Discard soft-deletes every segment of the draft and marks the ChangeSet
// discarded, in one transaction. Published segments are never touched.
func (m *Manager) Discard(ctx context.Context, routingID, changeSetID, actor string) error {
	if _, err := m.changeSetFor(ctx, routingID, changeSetID); err != nil {
		return err
	}
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.TransitionChangeSet(ctx, changeSetID,
			[]types.ChangeSetStatus{types.StatusDraft, types.StatusValidating, types.StatusValidated, types.StatusPublishing},
			types.StatusDiscarded, actor); err != nil {
			return err
		}
		return tx.DeactivateScope(ctx, routingID, types.Draft(changeSetID))
	})
}

// Reorder recomputes the BFS execution order for a scope and persists it.
func (m *Manager) Reorder(ctx context.Context, routingID string, scope types.Scope) (map[string]int, error) {
	snap, err := m.loadSnapshot(ctx, m.store, routingID, scope)
	if err != nil {
		return nil, err
	}
	orders := graph.OrderMap(snap)
	if err := m.store.SetSegmentOrders(ctx, routingID, scope, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// SnapshotContent serializes the active routing entries of a routing, the
// payload stored in a VersionSnapshot.
func SnapshotContent(entries []*types.RoutingEntry) ([]byte, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode routing entries: %w", err)
	}
	return raw, nil
}

func (m *Manager) changeSetFor(ctx context.Context, routingID, changeSetID string) (*types.ChangeSet, error) {
	cs, err := m.store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return nil, err
	}
	if cs.RoutingID != routingID {
		return nil, fmt.Errorf("change set %s belongs to routing %s, not %s: %w",
			changeSetID, cs.RoutingID, routingID, storage.ErrNotFound)
	}
	return cs, nil
}

func cloneTransitions(in []*types.Transition) []*types.Transition {
	out := make([]*types.Transition, len(in))
	for i, tr := range in {
		c := *tr
		out[i] = &c
	}
	return out
}
