// Package history captures point-in-time snapshots of a routing's entries
// and restores them. Snapshots are append-only; rollback creates fresh
// entries rather than reviving old rows, so the audit trail stays intact.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/voxlab/callflow/internal/idgen"
	"github.com/voxlab/callflow/internal/lifecycle"
	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/types"
)

// activeVersionKey is the config key tracking which snapshot a routing
// currently points at. Cleanup never deletes this version.
func activeVersionKey(routingID string) string {
	return "active_version:" + routingID
}

// Manager records and restores routing-entry versions.
type Manager struct {
	store storage.Store
}

func New(store storage.Store) *Manager {
	return &Manager{store: store}
}

// Snapshot captures the routing's active entries as a new version and marks
// that version as the active one.
func (m *Manager) Snapshot(ctx context.Context, routingID, actor string) (*types.VersionSnapshot, error) {
	entries, err := m.store.ListRoutingEntries(ctx, routingID, true)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("routing %s has no active entries: %w", routingID, storage.ErrRoutingNotFound)
	}

	content, err := lifecycle.SnapshotContent(entries)
	if err != nil {
		return nil, err
	}
	snap, err := m.store.AddVersionSnapshot(ctx, routingID, content, actor)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetConfig(ctx, activeVersionKey(routingID), strconv.Itoa(snap.Version)); err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns all recorded versions for a routing, newest first.
func (m *Manager) List(ctx context.Context, routingID string) ([]*types.VersionSnapshot, error) {
	return m.store.ListVersionSnapshots(ctx, routingID)
}

// Get returns one recorded version.
func (m *Manager) Get(ctx context.Context, routingID string, version int) (*types.VersionSnapshot, error) {
	return m.store.GetVersionSnapshot(ctx, routingID, version)
}

// ActiveVersion reports which snapshot the routing currently points at,
// or 0 when no snapshot has been taken yet.
func (m *Manager) ActiveVersion(ctx context.Context, routingID string) (int, error) {
	raw, err := m.store.GetConfig(ctx, activeVersionKey(routingID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse active version %q: %w", raw, err)
	}
	return v, nil
}

// Rollback restores the routing's entries to a recorded version. Current
// entries are deactivated and the snapshot's entries are recreated with new
// identifiers, all in one transaction.
func (m *Manager) Rollback(ctx context.Context, routingID string, version int, actor string) ([]*types.RoutingEntry, error) {
	snap, err := m.store.GetVersionSnapshot(ctx, routingID, version)
	if err != nil {
		return nil, err
	}

	var entries []*types.RoutingEntry
	if err := json.Unmarshal(snap.Content, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %d: %w", version, err)
	}

	err = m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.DeactivateRoutingEntries(ctx, routingID); err != nil {
			return err
		}
		for _, entry := range entries {
			entry.ID = idgen.New(idgen.PrefixRoutingEntry)
			entry.Active = true
			if err := tx.PutRoutingEntry(ctx, entry); err != nil {
				return err
			}
		}
		return tx.SetConfig(ctx, activeVersionKey(routingID), strconv.Itoa(version))
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Cleanup deletes old snapshots, keeping the newest keep versions. The
// active version is always retained regardless of age. Returns the versions
// that were removed.
func (m *Manager) Cleanup(ctx context.Context, routingID string, keep int) ([]int, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	snaps, err := m.store.ListVersionSnapshots(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if len(snaps) <= keep {
		return nil, nil
	}
	active, err := m.ActiveVersion(ctx, routingID)
	if err != nil {
		return nil, err
	}

	var stale []int
	for _, snap := range snaps[keep:] { // newest first, so the tail is oldest
		if snap.Version == active {
			continue
		}
		stale = append(stale, snap.Version)
	}
	if len(stale) == 0 {
		return nil, nil
	}
	if err := m.store.DeleteVersionSnapshots(ctx, routingID, stale); err != nil {
		return nil, err
	}
	return stale, nil
}
