// Package storage defines the persistence interface for the callflow engine.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and sentinel errors referenced by both the
// implementation and its consumers (lifecycle, history, cmd/cf).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/voxlab/callflow/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotInitialized is returned when the database schema has not been set up.
var ErrNotInitialized = errors.New("database not initialized")

// ErrDraftExists is returned when creating a draft for a routing that
// already has an open one. One draft at a time per routing.
var ErrDraftExists = errors.New("an open draft already exists for this routing")

// ErrInvalidTransition is returned when a ChangeSet status change violates
// the state machine. Distinct from validation errors: the operation is
// rejected immediately with no side effects and is not retriable without
// operator intervention.
var ErrInvalidTransition = errors.New("illegal change set status transition")

// ErrRoutingNotFound is returned when an operation references a routing with
// no entries in the directory.
var ErrRoutingNotFound = errors.New("routing does not exist")

// Store is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface so alternative backends and test doubles can substitute.
type Store interface {
	SegmentReader
	SegmentWriter

	// ChangeSets
	CreateChangeSet(ctx context.Context, cs *types.ChangeSet) error
	GetChangeSet(ctx context.Context, id string) (*types.ChangeSet, error)
	ActiveChangeSet(ctx context.Context, routingID string) (*types.ChangeSet, error)
	ListChangeSets(ctx context.Context, routingID string) ([]*types.ChangeSet, error)
	// TransitionChangeSet compare-and-sets the status: it succeeds only if
	// the current status is one of from, otherwise ErrInvalidTransition.
	TransitionChangeSet(ctx context.Context, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error

	// Routing directory
	PutRoutingEntry(ctx context.Context, entry *types.RoutingEntry) error
	ListRoutingEntries(ctx context.Context, routingID string, activeOnly bool) ([]*types.RoutingEntry, error)
	ListRoutingIDs(ctx context.Context) ([]string, error)
	RoutingExists(ctx context.Context, routingID string) (bool, error)
	DeactivateRoutingEntries(ctx context.Context, routingID string) error

	// Version snapshots (append-only)
	AddVersionSnapshot(ctx context.Context, routingID string, content []byte, actor string) (*types.VersionSnapshot, error)
	GetVersionSnapshot(ctx context.Context, routingID string, version int) (*types.VersionSnapshot, error)
	ListVersionSnapshots(ctx context.Context, routingID string) ([]*types.VersionSnapshot, error)
	DeleteVersionSnapshots(ctx context.Context, routingID string, versions []int) error

	// Config
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Maintenance
	PurgeInactiveSegments(ctx context.Context, olderThan time.Duration) (int64, error)

	// RunInTransaction executes fn atomically: every write inside either
	// fully applies or fully reverts.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
}

// SegmentReader is the read side of the segment graph store.
type SegmentReader interface {
	GetSegment(ctx context.Context, routingID, name string, scope types.Scope) (*types.Segment, error)
	// ListSegments returns the active segments of one scope ordered by their
	// persisted execution order, then name.
	ListSegments(ctx context.Context, routingID string, scope types.Scope) ([]*types.Segment, error)
}

// SegmentWriter is the write side of the segment graph store. Multi-row
// operations are atomic.
type SegmentWriter interface {
	// PutSegment upserts one segment by (routingID, name, scope) and fully
	// replaces its config, hook, and transition lists.
	PutSegment(ctx context.Context, seg *types.Segment) error
	// ReplaceScope upserts every given segment into the scope. Segments
	// already in the scope but absent from the list are left untouched
	// unless prune is set, in which case they are deactivated.
	ReplaceScope(ctx context.Context, routingID string, scope types.Scope, segments []*types.Segment, prune bool) error
	// UpdateSegmentConfig replaces only the config list of one segment.
	UpdateSegmentConfig(ctx context.Context, routingID, name string, scope types.Scope, config []types.ConfigEntry) error
	// PutTransition adds or replaces a single transition keyed by
	// (resultName, contextKey), or the default row when IsDefault is set.
	PutTransition(ctx context.Context, routingID, name string, scope types.Scope, tr *types.Transition) error
	// DeleteTransition removes a single transition by key.
	DeleteTransition(ctx context.Context, routingID, name string, scope types.Scope, key types.TransitionKey) error
	// SetSegmentOrders persists execution order numbers per segment name.
	SetSegmentOrders(ctx context.Context, routingID string, scope types.Scope, orders map[string]int) error
	// DeactivateSegment soft-deletes one segment.
	DeactivateSegment(ctx context.Context, routingID, name string, scope types.Scope) error
	// DeactivateScope soft-deletes every segment of one scope.
	DeactivateScope(ctx context.Context, routingID string, scope types.Scope) error
}

// Transaction is the subset of operations available inside
// RunInTransaction. Reads observe the transaction's own writes.
type Transaction interface {
	GetSegment(ctx context.Context, routingID, name string, scope types.Scope) (*types.Segment, error)
	ListSegments(ctx context.Context, routingID string, scope types.Scope) ([]*types.Segment, error)
	PutSegment(ctx context.Context, seg *types.Segment) error
	DeactivateSegment(ctx context.Context, routingID, name string, scope types.Scope) error
	DeactivateScope(ctx context.Context, routingID string, scope types.Scope) error

	TransitionChangeSet(ctx context.Context, id string, from []types.ChangeSetStatus, to types.ChangeSetStatus, actor string) error

	PutRoutingEntry(ctx context.Context, entry *types.RoutingEntry) error
	ListRoutingEntries(ctx context.Context, routingID string, activeOnly bool) ([]*types.RoutingEntry, error)
	DeactivateRoutingEntries(ctx context.Context, routingID string) error

	AddVersionSnapshot(ctx context.Context, routingID string, content []byte, actor string) (*types.VersionSnapshot, error)

	SetConfig(ctx context.Context, key, value string) error
}
