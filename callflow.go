// Package callflow provides a minimal public API for embedding the call-flow
// engine in other Go programs.
//
// Most integrations should drive the cf CLI or read the SQLite database
// directly. This package exports only the essential types and constructors
// for programs that want to use the lifecycle engine in-process.
package callflow

import (
	"context"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/lifecycle"
	"github.com/voxlab/callflow/internal/storage"
	"github.com/voxlab/callflow/internal/storage/sqlite"
	"github.com/voxlab/callflow/internal/types"
)

// Core types for working with flows
type (
	Segment          = types.Segment
	Transition       = types.Transition
	FlowSnapshot     = types.FlowSnapshot
	RoutingEntry     = types.RoutingEntry
	ChangeSet        = types.ChangeSet
	ChangeSetStatus  = types.ChangeSetStatus
	Scope            = types.Scope
	ValidationResult = types.ValidationResult
	ValidationIssue  = types.ValidationIssue
)

// ChangeSet status constants
const (
	StatusDraft     = types.StatusDraft
	StatusValidated = types.StatusValidated
	StatusPublished = types.StatusPublished
	StatusDiscarded = types.StatusDiscarded
)

// Published is the scope of the live flow; Draft scopes a change set.
var Published = types.Published

// Draft returns the scope of one change set's workspace.
func Draft(changeSetID string) Scope { return types.Draft(changeSetID) }

// Store provides the persistence interface for in-process use.
type Store = storage.Store

// Manager is the draft/validate/publish lifecycle engine.
type Manager = lifecycle.Manager

// Open opens (or creates) a callflow SQLite database.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}

// NewManager builds a lifecycle manager over a store, with the built-in
// segment-type capabilities.
func NewManager(store Store) *Manager {
	return lifecycle.New(store, dictionary.Builtin())
}
