// Package types defines the core data structures for the callflow engine.
package types

import (
	"fmt"
	"sort"
	"time"
)

// ConfigEntry is one key/value pair of a segment's configuration.
// Config is kept as an ordered list rather than a map because the
// editor renders entries in authoring order.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContextDefault is the reserved context key naming the fallback row of a
// context-keyed transition group.
const ContextDefault = "default"

// Transition is a directed, labeled edge leaving a segment.
//
// A plain transition has an empty ContextKey. When a result fans out by a
// runtime context value, one row exists per context value plus one row with
// ContextKey == ContextDefault as the fallback. Context keys are compared
// verbatim (case-sensitive); the authoring layer does not normalize them.
type Transition struct {
	ResultName string            `json:"result_name"`
	ContextKey string            `json:"context_key,omitempty"`
	IsDefault  bool              `json:"is_default,omitempty"`
	Target     string            `json:"target,omitempty"` // empty = terminal exit
	Params     map[string]string `json:"params,omitempty"`
	Position   int               `json:"-"` // persisted array order
}

// TransitionKey is the uniqueness key of a transition within one segment.
type TransitionKey struct {
	ResultName string
	ContextKey string
}

// Key returns the (resultName, contextKey) pair that must be unique within
// a segment.
func (t *Transition) Key() TransitionKey {
	return TransitionKey{ResultName: t.ResultName, ContextKey: t.ContextKey}
}

// Segment is one node of a call-flow graph.
type Segment struct {
	RoutingID   string            `json:"routing_id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name,omitempty"`
	Config      []ConfigEntry     `json:"config,omitempty"`
	Hooks       map[string]string `json:"hooks,omitempty"` // hook name -> handler ref, overrides type defaults
	Transitions []*Transition     `json:"transitions,omitempty"`
	Order       int               `json:"order,omitempty"` // BFS order, or manual override
	Active      bool              `json:"active"`
	Scope       Scope             `json:"-"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
}

// Validate checks the structural minimum for persisting a segment.
// Graph-level rules (targets, duplicates, reachability) belong to the
// validation package, not here.
func (s *Segment) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("segment name is required")
	}
	if s.Type == "" {
		return fmt.Errorf("segment %s: type is required", s.Name)
	}
	if s.RoutingID == "" {
		return fmt.Errorf("segment %s: routing id is required", s.Name)
	}
	for _, tr := range s.Transitions {
		if tr.ResultName == "" && !tr.IsDefault {
			return fmt.Errorf("segment %s: transition result name is required", s.Name)
		}
	}
	return nil
}

// SetDefaults fills zero-value fields before persistence. Saved segments are
// always active; deactivation happens through the store, never through a save.
func (s *Segment) SetDefaults() {
	s.Active = true
	for i, tr := range s.Transitions {
		tr.Position = i
	}
}

// FlowSnapshot is an in-memory view of one routing's graph in one scope.
// Edges reference segments by name only; the snapshot never embeds live
// pointers between segments.
type FlowSnapshot struct {
	RoutingID   string     `json:"routing_id"`
	InitSegment string     `json:"init_segment"`
	Segments    []*Segment `json:"segments"`
}

// Index returns the segments keyed by name.
func (f *FlowSnapshot) Index() map[string]*Segment {
	idx := make(map[string]*Segment, len(f.Segments))
	for _, seg := range f.Segments {
		idx[seg.Name] = seg
	}
	return idx
}

// Names returns the segment names sorted lexicographically.
func (f *FlowSnapshot) Names() []string {
	names := make([]string, 0, len(f.Segments))
	for _, seg := range f.Segments {
		names = append(names, seg.Name)
	}
	sort.Strings(names)
	return names
}

// RoutingEntry binds an entry-point source (a dialed number, SIP URI, or
// campaign identifier) to a routing and names the segment a call starts at.
type RoutingEntry struct {
	ID          string          `json:"id"`
	RoutingID   string          `json:"routing_id"`
	Source      string          `json:"source"`
	InitSegment string          `json:"init_segment"`
	Flags       map[string]bool `json:"flags,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// Validate checks the structural minimum for persisting a routing entry.
func (r *RoutingEntry) Validate() error {
	if r.RoutingID == "" {
		return fmt.Errorf("routing entry: routing id is required")
	}
	if r.Source == "" {
		return fmt.Errorf("routing entry for %s: source is required", r.RoutingID)
	}
	return nil
}

// VersionSnapshot is an immutable capture of all active routing entries for
// one routing, used for rollback. Versions increase per routing; gaps are
// tolerated.
type VersionSnapshot struct {
	RoutingID string    `json:"routing_id"`
	Version   int       `json:"version"`
	Content   []byte    `json:"content"` // JSON array of RoutingEntry
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}
