// Package export reads and writes the portable flow document: a versioned,
// self-contained description of one routing's flow that can be moved
// between environments. The document carries names only, never database
// identifiers, so importing into a fresh environment needs no remapping.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxlab/callflow/internal/types"
)

// FormatVersion is the current document schema version. Readers accept
// documents up to and including this version.
const FormatVersion = 1

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat picks an encoding from a file extension, defaulting to JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the portable representation of one flow.
type Document struct {
	FormatVersion int       `json:"format_version" yaml:"format_version"`
	RoutingID     string    `json:"routing_id" yaml:"routing_id"`
	InitSegment   string    `json:"init_segment,omitempty" yaml:"init_segment,omitempty"`
	ExportedAt    time.Time `json:"exported_at,omitempty" yaml:"exported_at,omitempty"`
	ExportedBy    string    `json:"exported_by,omitempty" yaml:"exported_by,omitempty"`
	Segments      []Segment `json:"segments" yaml:"segments"`
}

// Segment mirrors types.Segment without storage-side fields.
type Segment struct {
	Name        string            `json:"name" yaml:"name"`
	Type        string            `json:"type" yaml:"type"`
	DisplayName string            `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Order       int               `json:"order,omitempty" yaml:"order,omitempty"`
	Config      []ConfigEntry     `json:"config,omitempty" yaml:"config,omitempty"`
	Hooks       map[string]string `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	Transitions []Transition      `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// ConfigEntry is one config key/value pair, in authoring order.
type ConfigEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Transition is one outgoing edge. An empty target means a terminal exit.
type Transition struct {
	ResultName string            `json:"result_name,omitempty" yaml:"result_name,omitempty"`
	ContextKey string            `json:"context_key,omitempty" yaml:"context_key,omitempty"`
	IsDefault  bool              `json:"is_default,omitempty" yaml:"is_default,omitempty"`
	Target     string            `json:"target,omitempty" yaml:"target,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// FromSnapshot builds a document from an in-memory flow. Segments are
// emitted in execution order, falling back to name order for ties, so
// exports of the same flow are byte-stable.
func FromSnapshot(snap *types.FlowSnapshot, actor string) *Document {
	doc := &Document{
		FormatVersion: FormatVersion,
		RoutingID:     snap.RoutingID,
		InitSegment:   snap.InitSegment,
		ExportedAt:    time.Now().UTC().Truncate(time.Second),
		ExportedBy:    actor,
	}

	segs := make([]*types.Segment, len(snap.Segments))
	copy(segs, snap.Segments)
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Order != segs[j].Order {
			return segs[i].Order < segs[j].Order
		}
		return segs[i].Name < segs[j].Name
	})

	for _, seg := range segs {
		out := Segment{
			Name:        seg.Name,
			Type:        seg.Type,
			DisplayName: seg.DisplayName,
			Order:       seg.Order,
			Hooks:       maps.Clone(seg.Hooks),
		}
		for _, c := range seg.Config {
			out.Config = append(out.Config, ConfigEntry{Key: c.Key, Value: c.Value})
		}
		for _, tr := range seg.Transitions {
			out.Transitions = append(out.Transitions, Transition{
				ResultName: tr.ResultName,
				ContextKey: tr.ContextKey,
				IsDefault:  tr.IsDefault,
				Target:     tr.Target,
				Params:     maps.Clone(tr.Params),
			})
		}
		doc.Segments = append(doc.Segments, out)
	}
	return doc
}

// Snapshot converts the document back into an in-memory flow. The snapshot
// shares no maps with the document, so either side can be mutated freely.
func (d *Document) Snapshot() (*types.FlowSnapshot, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	snap := &types.FlowSnapshot{
		RoutingID:   d.RoutingID,
		InitSegment: d.InitSegment,
	}
	for _, seg := range d.Segments {
		out := &types.Segment{
			RoutingID:   d.RoutingID,
			Name:        seg.Name,
			Type:        seg.Type,
			DisplayName: seg.DisplayName,
			Order:       seg.Order,
			Hooks:       maps.Clone(seg.Hooks),
		}
		for _, c := range seg.Config {
			out.Config = append(out.Config, types.ConfigEntry{Key: c.Key, Value: c.Value})
		}
		for i, tr := range seg.Transitions {
			out.Transitions = append(out.Transitions, &types.Transition{
				ResultName: tr.ResultName,
				ContextKey: tr.ContextKey,
				IsDefault:  tr.IsDefault,
				Target:     tr.Target,
				Params:     maps.Clone(tr.Params),
				Position:   i,
			})
		}
		snap.Segments = append(snap.Segments, out)
	}
	return snap, nil
}

// Validate checks the document's own structure. Graph-level validation
// happens after conversion, through the regular flow validator.
func (d *Document) Validate() error {
	if d.FormatVersion < 1 || d.FormatVersion > FormatVersion {
		return fmt.Errorf("unsupported format version %d (this build reads up to %d)", d.FormatVersion, FormatVersion)
	}
	if d.RoutingID == "" {
		return fmt.Errorf("document has no routing id")
	}
	seen := make(map[string]bool, len(d.Segments))
	for _, seg := range d.Segments {
		if seg.Name == "" {
			return fmt.Errorf("document contains a segment with no name")
		}
		if seg.Type == "" {
			return fmt.Errorf("segment %s has no type", seg.Name)
		}
		if seen[seg.Name] {
			return fmt.Errorf("segment %s appears twice", seg.Name)
		}
		seen[seg.Name] = true
	}
	return nil
}

// Encode writes the document in the requested format.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Decode reads a document in the requested format and checks its structure.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
