// Package validation implements the flow rule engine.
//
// Validation is pure and read-only: it consumes a snapshot plus the
// segment-type dictionary and the graph traversal results, and produces a
// structured report. Errors block save and publish; warnings never do.
// Callers may run it standalone for validate-without-saving.
package validation

import (
	"fmt"
	"strings"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/graph"
	"github.com/voxlab/callflow/internal/types"
)

// TypeResolver is the read-only view of the segment-type dictionary the
// validator needs.
type TypeResolver interface {
	Resolve(segmentType string) (dictionary.Capability, bool)
}

// Validator checks whole flows against the structural rules.
type Validator struct {
	types TypeResolver
}

// New returns a validator backed by the given type dictionary.
func New(resolver TypeResolver) *Validator {
	return &Validator{types: resolver}
}

// Validate runs every rule against the snapshot and returns the combined
// report. The snapshot is never mutated.
func (v *Validator) Validate(snap *types.FlowSnapshot) *types.ValidationResult {
	result := &types.ValidationResult{}
	idx := snap.Index()

	v.checkInitSegment(snap, idx, result)
	for _, seg := range snap.Segments {
		v.checkTargets(seg, idx, result)
		v.checkDuplicateTransitions(seg, result)
		v.checkContextDefaults(seg, result)
		v.checkSegmentType(seg, result)
	}
	v.checkReachability(snap, result)
	v.checkCycles(snap, result)

	return result
}

func (v *Validator) checkInitSegment(snap *types.FlowSnapshot, idx map[string]*types.Segment, result *types.ValidationResult) {
	if snap.InitSegment == "" {
		result.AddError(types.CodeInitSegmentMissing, "",
			"no init segment is set for this routing",
			"set the init segment on the routing entry")
		return
	}
	if _, ok := idx[snap.InitSegment]; !ok {
		result.AddError(types.CodeInitSegmentMissing, snap.InitSegment,
			fmt.Sprintf("init segment %q does not exist", snap.InitSegment),
			"create the segment or point the routing entry at an existing one")
	}
}

// checkTargets verifies that every transition target, context-keyed targets
// and the context default included, names an existing segment. An empty
// target is a terminal exit and always legal.
func (v *Validator) checkTargets(seg *types.Segment, idx map[string]*types.Segment, result *types.ValidationResult) {
	for _, tr := range seg.Transitions {
		if tr.Target == "" {
			continue
		}
		if _, ok := idx[tr.Target]; !ok {
			result.AddError(types.CodeMissingTarget, transitionLocation(seg, tr),
				fmt.Sprintf("transition targets unknown segment %q", tr.Target),
				fmt.Sprintf("create segment %q or retarget the transition", tr.Target))
		}
	}
}

// checkDuplicateTransitions reports one error per duplicated
// (resultName, contextKey) pair, and one for a doubled default fallback.
func (v *Validator) checkDuplicateTransitions(seg *types.Segment, result *types.ValidationResult) {
	counts := make(map[types.TransitionKey]int)
	defaults := 0
	var order []types.TransitionKey
	for _, tr := range seg.Transitions {
		if tr.IsDefault {
			defaults++
			continue
		}
		key := tr.Key()
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	for _, key := range order {
		if counts[key] < 2 {
			continue
		}
		loc := seg.Name + "/" + key.ResultName
		if key.ContextKey != "" {
			loc += ":" + key.ContextKey
		}
		result.AddError(types.CodeDuplicateTransition, loc,
			fmt.Sprintf("%d transitions share result %q", counts[key], key.ResultName),
			"remove or rename the duplicate transitions")
	}
	if defaults > 1 {
		result.AddError(types.CodeDuplicateTransition, seg.Name+"/default",
			fmt.Sprintf("%d default transitions on one segment", defaults),
			"keep a single default fallback per segment")
	}
}

// checkContextDefaults warns when a result fans out by context value without
// a default fallback row; such a branch can dead-end at runtime if no
// context value matches.
func (v *Validator) checkContextDefaults(seg *types.Segment, result *types.ValidationResult) {
	hasContext := make(map[string]bool)
	hasDefault := make(map[string]bool)
	var order []string
	for _, tr := range seg.Transitions {
		if tr.ContextKey == "" {
			continue
		}
		if !hasContext[tr.ResultName] && !hasDefault[tr.ResultName] {
			order = append(order, tr.ResultName)
		}
		if tr.ContextKey == types.ContextDefault {
			hasDefault[tr.ResultName] = true
		} else {
			hasContext[tr.ResultName] = true
		}
	}
	for _, resultName := range order {
		if hasContext[resultName] && !hasDefault[resultName] {
			result.AddWarning(types.CodeContextNoDefault, seg.Name+"/"+resultName,
				fmt.Sprintf("result %q branches by context value but has no default fallback", resultName),
				"add a transition with context key \"default\"")
		}
	}
}

// checkSegmentType warns about unknown types, terminal segments carrying
// named transitions, and missing required config keys.
func (v *Validator) checkSegmentType(seg *types.Segment, result *types.ValidationResult) {
	capability, known := v.types.Resolve(seg.Type)
	if !known {
		result.AddWarning(types.CodeUnknownSegmentType, seg.Name,
			fmt.Sprintf("segment type %q is not in the dictionary", seg.Type),
			"register the type or fix the segment")
		return
	}

	if capability.IsTerminal {
		named := 0
		for _, tr := range seg.Transitions {
			if !tr.IsDefault {
				named++
			}
		}
		if named > 0 {
			result.AddWarning(types.CodeTerminalTransitions, seg.Name,
				fmt.Sprintf("terminal segment of type %q carries %d named transitions", seg.Type, named),
				"terminal segments end the call; remove the outgoing transitions")
		}
	}

	if len(capability.RequiredKeys) > 0 {
		present := make(map[string]bool, len(seg.Config))
		for _, entry := range seg.Config {
			present[entry.Key] = true
		}
		for _, key := range capability.RequiredKeys {
			if !present[key] {
				result.AddWarning(types.CodeMissingConfigKey, seg.Name,
					fmt.Sprintf("type %q requires config key %q", seg.Type, key),
					fmt.Sprintf("add a %q entry to the segment config", key))
			}
		}
	}
}

func (v *Validator) checkReachability(snap *types.FlowSnapshot, result *types.ValidationResult) {
	reached := graph.ReachableSet(snap)
	for _, seg := range snap.Segments {
		if !reached[seg.Name] {
			result.AddWarning(types.CodeUnreachableSegment, seg.Name,
				"segment is unreachable from the init segment",
				"connect it to the flow or remove it")
		}
	}
}

func (v *Validator) checkCycles(snap *types.FlowSnapshot, result *types.ValidationResult) {
	for _, cycle := range graph.DetectCycles(snap) {
		result.AddWarning(types.CodeCycle, cycle[0],
			"cycle: "+strings.Join(cycle, " -> "),
			"loops are allowed; confirm the flow offers a way out")
	}
}

func transitionLocation(seg *types.Segment, tr *types.Transition) string {
	switch {
	case tr.IsDefault:
		return seg.Name + "/default"
	case tr.ContextKey != "":
		return seg.Name + "/" + tr.ResultName + ":" + tr.ContextKey
	default:
		return seg.Name + "/" + tr.ResultName
	}
}
