package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlab/callflow/internal/dictionary"
	"github.com/voxlab/callflow/internal/types"
)

func newValidator() *Validator {
	return New(dictionary.Builtin())
}

func menuSeg(name string, transitions ...*types.Transition) *types.Segment {
	return &types.Segment{
		Name:        name,
		Type:        "menu",
		Config:      []types.ConfigEntry{{Key: "prompt", Value: name + ".wav"}},
		Transitions: transitions,
		Active:      true,
	}
}

func tr(result, target string) *types.Transition {
	return &types.Transition{ResultName: result, Target: target}
}

func codes(issues []types.ValidationIssue) []types.IssueCode {
	out := make([]types.IssueCode, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidateCleanFlow(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments: []*types.Segment{
			menuSeg("A", tr("ok", "B")),
			{Name: "B", Type: "hangup", Active: true},
		},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateMissingInitSegment(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "ghost",
		Segments:    []*types.Segment{menuSeg("A")},
	}
	result := newValidator().Validate(snap)
	assert.False(t, result.IsValid())
	assert.Contains(t, codes(result.Errors), types.CodeInitSegmentMissing)
}

func TestValidateUnsetInitSegment(t *testing.T) {
	snap := &types.FlowSnapshot{RoutingID: "main", Segments: []*types.Segment{menuSeg("A")}}
	result := newValidator().Validate(snap)
	assert.False(t, result.IsValid())
	assert.Contains(t, codes(result.Errors), types.CodeInitSegmentMissing)
}

func TestValidateMissingTarget(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{menuSeg("A", tr("ok", "nowhere"))},
	}
	result := newValidator().Validate(snap)
	require.False(t, result.IsValid())
	assert.Equal(t, types.CodeMissingTarget, result.Errors[0].Code)
	assert.Equal(t, "A/ok", result.Errors[0].Location)
}

func TestValidateMissingContextTargets(t *testing.T) {
	a := &types.Segment{Name: "A", Type: "menu",
		Config: []types.ConfigEntry{{Key: "prompt", Value: "a.wav"}},
		Transitions: []*types.Transition{
			{ResultName: "LANG", ContextKey: "en", Target: "missing-en"},
			{ResultName: "LANG", ContextKey: types.ContextDefault, Target: "missing-def"},
		}}
	snap := &types.FlowSnapshot{RoutingID: "main", InitSegment: "A", Segments: []*types.Segment{a}}
	result := newValidator().Validate(snap)
	// Both the context-keyed target and the default fallback target are
	// checked.
	assert.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.Equal(t, types.CodeMissingTarget, e.Code)
	}
}

func TestValidateTerminalExitIsLegal(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{menuSeg("A", tr("ok", ""))},
	}
	assert.True(t, newValidator().Validate(snap).IsValid())
}

func TestValidateDuplicateTransitionExactlyOneError(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments: []*types.Segment{
			menuSeg("A", tr("ok", ""), tr("ok", "")),
		},
	}
	result := newValidator().Validate(snap)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.CodeDuplicateTransition, result.Errors[0].Code)
	assert.Equal(t, "A/ok", result.Errors[0].Location)
}

func TestValidateSameResultDistinctContextIsLegal(t *testing.T) {
	a := menuSeg("A",
		&types.Transition{ResultName: "LANG", ContextKey: "en", Target: ""},
		&types.Transition{ResultName: "LANG", ContextKey: "fr", Target: ""},
		&types.Transition{ResultName: "LANG", ContextKey: types.ContextDefault, Target: ""},
	)
	snap := &types.FlowSnapshot{RoutingID: "main", InitSegment: "A", Segments: []*types.Segment{a}}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
}

func TestValidateDoubleDefault(t *testing.T) {
	a := menuSeg("A",
		&types.Transition{IsDefault: true, Target: ""},
		&types.Transition{IsDefault: true, Target: ""},
	)
	snap := &types.FlowSnapshot{RoutingID: "main", InitSegment: "A", Segments: []*types.Segment{a}}
	result := newValidator().Validate(snap)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "A/default", result.Errors[0].Location)
}

func TestValidateCycleIsWarningOnly(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{menuSeg("A", tr("retry", "A"))},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, types.CodeCycle, result.Warnings[0].Code)
	assert.Contains(t, result.Warnings[0].Message, "A -> A")
}

func TestValidateUnreachableWarning(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments: []*types.Segment{
			menuSeg("A"),
			menuSeg("island"),
		},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	assert.Contains(t, codes(result.Warnings), types.CodeUnreachableSegment)
}

func TestValidateTerminalWithTransitionsWarning(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "bye",
		Segments: []*types.Segment{
			{Name: "bye", Type: "hangup", Active: true,
				Transitions: []*types.Transition{tr("oops", "")}},
		},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	assert.Contains(t, codes(result.Warnings), types.CodeTerminalTransitions)
}

func TestValidateContextWithoutDefaultWarning(t *testing.T) {
	a := menuSeg("A",
		&types.Transition{ResultName: "LANG", ContextKey: "en", Target: ""},
	)
	snap := &types.FlowSnapshot{RoutingID: "main", InitSegment: "A", Segments: []*types.Segment{a}}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, types.CodeContextNoDefault, result.Warnings[0].Code)
	assert.Equal(t, "A/LANG", result.Warnings[0].Location)
}

func TestValidateUnknownTypeWarning(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{{Name: "A", Type: "quantum", Active: true}},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	assert.Contains(t, codes(result.Warnings), types.CodeUnknownSegmentType)
}

func TestValidateMissingRequiredConfigWarning(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{{Name: "A", Type: "menu", Active: true}},
	}
	result := newValidator().Validate(snap)
	assert.True(t, result.IsValid())
	assert.Contains(t, codes(result.Warnings), types.CodeMissingConfigKey)
}

func TestValidateDoesNotMutateSnapshot(t *testing.T) {
	snap := &types.FlowSnapshot{
		RoutingID:   "main",
		InitSegment: "A",
		Segments:    []*types.Segment{menuSeg("A", tr("ok", "A"))},
	}
	first := newValidator().Validate(snap)
	second := newValidator().Validate(snap)
	assert.Equal(t, first, second)
}
