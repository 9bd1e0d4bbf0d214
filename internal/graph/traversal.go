// Package graph implements the pure traversal algorithms over a flow
// snapshot: breadth-first ordering, reachability, and cycle detection.
//
// All functions operate on a name-indexed adjacency view derived on demand
// and never mutate the snapshot. Edges are names, not pointers, so copying a
// snapshot copies the whole graph.
package graph

import (
	"sort"

	"github.com/voxlab/callflow/internal/types"
)

// Targets returns the outgoing target names of a segment, deduplicated in
// first-occurrence order. Plain targets, context-keyed targets, and the
// context default fallback all contribute; terminal exits (empty targets)
// are skipped.
func Targets(seg *types.Segment) []string {
	seen := make(map[string]bool, len(seg.Transitions))
	out := make([]string, 0, len(seg.Transitions))
	for _, tr := range seg.Transitions {
		if tr.Target == "" || seen[tr.Target] {
			continue
		}
		seen[tr.Target] = true
		out = append(out, tr.Target)
	}
	return out
}

// ComputeOrder returns every segment name with its execution order. A
// breadth-first traversal from the init segment assigns each reached segment
// the 1-based index at which it is first dequeued; segments the traversal
// never reaches follow afterward, sorted lexicographically by name,
// continuing the index sequence.
func ComputeOrder(snap *types.FlowSnapshot) []string {
	idx := snap.Index()
	ordered := make([]string, 0, len(snap.Segments))
	visited := make(map[string]bool, len(snap.Segments))

	if _, ok := idx[snap.InitSegment]; ok {
		queue := []string{snap.InitSegment}
		visited[snap.InitSegment] = true
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			ordered = append(ordered, name)
			for _, target := range Targets(idx[name]) {
				if visited[target] {
					continue
				}
				if _, exists := idx[target]; !exists {
					// Dangling target; the validator reports it.
					continue
				}
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}

	var unreached []string
	for _, seg := range snap.Segments {
		if !visited[seg.Name] {
			unreached = append(unreached, seg.Name)
		}
	}
	sort.Strings(unreached)
	return append(ordered, unreached...)
}

// OrderMap returns ComputeOrder as a name -> 1-based order lookup.
func OrderMap(snap *types.FlowSnapshot) map[string]int {
	ordered := ComputeOrder(snap)
	m := make(map[string]int, len(ordered))
	for i, name := range ordered {
		m[name] = i + 1
	}
	return m
}

// ReachableSet returns the names of segments reachable from the init
// segment, the init segment included. Unreachable segments are warnings,
// never errors.
func ReachableSet(snap *types.FlowSnapshot) map[string]bool {
	idx := snap.Index()
	reached := make(map[string]bool)
	if _, ok := idx[snap.InitSegment]; !ok {
		return reached
	}
	queue := []string{snap.InitSegment}
	reached[snap.InitSegment] = true
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, target := range Targets(idx[name]) {
			if reached[target] {
				continue
			}
			if _, exists := idx[target]; !exists {
				continue
			}
			reached[target] = true
			queue = append(queue, target)
		}
	}
	return reached
}

// DetectCycles returns the cycles reachable from the init segment. The
// depth-first traversal keeps a recursion stack; revisiting a node already
// on the stack records the path slice from that node's first occurrence
// through the revisit as one cycle, so a self-loop on A reports ["A", "A"].
//
// Cycles are legitimate in this domain (menus loop back) and surface only as
// warnings.
func DetectCycles(snap *types.FlowSnapshot) [][]string {
	idx := snap.Index()
	if _, ok := idx[snap.InitSegment]; !ok {
		return nil
	}

	var cycles [][]string
	onStack := make(map[string]int) // name -> index in path
	done := make(map[string]bool)
	var path []string

	var visit func(name string)
	visit = func(name string) {
		path = append(path, name)
		onStack[name] = len(path) - 1
		for _, target := range Targets(idx[name]) {
			if _, exists := idx[target]; !exists {
				continue
			}
			if at, ok := onStack[target]; ok {
				cycle := make([]string, 0, len(path)-at+1)
				cycle = append(cycle, path[at:]...)
				cycle = append(cycle, target)
				cycles = append(cycles, cycle)
				continue
			}
			if done[target] {
				continue
			}
			visit(target)
		}
		delete(onStack, name)
		path = path[:len(path)-1]
		done[name] = true
	}
	visit(snap.InitSegment)
	return cycles
}
