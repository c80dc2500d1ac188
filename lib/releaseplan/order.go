// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseplan

import (
	"fmt"
)

// Ordering maintains a strict ordering among elements as a directed
// acyclic graph. Relations are added one at a time; each addition is
// checked against the existing graph so the structure can never hold
// a cycle. Sort produces a deterministic topological order: ties are
// broken by the order elements were first added, which keeps
// unconstrained plan steps in their authored order.
type Ordering struct {
	graph map[string][]string // element -> elements that must come after it
	nodes []string            // insertion order
	known map[string]bool
}

// NewOrdering returns an empty Ordering.
func NewOrdering() *Ordering {
	return &Ordering{
		graph: make(map[string][]string),
		known: make(map[string]bool),
	}
}

// Add registers an element with no ordering constraints. Elements
// named in AddRelation are registered automatically; Add exists for
// isolated elements that must still appear in Sort. Adding an element
// twice is a no-op.
func (o *Ordering) Add(element string) {
	if o.known[element] {
		return
	}
	o.known[element] = true
	o.nodes = append(o.nodes, element)
}

// AddRelation records that a comes before b. Returns an error if a
// and b are the same element or if the relation would create a cycle
// through the existing graph.
func (o *Ordering) AddRelation(a, b string) error {
	if a == b {
		return fmt.Errorf("ordering %q before itself", a)
	}
	if o.hasPath(b, a, nil) {
		return fmt.Errorf("ordering %q before %q creates a cycle", a, b)
	}
	o.Add(a)
	o.Add(b)
	o.graph[a] = append(o.graph[a], b)
	return nil
}

// Contains reports whether the element has been added.
func (o *Ordering) Contains(element string) bool {
	return o.known[element]
}

// hasPath reports whether dest is reachable from src by following
// relations forward.
func (o *Ordering) hasPath(src, dest string, visited map[string]bool) bool {
	if visited == nil {
		visited = make(map[string]bool)
	}
	visited[src] = true
	for _, neighbor := range o.graph[src] {
		if neighbor == dest {
			return true
		}
		if !visited[neighbor] && o.hasPath(neighbor, dest, visited) {
			return true
		}
	}
	return false
}

// Sort returns every element in topological order. Whenever more than
// one element is eligible, the one added first wins, so the result is
// stable across calls and preserves insertion order for elements with
// no constraints between them.
func (o *Ordering) Sort() []string {
	remaining := make(map[string]int, len(o.nodes))
	for _, node := range o.nodes {
		remaining[node] = 0
	}
	for _, successors := range o.graph {
		for _, successor := range successors {
			remaining[successor]++
		}
	}

	order := make([]string, 0, len(o.nodes))
	placed := make(map[string]bool, len(o.nodes))
	for len(order) < len(o.nodes) {
		advanced := false
		for _, node := range o.nodes {
			if placed[node] || remaining[node] > 0 {
				continue
			}
			placed[node] = true
			order = append(order, node)
			for _, successor := range o.graph[node] {
				remaining[successor]--
			}
			advanced = true
			break
		}
		// AddRelation rejects cycles, so every pass places a node.
		// The guard keeps Sort total if the invariant is ever broken.
		if !advanced {
			break
		}
	}
	return order
}

// Position returns the rank of element in Sort, or -1 when the
// element is unknown.
func (o *Ordering) Position(element string) int {
	if !o.known[element] {
		return -1
	}
	for index, candidate := range o.Sort() {
		if candidate == element {
			return index
		}
	}
	return -1
}

// Order returns the plan's steps in execution order: every step
// appears after all steps named in its After list, and steps with no
// constraints between them keep their authored order. Returns an
// error if an After entry references an unknown step or the
// dependencies form a cycle.
func (p *Plan) Order() ([]Step, error) {
	ordering := NewOrdering()
	byID := make(map[string]Step, len(p.Steps))
	for _, step := range p.Steps {
		ordering.Add(step.ID)
		byID[step.ID] = step
	}

	for _, step := range p.Steps {
		for _, dependency := range step.After {
			if _, exists := byID[dependency]; !exists {
				return nil, fmt.Errorf("step %q: after references unknown step %q", step.ID, dependency)
			}
			if err := ordering.AddRelation(dependency, step.ID); err != nil {
				return nil, fmt.Errorf("step %q: %w", step.ID, err)
			}
		}
	}

	ids := ordering.Sort()
	steps := make([]Step, len(ids))
	for index, id := range ids {
		steps[index] = byID[id]
	}
	return steps, nil
}
