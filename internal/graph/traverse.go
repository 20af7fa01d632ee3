package graph

import (
	"fmt"

	"layeredquery/internal/logging"
	"layeredquery/internal/types"
)

// TraversalStep is one edge on a path returned by Traverse, or one hop
// of a reachability scan returned by ReachableFrom. ConceptID is the
// id of the node this step reached — set only by ReachableFrom, since
// Traverse's caller already knows the path runs toward a fixed target.
type TraversalStep struct {
	Relationship types.Relationship
	Depth        int
	ConceptID    string
}

// Traverse runs a bounded-depth breadth-first search for a path from
// start to target, following outgoing relationships only. maxDepth
// caps the path length; it does not limit how many distinct concepts
// are visited within that depth. Revisiting
// an already-queued concept is never allowed regardless of the
// relationship's priority, which is the resolution to the
// never-revisit traversal question this package settles.
//
// Grounded on LocalStore.TraversePath: a cameFrom map
// keyed by concept id (rather than storing full paths per queue entry)
// reconstructs the path by backtracking once the target is reached,
// holding the read lock for the whole walk to avoid a second,
// deadlock-prone RLock acquisition per hop.
func (s *Store) Traverse(start, target string, maxDepth int) ([]TraversalStep, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Traverse")
	defer timer.Stop()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type queueItem struct {
		id    string
		depth int
	}

	cameFrom := make(map[string]*types.Relationship)
	cameFrom[start] = nil
	queue := []queueItem{{id: start, depth: 0}}

	visitedEdges := 0
	const maxEdgesVisited = 10000 // hard backstop against pathological fan-out

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.id == target {
			return backtrack(cameFrom, target, current.depth), nil
		}
		if current.depth >= maxDepth {
			continue
		}

		edges, err := s.relationshipsLocked(current.id, "outgoing")
		if err != nil {
			continue
		}

		for _, edge := range edges {
			visitedEdges++
			if visitedEdges > maxEdgesVisited {
				return nil, types.NewError(types.ErrInternal, fmt.Sprintf("traversal exceeded %d edges", maxEdgesVisited), nil)
			}
			if _, seen := cameFrom[edge.Target]; seen {
				continue
			}
			e := edge
			cameFrom[edge.Target] = &e
			queue = append(queue, queueItem{id: edge.Target, depth: current.depth + 1})
		}
	}

	logging.GraphDebug("no path found from %s to %s within depth %d (visited %d concepts)", start, target, maxDepth, len(cameFrom))
	return nil, nil
}

// ReachableFrom runs the same bounded-depth, never-revisit BFS as
// Traverse but without a fixed target, returning every concept
// reachable within maxDepth along with the edge and depth that first
// reached it. Used by the propagation planner, which must consider
// every concept within range of a confirmed change rather than a
// single destination. Unlike Traverse, it walks edges in both
// directions: propagation candidates such as an interface's
// implementors are reached via an incoming `implements` edge, not an
// outgoing one.
func (s *Store) ReachableFrom(start string, maxDepth int) ([]TraversalStep, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "ReachableFrom")
	defer timer.Stop()

	if maxDepth <= 0 {
		maxDepth = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]bool{start: true}
	queue := []queueItem{{id: start, depth: 0}}

	var steps []TraversalStep
	visitedEdges := 0
	const maxEdgesVisited = 10000

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}

		edges, err := s.relationshipsLocked(current.id, "both")
		if err != nil {
			continue
		}

		for _, edge := range edges {
			visitedEdges++
			if visitedEdges > maxEdgesVisited {
				return nil, types.NewError(types.ErrInternal, fmt.Sprintf("reachability scan exceeded %d edges", maxEdgesVisited), nil)
			}
			other := edge.Target
			if other == current.id {
				other = edge.Source
			}
			if visited[other] {
				continue
			}
			visited[other] = true
			steps = append(steps, TraversalStep{Relationship: edge, Depth: current.depth + 1, ConceptID: other})
			queue = append(queue, queueItem{id: other, depth: current.depth + 1})
		}
	}

	return steps, nil
}

func backtrack(cameFrom map[string]*types.Relationship, target string, depth int) []TraversalStep {
	steps := make([]TraversalStep, depth)
	cur := target
	for i := depth - 1; i >= 0; i-- {
		edge := cameFrom[cur]
		if edge == nil {
			break
		}
		steps[i] = TraversalStep{Relationship: *edge, Depth: i + 1}
		cur = edge.Source
	}
	return steps
}

// Neighbors returns the concepts directly reachable from conceptID via
// outgoing relationships, optionally filtered to relType.
func (s *Store) Neighbors(conceptID string, relType types.RelationshipType) ([]types.Relationship, error) {
	edges, err := s.RelationshipsFor(conceptID, "outgoing")
	if err != nil {
		return nil, err
	}
	if relType == "" {
		return edges, nil
	}
	var out []types.Relationship
	for _, e := range edges {
		if e.Type == relType {
			out = append(out, e)
		}
	}
	return out, nil
}
