package core

import "sort"

// noLine disables the skip argument of reachableInService.
const noLine = -1

// reachableInService returns the buses reachable from src through
// in-service lines, treating line skip as out of service as well.
// src itself is always included when it is a member of the grid.
func reachableInService(g *Grid, src BusID, skip int) map[BusID]struct{} {
	reach := make(map[BusID]struct{})
	if !g.HasBus(src) {
		return reach
	}
	reach[src] = struct{}{}
	queue := []BusID{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, idx := range g.adjacency[cur] {
			l := g.lines[idx]
			if idx == skip || !l.InService {
				continue
			}
			other := l.other(cur)
			if _, ok := reach[other]; ok {
				continue
			}
			reach[other] = struct{}{}
			queue = append(queue, other)
		}
	}
	return reach
}

// findBridges returns the indices of the in-service lines whose removal
// disconnects the in-service subgraph, in ascending order.
//
// It is an iterative Tarjan low-link search. The tree edge a bus was
// reached by is skipped by line index rather than by neighbour, so a pair
// of parallel lines is never reported.
func findBridges(g *Grid) []int {
	type frame struct {
		bus  BusID
		via  int // line used to reach bus, noLine for roots
		next int // position in adjacency
	}

	disc := make(map[BusID]int, len(g.busIDs))
	low := make(map[BusID]int, len(g.busIDs))
	timer := 0
	var bridges []int

	for _, root := range g.busIDs {
		if _, seen := disc[root]; seen {
			continue
		}
		disc[root], low[root] = timer, timer
		timer++
		stack := []frame{{bus: root, via: noLine}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			adj := g.adjacency[top.bus]
			if top.next < len(adj) {
				idx := adj[top.next]
				top.next++
				l := g.lines[idx]
				if idx == top.via || !l.InService {
					continue
				}
				other := l.other(top.bus)
				if d, seen := disc[other]; seen {
					if d < low[top.bus] {
						low[top.bus] = d
					}
					continue
				}
				disc[other], low[other] = timer, timer
				timer++
				stack = append(stack, frame{bus: other, via: idx})
				continue
			}

			done := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			parent := stack[len(stack)-1].bus
			if low[done.bus] < low[parent] {
				low[parent] = low[done.bus]
			}
			if low[done.bus] > disc[parent] {
				bridges = append(bridges, done.via)
			}
		}
	}

	sort.Ints(bridges)
	return bridges
}
