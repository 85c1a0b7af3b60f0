package core

import "testing"

// gridFromEdges builds a grid with n buses laid out along the equator and
// one line per edge, in order. Line i connects edges[i].
func gridFromEdges(t *testing.T, n int, edges [][2]int, source BusID) *Grid {
	t.Helper()
	g := NewGrid()
	for i := 0; i < n; i++ {
		g.AddBus(LonLat{Lon: float64(i) * 0.01}, 110)
	}
	for i, e := range edges {
		if _, err := g.AddLine(BusID(e[0]), BusID(e[1]), 110, "", "line", 1); err != nil {
			t.Fatalf("AddLine #%d %v: %v", i, e, err)
		}
	}
	if source != NoBus {
		if err := g.SetSource(source); err != nil {
			t.Fatalf("SetSource(%d): %v", source, err)
		}
	}
	return g
}

// pathGrid is 0-1-2-...-(n-1) with line i joining i and i+1, sourced at 0.
func pathGrid(t *testing.T, n int) *Grid {
	t.Helper()
	edges := make([][2]int, 0, n-1)
	for i := 0; i+1 < n; i++ {
		edges = append(edges, [2]int{i, i + 1})
	}
	return gridFromEdges(t, n, edges, 0)
}

func ring(edges [][2]int, from, to int) [][2]int {
	for i := from; i < to; i++ {
		edges = append(edges, [2]int{i, i + 1})
	}
	return append(edges, [2]int{to, from})
}

// nestedRingsGrid has 100 buses: a 9-bus ring holding the source, an
// 80-bus ring behind bridge 0-9, a 10-bus ring behind bridge 9-89 and a
// single leaf behind bridge 1-99.
func nestedRingsGrid(t *testing.T) *Grid {
	t.Helper()
	var edges [][2]int
	edges = ring(edges, 0, 8)
	edges = append(edges, [2]int{0, 9})
	edges = ring(edges, 9, 88)
	edges = append(edges, [2]int{9, 89})
	edges = ring(edges, 89, 98)
	edges = append(edges, [2]int{1, 99})
	return gridFromEdges(t, 100, edges, 0)
}

func lineIndex(t *testing.T, g *Grid, a, b BusID) int {
	t.Helper()
	l, ok := g.LineBetween(a, b)
	if !ok {
		t.Fatalf("no line between %d and %d", a, b)
	}
	return l.Index
}
