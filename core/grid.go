package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidIndex     = errors.New("line index out of range")
	ErrEmptyGrid        = errors.New("grid has no buses or lines")
	ErrNoInServiceEdges = errors.New("no in-service lines")
	ErrNoSource         = errors.New("grid has no source bus")
	ErrUnknownBus       = errors.New("unknown bus")
	ErrSelfLoop         = errors.New("line endpoints resolve to the same bus")
)

// BusID identifies a bus within one Grid. IDs are assigned in creation
// order and are not renumbered when buses are pruned.
type BusID int

// NoBus marks an absent bus, e.g. the source of an empty grid.
const NoBus BusID = -1

// Bus is a node of the grid graph at a deduplicated coordinate.
type Bus struct {
	ID        BusID   `json:"id"`
	Position  LonLat  `json:"position"`
	VoltageKV float64 `json:"voltage_kv"`
}

// Line is one segment between two buses. From/To keep the order of the
// source feature but connectivity treats the line as undirected.
//
// InService is the only field that changes after construction and is
// only written by EnergizationService.
type Line struct {
	Index     int     `json:"index"`
	From      BusID   `json:"from"`
	To        BusID   `json:"to"`
	VoltageKV float64 `json:"voltage_kv"`
	Name      string  `json:"name"`
	Power     string  `json:"power,omitempty"`
	LengthKm  float64 `json:"length_km"`
	InService bool    `json:"in_service"`
}

// other returns the endpoint opposite to id.
func (l *Line) other(id BusID) BusID {
	if l.From == id {
		return l.To
	}
	return l.From
}

// busPair is an unordered endpoint key (a <= b).
type busPair struct {
	a, b BusID
}

func pairOf(x, y BusID) busPair {
	if x > y {
		x, y = y, x
	}
	return busPair{a: x, b: y}
}

// Grid is the shared aggregate: buses, lines and the source bus.
//
// A Grid is not safe for concurrent mutation. Callers serialise fault
// operations on one instance.
type Grid struct {
	buses     map[BusID]*Bus
	busIDs    []BusID // ascending
	lines     []*Line // lines[i].Index == i
	adjacency map[BusID][]int
	byPair    map[busPair]int
	nextID    BusID
	source    BusID
}

// NewGrid creates an empty grid with no source.
func NewGrid() *Grid {
	return &Grid{
		buses:     make(map[BusID]*Bus),
		adjacency: make(map[BusID][]int),
		byPair:    make(map[busPair]int),
		source:    NoBus,
	}
}

//
// ---------- Construction ----------
//

// AddBus creates a bus at pos and returns its id.
func (g *Grid) AddBus(pos LonLat, voltageKV float64) BusID {
	id := g.nextID
	g.nextID++
	g.buses[id] = &Bus{ID: id, Position: pos, VoltageKV: voltageKV}
	g.busIDs = append(g.busIDs, id)
	return id
}

// AddLine appends an in-service line between two existing buses and
// returns its index.
func (g *Grid) AddLine(from, to BusID, voltageKV float64, name, power string, lengthKm float64) (int, error) {
	if from == to {
		return -1, fmt.Errorf("%w: %d", ErrSelfLoop, from)
	}
	if _, ok := g.buses[from]; !ok {
		return -1, fmt.Errorf("%w: %d", ErrUnknownBus, from)
	}
	if _, ok := g.buses[to]; !ok {
		return -1, fmt.Errorf("%w: %d", ErrUnknownBus, to)
	}

	idx := len(g.lines)
	g.lines = append(g.lines, &Line{
		Index:     idx,
		From:      from,
		To:        to,
		VoltageKV: voltageKV,
		Name:      name,
		Power:     power,
		LengthKm:  lengthKm,
		InService: true,
	})
	g.attachLine(idx)
	return idx, nil
}

// SetSource designates the power injection bus.
func (g *Grid) SetSource(id BusID) error {
	if _, ok := g.buses[id]; !ok {
		return fmt.Errorf("%w: source %d", ErrUnknownBus, id)
	}
	g.source = id
	return nil
}

// KeepLargestComponent removes every bus and line outside the largest
// connected component (by bus count, full topology). Surviving lines are
// reindexed contiguously in their original order. It returns the number
// of components found and how many buses and lines were removed.
func (g *Grid) KeepLargestComponent() (components, prunedBuses, prunedLines int) {
	comps := g.Components()
	if len(comps) <= 1 {
		return len(comps), 0, 0
	}

	largest := 0
	for i, c := range comps {
		if len(c) > len(comps[largest]) {
			largest = i
		}
	}
	keep := make(map[BusID]struct{}, len(comps[largest]))
	for _, id := range comps[largest] {
		keep[id] = struct{}{}
	}

	ids := make([]BusID, 0, len(keep))
	for _, id := range g.busIDs {
		if _, ok := keep[id]; ok {
			ids = append(ids, id)
			continue
		}
		delete(g.buses, id)
		prunedBuses++
	}
	g.busIDs = ids

	lines := make([]*Line, 0, len(g.lines))
	for _, l := range g.lines {
		_, okA := keep[l.From]
		_, okB := keep[l.To]
		if okA && okB {
			l.Index = len(lines)
			lines = append(lines, l)
			continue
		}
		prunedLines++
	}
	g.lines = lines
	g.reindex()

	if _, ok := g.buses[g.source]; !ok {
		g.source = NoBus
	}
	return len(comps), prunedBuses, prunedLines
}

func (g *Grid) attachLine(idx int) {
	l := g.lines[idx]
	g.adjacency[l.From] = append(g.adjacency[l.From], idx)
	g.adjacency[l.To] = append(g.adjacency[l.To], idx)
	key := pairOf(l.From, l.To)
	if _, exists := g.byPair[key]; !exists {
		g.byPair[key] = idx
	}
}

// reindex rebuilds adjacency and the endpoint index from g.lines.
func (g *Grid) reindex() {
	g.adjacency = make(map[BusID][]int, len(g.busIDs))
	g.byPair = make(map[busPair]int, len(g.lines))
	for i := range g.lines {
		g.attachLine(i)
	}
}

//
// ---------- Queries ----------
//

// Source returns the source bus, or NoBus.
func (g *Grid) Source() BusID { return g.source }

// HasSource reports whether the source is a member of the bus set.
func (g *Grid) HasSource() bool {
	if g == nil || g.source == NoBus {
		return false
	}
	_, ok := g.buses[g.source]
	return ok
}

// NumBuses returns the number of buses.
func (g *Grid) NumBuses() int { return len(g.busIDs) }

// NumLines returns the number of lines.
func (g *Grid) NumLines() int { return len(g.lines) }

// IsEmpty reports whether the grid has no buses.
func (g *Grid) IsEmpty() bool { return g == nil || len(g.busIDs) == 0 }

// Bus returns a copy of the bus with the given id.
func (g *Grid) Bus(id BusID) (Bus, bool) {
	b, ok := g.buses[id]
	if !ok {
		return Bus{}, false
	}
	return *b, true
}

// HasBus reports whether id is a member of the bus set.
func (g *Grid) HasBus(id BusID) bool {
	_, ok := g.buses[id]
	return ok
}

// BusIDs returns all bus ids in ascending order.
func (g *Grid) BusIDs() []BusID {
	out := make([]BusID, len(g.busIDs))
	copy(out, g.busIDs)
	return out
}

// Buses returns copies of all buses ordered by id.
func (g *Grid) Buses() []Bus {
	out := make([]Bus, 0, len(g.busIDs))
	for _, id := range g.busIDs {
		out = append(out, *g.buses[id])
	}
	return out
}

// Line returns a copy of the line at index i.
func (g *Grid) Line(i int) (Line, bool) {
	if i < 0 || i >= len(g.lines) {
		return Line{}, false
	}
	return *g.lines[i], true
}

// Lines returns copies of all lines ordered by index.
func (g *Grid) Lines() []Line {
	out := make([]Line, 0, len(g.lines))
	for _, l := range g.lines {
		out = append(out, *l)
	}
	return out
}

// LineBetween returns the first line created between a and b, in either
// direction.
func (g *Grid) LineBetween(a, b BusID) (Line, bool) {
	idx, ok := g.byPair[pairOf(a, b)]
	if !ok {
		return Line{}, false
	}
	return *g.lines[idx], true
}

// Neighbours returns the distinct buses adjacent to id in the full
// topology (service state ignored), in ascending order.
func (g *Grid) Neighbours(id BusID) []BusID {
	adj := g.adjacency[id]
	seen := make(map[BusID]struct{}, len(adj))
	out := make([]BusID, 0, len(adj))
	for _, idx := range adj {
		other := g.lines[idx].other(id)
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InServiceCount returns how many lines are currently in service.
func (g *Grid) InServiceCount() int {
	n := 0
	for _, l := range g.lines {
		if l.InService {
			n++
		}
	}
	return n
}

// Components returns the connected components of the full topology. Each
// component is sorted ascending and components are ordered by their
// smallest bus id.
func (g *Grid) Components() [][]BusID {
	seen := make(map[BusID]struct{}, len(g.busIDs))
	var comps [][]BusID
	for _, root := range g.busIDs {
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		comp := []BusID{root}
		queue := []BusID{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, idx := range g.adjacency[cur] {
				other := g.lines[idx].other(cur)
				if _, ok := seen[other]; ok {
					continue
				}
				seen[other] = struct{}{}
				comp = append(comp, other)
				queue = append(queue, other)
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		comps = append(comps, comp)
	}
	return comps
}
