package core

import (
	"fmt"
	"math"
	"strings"
)

// NoFaultyBlock is returned by IdentifyFaultyBlock when every sensor
// reads live.
const NoFaultyBlock = -1

// SensorPlan is the √n placement derived from a Grid's full topology.
// It holds bus ids only and must be recomputed after any topology change;
// service state changes do not affect it.
type SensorPlan struct {
	// Ordering is the depth-first preorder from the source.
	Ordering []BusID
	// Blocks partitions Ordering into runs of BlockSize buses (the last
	// may be shorter).
	Blocks [][]BusID
	// Sensors[i] is the last bus of Blocks[i].
	Sensors   []BusID
	BlockSize int

	blockOf map[BusID]int
}

// BlockOf returns the index of the block containing bus.
func (p *SensorPlan) BlockOf(bus BusID) (int, bool) {
	if p == nil {
		return 0, false
	}
	i, ok := p.blockOf[bus]
	return i, ok
}

// PlaceSensors walks the full graph depth-first from the source, visiting
// neighbours in increasing id, cuts the ordering into blocks of
// ceil(sqrt(n)) buses and puts a sensor on the last bus of each block.
//
// Scanning sensors in order and stopping at the first dead one localises
// a disconnecting fault to a block of at most √n buses after at most √n
// probes.
func PlaceSensors(g *Grid) (*SensorPlan, error) {
	if g == nil {
		return nil, fmt.Errorf("%w", ErrNoSource)
	}
	if g.IsEmpty() {
		return &SensorPlan{blockOf: map[BusID]int{}}, nil
	}
	if !g.HasSource() {
		return nil, fmt.Errorf("%w: source %d", ErrNoSource, g.Source())
	}

	ordering := dfsPreorder(g, g.Source())
	n := len(ordering)
	k := int(math.Ceil(math.Sqrt(float64(n))))

	plan := &SensorPlan{
		Ordering:  ordering,
		BlockSize: k,
		Blocks:    make([][]BusID, 0, (n+k-1)/k),
		Sensors:   make([]BusID, 0, (n+k-1)/k),
		blockOf:   make(map[BusID]int, n),
	}
	for start := 0; start < n; start += k {
		end := start + k
		if end > n {
			end = n
		}
		block := ordering[start:end:end]
		for _, id := range block {
			plan.blockOf[id] = len(plan.Blocks)
		}
		plan.Blocks = append(plan.Blocks, block)
		plan.Sensors = append(plan.Sensors, block[len(block)-1])
	}
	return plan, nil
}

// dfsPreorder returns the recursive depth-first preorder from src over the
// full topology. Neighbours are pushed in reverse so the smallest id is
// explored first.
func dfsPreorder(g *Grid, src BusID) []BusID {
	visited := make(map[BusID]struct{}, g.NumBuses())
	order := make([]BusID, 0, g.NumBuses())
	stack := []BusID{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		order = append(order, cur)

		neigh := g.Neighbours(cur)
		for i := len(neigh) - 1; i >= 0; i-- {
			if _, ok := visited[neigh[i]]; !ok {
				stack = append(stack, neigh[i])
			}
		}
	}
	return order
}

// ReadSensors looks up every sensor in the energization map. Sensors
// missing from the map read dead.
func ReadSensors(sensors []BusID, energized map[BusID]bool) map[BusID]bool {
	out := make(map[BusID]bool, len(sensors))
	for _, s := range sensors {
		out[s] = energized[s]
	}
	return out
}

// IdentifyFaultyBlock returns the index of the first sensor, in traversal
// order, that reads dead. A single disconnecting fault kills a suffix of
// the sensors starting at the block that contains it, so only the block
// closest to the source is reported. ok is false (and the index
// NoFaultyBlock) when every sensor is live; a sensor absent from
// readings counts as live.
func IdentifyFaultyBlock(readings map[BusID]bool, sensors []BusID, blocks [][]BusID) (int, bool) {
	for i, s := range sensors {
		if i >= len(blocks) {
			break
		}
		live, ok := readings[s]
		if ok && !live {
			return i, true
		}
	}
	return NoFaultyBlock, false
}

// Localization is the outcome of probing a plan against an energization
// map.
type Localization struct {
	Readings    map[BusID]bool
	FaultyBlock int
	Found       bool
	// Probes is the number of sensors inspected before stopping.
	Probes int
	Live   int
	Dead   int
}

// Localize reads every sensor of plan and reports the faulty block.
func Localize(plan *SensorPlan, energized map[BusID]bool) Localization {
	if plan == nil {
		return Localization{Readings: map[BusID]bool{}, FaultyBlock: NoFaultyBlock}
	}
	readings := ReadSensors(plan.Sensors, energized)
	block, found := IdentifyFaultyBlock(readings, plan.Sensors, plan.Blocks)

	loc := Localization{
		Readings:    readings,
		FaultyBlock: block,
		Found:       found,
		Probes:      len(plan.Sensors),
	}
	if found {
		loc.Probes = block + 1
	}
	loc.Live, loc.Dead = CountEnergized(readings)
	return loc
}

// SensorSummary renders a plain-text status report for the sensors.
func SensorSummary(plan *SensorPlan, readings map[BusID]bool, faultyBlock int) string {
	var b strings.Builder
	rule := strings.Repeat("=", 55)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "  SENSOR STATUS REPORT")
	fmt.Fprintln(&b, rule)
	if plan == nil {
		fmt.Fprintln(&b, "  no sensor plan")
		fmt.Fprint(&b, rule)
		return b.String()
	}

	live, dead := CountEnergized(readings)
	fmt.Fprintf(&b, "  Total sensors: %d\n", len(plan.Sensors))
	fmt.Fprintf(&b, "  Live sensors:  %d\n", live)
	fmt.Fprintf(&b, "  Dead sensors:  %d\n", dead)
	fmt.Fprintln(&b)

	for i, s := range plan.Sensors {
		status := "DEAD"
		if readings[s] {
			status = "LIVE"
		}
		size := 0
		if i < len(plan.Blocks) {
			size = len(plan.Blocks[i])
		}
		marker := ""
		if i == faultyBlock {
			marker = " <- FAULT BLOCK"
		}
		fmt.Fprintf(&b, "  S%3d (Bus %6d) | Block: %4d buses | %s%s\n", i+1, s, size, status, marker)
	}

	fmt.Fprintln(&b)
	if faultyBlock >= 0 && faultyBlock < len(plan.Blocks) {
		fmt.Fprintf(&b, "  FAULT DETECTED in Block %d\n", faultyBlock+1)
		fmt.Fprintf(&b, "     Block contains %d buses\n", len(plan.Blocks[faultyBlock]))
	} else {
		fmt.Fprintln(&b, "  No faults detected: all sensors report LIVE")
	}
	fmt.Fprint(&b, rule)
	return b.String()
}
