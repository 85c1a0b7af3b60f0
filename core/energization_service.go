// core/energization_service.go
package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// FaultKind records how a fault line was chosen.
type FaultKind string

const (
	FaultExplicit FaultKind = "explicit"
	FaultRandom   FaultKind = "random"
	FaultBridge   FaultKind = "bridge"
)

// FaultEvent is an immutable snapshot of a line taken out of service.
type FaultEvent struct {
	LineIndex int       `json:"line_index"`
	From      BusID     `json:"from"`
	To        BusID     `json:"to"`
	Name      string    `json:"name"`
	VoltageKV float64   `json:"voltage_kv"`
	Kind      FaultKind `json:"kind"`
}

// BridgeFaultOptions tunes FindBridgeFault. Both values are demo
// heuristics rather than correctness requirements.
type BridgeFaultOptions struct {
	// TargetFraction is the share of buses the chosen fault should
	// disconnect.
	TargetFraction float64

	// SampleCap bounds how many bridges are simulated.
	SampleCap int
}

// DefaultBridgeFaultOptions aims for ~10% of buses, checking at most 50
// bridges.
func DefaultBridgeFaultOptions() BridgeFaultOptions {
	return BridgeFaultOptions{TargetFraction: 0.10, SampleCap: 50}
}

// ApplyDefaults replaces out-of-range fields with defaults.
func (o BridgeFaultOptions) ApplyDefaults() BridgeFaultOptions {
	def := DefaultBridgeFaultOptions()
	if o.TargetFraction <= 0 || o.TargetFraction > 1 || math.IsNaN(o.TargetFraction) {
		o.TargetFraction = def.TargetFraction
	}
	if o.SampleCap <= 0 {
		o.SampleCap = def.SampleCap
	}
	return o
}

// FaultMetricsRecorder receives fault and energization updates.
type FaultMetricsRecorder interface {
	RecordFault(kind string)
	SetEnergizedCounts(live, dead int)
}

// EnergizationService owns the service state of a Grid's lines and
// computes which buses are reachable from the source through in-service
// lines. It keeps no state of its own beyond the Grid it points to.
type EnergizationService struct {
	Grid *Grid

	// Bridge tunes FindBridgeFault.
	Bridge BridgeFaultOptions

	Metrics FaultMetricsRecorder
}

func NewEnergizationService(g *Grid) *EnergizationService {
	return &EnergizationService{
		Grid:   g,
		Bridge: DefaultBridgeFaultOptions(),
	}
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// EnergizeAll puts every line back in service.
func (es *EnergizationService) EnergizeAll() {
	if es == nil || es.Grid == nil {
		return
	}
	for _, l := range es.Grid.lines {
		l.InService = true
	}
}

// SetFault takes line idx out of service and returns its snapshot.
func (es *EnergizationService) SetFault(idx int) (FaultEvent, error) {
	return es.setFault(idx, FaultExplicit)
}

func (es *EnergizationService) setFault(idx int, kind FaultKind) (FaultEvent, error) {
	if es == nil || es.Grid == nil || es.Grid.IsEmpty() {
		return FaultEvent{}, fmt.Errorf("%w", ErrEmptyGrid)
	}
	g := es.Grid
	if idx < 0 || idx >= len(g.lines) {
		return FaultEvent{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, idx, len(g.lines))
	}

	l := g.lines[idx]
	l.InService = false

	if es.Metrics != nil {
		es.Metrics.RecordFault(string(kind))
	}
	return FaultEvent{
		LineIndex: idx,
		From:      l.From,
		To:        l.To,
		Name:      l.Name,
		VoltageKV: l.VoltageKV,
		Kind:      kind,
	}, nil
}

// RandomFault faults a line chosen uniformly among those in service. A
// nil rng draws from an unseeded generator.
func (es *EnergizationService) RandomFault(rng *rand.Rand) (FaultEvent, error) {
	return es.randomFault(rng, FaultRandom)
}

func (es *EnergizationService) randomFault(rng *rand.Rand, kind FaultKind) (FaultEvent, error) {
	if es == nil || es.Grid == nil || es.Grid.IsEmpty() {
		return FaultEvent{}, fmt.Errorf("%w", ErrEmptyGrid)
	}
	inService := make([]int, 0, len(es.Grid.lines))
	for i, l := range es.Grid.lines {
		if l.InService {
			inService = append(inService, i)
		}
	}
	if len(inService) == 0 {
		return FaultEvent{}, fmt.Errorf("%w", ErrNoInServiceEdges)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return es.setFault(inService[rng.IntN(len(inService))], kind)
}

// FindBridgeFault faults the bridge of the in-service subgraph whose
// removal disconnects a bus count closest to Bridge.TargetFraction of all
// buses. When more than Bridge.SampleCap bridges exist a sample drawn
// from rng is simulated. With no bridges it falls back to RandomFault.
func (es *EnergizationService) FindBridgeFault(rng *rand.Rand) (FaultEvent, error) {
	if es == nil || es.Grid == nil || es.Grid.IsEmpty() {
		return FaultEvent{}, fmt.Errorf("%w", ErrEmptyGrid)
	}
	g := es.Grid
	opts := es.Bridge.ApplyDefaults()

	bridges := findBridges(g)
	if len(bridges) == 0 {
		return es.randomFault(rng, FaultRandom)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	candidates := bridges
	if len(bridges) > opts.SampleCap {
		perm := rng.Perm(len(bridges))[:opts.SampleCap]
		sort.Ints(perm)
		candidates = make([]int, 0, opts.SampleCap)
		for _, p := range perm {
			candidates = append(candidates, bridges[p])
		}
	}

	n := g.NumBuses()
	target := int(float64(n) * opts.TargetFraction)
	best, bestDist := candidates[0], math.MaxInt
	for _, idx := range candidates {
		disconnected := n - len(reachableInService(g, g.source, idx))
		dist := disconnected - target
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = idx, dist
		}
	}
	return es.setFault(best, FaultBridge)
}

// Energized maps every bus to whether it is reachable from the source
// through in-service lines. If the source is not a member of the grid all
// buses are reported dead.
func (es *EnergizationService) Energized() map[BusID]bool {
	if es == nil || es.Grid == nil {
		return map[BusID]bool{}
	}
	g := es.Grid
	reach := reachableInService(g, g.source, noLine)

	status := make(map[BusID]bool, len(g.busIDs))
	for _, id := range g.busIDs {
		_, live := reach[id]
		status[id] = live
	}
	if es.Metrics != nil {
		live, dead := CountEnergized(status)
		es.Metrics.SetEnergizedCounts(live, dead)
	}
	return status
}

// CountEnergized returns the number of live and dead buses in status.
func CountEnergized(status map[BusID]bool) (live, dead int) {
	for _, on := range status {
		if on {
			live++
		} else {
			dead++
		}
	}
	return live, dead
}

// DeadBuses returns the de-energized buses in ascending order.
func DeadBuses(status map[BusID]bool) []BusID {
	out := make([]BusID, 0)
	for id, on := range status {
		if !on {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
