package core

import (
	"errors"
	"reflect"
	"testing"
)

type faultMetricsStub struct {
	faults     map[string]int
	live, dead int
}

func (s *faultMetricsStub) RecordFault(kind string) {
	if s.faults == nil {
		s.faults = map[string]int{}
	}
	s.faults[kind]++
}

func (s *faultMetricsStub) SetEnergizedCounts(live, dead int) {
	s.live, s.dead = live, dead
}

func TestEnergizedPathWithFault(t *testing.T) {
	g := pathGrid(t, 5)
	es := NewEnergizationService(g)
	es.EnergizeAll()

	ev, err := es.SetFault(lineIndex(t, g, 2, 3))
	if err != nil {
		t.Fatalf("SetFault: %v", err)
	}
	if ev.From != 2 || ev.To != 3 || ev.Kind != FaultExplicit {
		t.Fatalf("fault event = %+v", ev)
	}

	want := map[BusID]bool{0: true, 1: true, 2: true, 3: false, 4: false}
	if got := es.Energized(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Energized = %v, want %v", got, want)
	}
	if got := DeadBuses(es.Energized()); !reflect.DeepEqual(got, []BusID{3, 4}) {
		t.Fatalf("DeadBuses = %v, want [3 4]", got)
	}

	es.EnergizeAll()
	if live, dead := CountEnergized(es.Energized()); live != 5 || dead != 0 {
		t.Fatalf("after EnergizeAll live=%d dead=%d, want 5/0", live, dead)
	}
}

func TestSetFaultIsIdempotent(t *testing.T) {
	g := pathGrid(t, 4)
	es := NewEnergizationService(g)

	first, err := es.SetFault(1)
	if err != nil {
		t.Fatalf("SetFault: %v", err)
	}
	status := es.Energized()
	second, err := es.SetFault(1)
	if err != nil {
		t.Fatalf("second SetFault: %v", err)
	}
	if first != second {
		t.Fatalf("events differ: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(status, es.Energized()) {
		t.Fatalf("repeated fault changed energization")
	}
}

func TestSetFaultInvalidIndex(t *testing.T) {
	g := pathGrid(t, 3)
	es := NewEnergizationService(g)
	for _, idx := range []int{-1, g.NumLines(), 99} {
		if _, err := es.SetFault(idx); !errors.Is(err, ErrInvalidIndex) {
			t.Fatalf("SetFault(%d) error = %v, want ErrInvalidIndex", idx, err)
		}
	}
	if g.InServiceCount() != g.NumLines() {
		t.Fatalf("failed SetFault changed service state")
	}
}

func TestFaultsOnEmptyGrid(t *testing.T) {
	es := NewEnergizationService(NewGrid())
	if _, err := es.SetFault(0); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("SetFault error = %v, want ErrEmptyGrid", err)
	}
	if _, err := es.RandomFault(NewRand(1)); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("RandomFault error = %v, want ErrEmptyGrid", err)
	}
	if _, err := es.FindBridgeFault(NewRand(1)); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("FindBridgeFault error = %v, want ErrEmptyGrid", err)
	}
	if got := es.Energized(); len(got) != 0 {
		t.Fatalf("Energized on empty grid = %v", got)
	}
}

func TestRandomFaultWithoutInServiceLines(t *testing.T) {
	g := pathGrid(t, 3)
	es := NewEnergizationService(g)
	for i := 0; i < g.NumLines(); i++ {
		if _, err := es.SetFault(i); err != nil {
			t.Fatalf("SetFault(%d): %v", i, err)
		}
	}
	if _, err := es.RandomFault(NewRand(7)); !errors.Is(err, ErrNoInServiceEdges) {
		t.Fatalf("RandomFault error = %v, want ErrNoInServiceEdges", err)
	}
}

func TestRandomFaultIsSeeded(t *testing.T) {
	pick := func() int {
		g := nestedRingsGrid(t)
		ev, err := NewEnergizationService(g).RandomFault(NewRand(2024))
		if err != nil {
			t.Fatalf("RandomFault: %v", err)
		}
		if ev.Kind != FaultRandom {
			t.Fatalf("kind = %q, want random", ev.Kind)
		}
		return ev.LineIndex
	}
	if a, b := pick(), pick(); a != b {
		t.Fatalf("same seed chose lines %d and %d", a, b)
	}
}

func TestRandomFaultOnlyPicksInServiceLines(t *testing.T) {
	g := pathGrid(t, 3)
	es := NewEnergizationService(g)
	if _, err := es.SetFault(0); err != nil {
		t.Fatalf("SetFault: %v", err)
	}
	for seed := uint64(0); seed < 20; seed++ {
		g.lines[1].InService = true
		ev, err := es.RandomFault(NewRand(seed))
		if err != nil {
			t.Fatalf("RandomFault: %v", err)
		}
		if ev.LineIndex != 1 {
			t.Fatalf("seed %d faulted line %d, want 1", seed, ev.LineIndex)
		}
	}
}

func TestEnergizedWithoutSourceIsAllDead(t *testing.T) {
	g := gridFromEdges(t, 3, [][2]int{{0, 1}, {1, 2}}, NoBus)
	es := NewEnergizationService(g)
	if live, dead := CountEnergized(es.Energized()); live != 0 || dead != 3 {
		t.Fatalf("live=%d dead=%d, want 0/3", live, dead)
	}
}

func TestFindBridgeFaultTargetsTenPercent(t *testing.T) {
	g := nestedRingsGrid(t)
	es := NewEnergizationService(g)
	metrics := &faultMetricsStub{}
	es.Metrics = metrics

	ev, err := es.FindBridgeFault(NewRand(42))
	if err != nil {
		t.Fatalf("FindBridgeFault: %v", err)
	}
	if ev.Kind != FaultBridge || ev.LineIndex != lineIndex(t, g, 9, 89) {
		t.Fatalf("fault = %+v, want bridge 9-89", ev)
	}

	live, dead := CountEnergized(es.Energized())
	if live != 90 || dead != 10 {
		t.Fatalf("live=%d dead=%d, want 90/10", live, dead)
	}
	if metrics.faults["bridge"] != 1 || metrics.live != 90 || metrics.dead != 10 {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestFindBridgeFaultTargetFractionIsTunable(t *testing.T) {
	g := nestedRingsGrid(t)
	es := NewEnergizationService(g)
	es.Bridge = BridgeFaultOptions{TargetFraction: 0.9}

	ev, err := es.FindBridgeFault(NewRand(1))
	if err != nil {
		t.Fatalf("FindBridgeFault: %v", err)
	}
	if ev.LineIndex != lineIndex(t, g, 0, 9) {
		t.Fatalf("fault = %+v, want bridge 0-9", ev)
	}
}

func TestFindBridgeFaultFallsBackToRandom(t *testing.T) {
	g := gridFromEdges(t, 5, ring(nil, 0, 4), 0)
	ev, err := NewEnergizationService(g).FindBridgeFault(NewRand(3))
	if err != nil {
		t.Fatalf("FindBridgeFault: %v", err)
	}
	if ev.Kind != FaultRandom {
		t.Fatalf("kind = %q, want random fallback", ev.Kind)
	}
	if g.InServiceCount() != g.NumLines()-1 {
		t.Fatalf("expected exactly one line out of service")
	}
}

func TestFindBridgeFaultSamplesWhenAboveCap(t *testing.T) {
	// A 200-bus path has 199 bridges; only the sample is simulated but the
	// pick must still be a real bridge of the path.
	g := pathGrid(t, 200)
	es := NewEnergizationService(g)
	es.Bridge.SampleCap = 5

	ev, err := es.FindBridgeFault(NewRand(11))
	if err != nil {
		t.Fatalf("FindBridgeFault: %v", err)
	}
	if ev.Kind != FaultBridge {
		t.Fatalf("kind = %q, want bridge", ev.Kind)
	}
	_, dead := CountEnergized(es.Energized())
	if dead != 200-1-ev.LineIndex {
		t.Fatalf("dead = %d for line %d", dead, ev.LineIndex)
	}
}

func TestBridgeFaultOptionsApplyDefaults(t *testing.T) {
	got := BridgeFaultOptions{TargetFraction: 2, SampleCap: -1}.ApplyDefaults()
	if got != DefaultBridgeFaultOptions() {
		t.Fatalf("ApplyDefaults = %+v", got)
	}
	kept := BridgeFaultOptions{TargetFraction: 0.3, SampleCap: 7}.ApplyDefaults()
	if kept.TargetFraction != 0.3 || kept.SampleCap != 7 {
		t.Fatalf("valid options overwritten: %+v", kept)
	}
}
