package core

import (
	"context"
	"errors"
	"testing"
)

type sensorMetricsStub struct {
	sensors       int
	localizations int
	lastBlock     int
}

func (s *sensorMetricsStub) SetSensorCount(n int) { s.sensors = n }
func (s *sensorMetricsStub) ObserveLocalization(block int, found bool, probes int) {
	s.localizations++
	s.lastBlock = block
}

func TestRunScenarioExplicitFault(t *testing.T) {
	g := pathGrid(t, 9)
	se := NewSimulationEngine(g, nil)
	metrics := &sensorMetricsStub{}
	se.Metrics = metrics

	res, err := se.RunScenario(context.Background(), ScenarioRequest{
		Kind:      FaultExplicit,
		LineIndex: lineIndex(t, g, 4, 5),
	})
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if res.BaselineLive != 9 {
		t.Fatalf("BaselineLive = %d, want 9", res.BaselineLive)
	}
	for s, live := range res.BaselineReadings {
		if !live {
			t.Fatalf("baseline sensor %d reads dead", s)
		}
	}
	if res.Live != 5 || res.Dead != 4 {
		t.Fatalf("live=%d dead=%d, want 5/4", res.Live, res.Dead)
	}
	if !res.Localization.Found || res.Localization.FaultyBlock != 1 {
		t.Fatalf("localization = %+v", res.Localization)
	}
	if metrics.sensors != 3 || metrics.localizations != 1 || metrics.lastBlock != 1 {
		t.Fatalf("metrics = %+v", metrics)
	}
	if g.InServiceCount() != g.NumLines()-1 {
		t.Fatalf("grid should be left faulted")
	}
}

func TestRunScenarioDefaultsToBridgeFault(t *testing.T) {
	g := nestedRingsGrid(t)
	se := NewSimulationEngine(g, nil)

	res, err := se.RunScenario(context.Background(), ScenarioRequest{Seed: DefaultFaultSeed})
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if res.Fault.Kind != FaultBridge || res.Fault.LineIndex != lineIndex(t, g, 9, 89) {
		t.Fatalf("fault = %+v", res.Fault)
	}
	if res.Dead != 10 {
		t.Fatalf("dead = %d, want 10", res.Dead)
	}
	if !res.Localization.Found {
		t.Fatalf("a disconnecting fault must kill at least one sensor")
	}
	if summary := res.Summary(); summary == "" {
		t.Fatalf("empty summary")
	}
}

func TestRunScenarioRestoresServiceFirst(t *testing.T) {
	g := pathGrid(t, 4)
	se := NewSimulationEngine(g, nil)
	if _, err := se.Energization.SetFault(0); err != nil {
		t.Fatalf("SetFault: %v", err)
	}

	res, err := se.RunScenario(context.Background(), ScenarioRequest{Kind: FaultExplicit, LineIndex: 2})
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if res.BaselineLive != 4 || res.Dead != 1 {
		t.Fatalf("baseline=%d dead=%d, want 4/1", res.BaselineLive, res.Dead)
	}
}

func TestRunScenarioErrors(t *testing.T) {
	if _, err := NewSimulationEngine(NewGrid(), nil).RunScenario(context.Background(), ScenarioRequest{}); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("empty grid error = %v, want ErrEmptyGrid", err)
	}

	g := pathGrid(t, 3)
	se := NewSimulationEngine(g, nil)
	if _, err := se.RunScenario(context.Background(), ScenarioRequest{Kind: FaultExplicit, LineIndex: 9}); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("bad index error = %v, want ErrInvalidIndex", err)
	}
	if _, err := se.RunScenario(context.Background(), ScenarioRequest{Kind: "meteor"}); err == nil {
		t.Fatalf("expected error for unknown fault kind")
	}

	sourceless := gridFromEdges(t, 2, [][2]int{{0, 1}}, NoBus)
	if _, err := NewSimulationEngine(sourceless, nil).RunScenario(context.Background(), ScenarioRequest{}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("sourceless error = %v, want ErrNoSource", err)
	}
}

func TestRunDrillNotifiesListeners(t *testing.T) {
	g := pathGrid(t, 9)
	se := NewSimulationEngine(g, nil)

	var seen []RoundResult
	se.RegisterRoundListener(func(r RoundResult) { seen = append(seen, r) })

	report, err := se.RunDrill(context.Background(), 3, 100)
	if err != nil {
		t.Fatalf("RunDrill: %v", err)
	}
	if len(seen) != 3 || len(report.Rounds) != 3 {
		t.Fatalf("listener saw %d rounds, report has %d; want 3", len(seen), len(report.Rounds))
	}
	for i, r := range seen {
		if r.Round != i || r.Seed != 100+uint64(i) {
			t.Fatalf("round %d = %+v", i, r)
		}
		if r.Fault.Kind != FaultBridge || r.Dead == 0 || !r.Found || !r.Localized {
			t.Fatalf("round %d = %+v", i, r)
		}
	}
	if report.Localized != 3 || report.Missed != 0 || report.Silent != 0 {
		t.Fatalf("report = %+v", report)
	}
	if g.InServiceCount() != g.NumLines() {
		t.Fatalf("grid not re-energized after drill")
	}
}

func TestRunDrillStopsOnCancel(t *testing.T) {
	g := pathGrid(t, 9)
	se := NewSimulationEngine(g, nil)
	ctx, cancel := context.WithCancel(context.Background())

	rounds := 0
	se.RegisterRoundListener(func(RoundResult) {
		rounds++
		cancel()
	})

	report, err := se.RunDrill(ctx, 10, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunDrill error = %v, want context.Canceled", err)
	}
	if rounds != 1 || len(report.Rounds) != 1 {
		t.Fatalf("rounds = %d, report = %d; want 1", rounds, len(report.Rounds))
	}
}

func TestRunDrillCountsSilentRounds(t *testing.T) {
	// Every line of a ring is redundant, so faults fall back to random and
	// never de-energize anything.
	g := gridFromEdges(t, 6, ring(nil, 0, 5), 0)
	report, err := NewSimulationEngine(g, nil).RunDrill(context.Background(), 4, 9)
	if err != nil {
		t.Fatalf("RunDrill: %v", err)
	}
	if report.Silent != 4 {
		t.Fatalf("report = %+v, want 4 silent rounds", report)
	}
	for _, r := range report.Rounds {
		if r.Fault.Kind != FaultRandom || r.Dead != 0 || r.FaultyBlock != NoFaultyBlock {
			t.Fatalf("round = %+v", r)
		}
	}
}

func TestDeadEndpoint(t *testing.T) {
	status := map[BusID]bool{1: true, 2: false}
	if got := deadEndpoint(FaultEvent{From: 1, To: 2}, status); got != 2 {
		t.Fatalf("deadEndpoint = %d, want 2", got)
	}
	if got := deadEndpoint(FaultEvent{From: 2, To: 1}, status); got != 2 {
		t.Fatalf("deadEndpoint reversed = %d, want 2", got)
	}
	if got := deadEndpoint(FaultEvent{From: 1, To: 1}, status); got != NoBus {
		t.Fatalf("deadEndpoint live = %d, want NoBus", got)
	}
}

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return nil
}

func TestRunDrillWaitsBetweenRounds(t *testing.T) {
	se := NewSimulationEngine(pathGrid(t, 9), nil)
	pacer := &countingPacer{}
	se.Pacer = pacer

	if _, err := se.RunDrill(context.Background(), 4, 1); err != nil {
		t.Fatalf("RunDrill: %v", err)
	}
	if pacer.waits != 3 {
		t.Fatalf("waits = %d, want 3", pacer.waits)
	}
}
