package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/gridsense/internal/logging"
	"github.com/signalsfoundry/gridsense/internal/observability"
	"github.com/signalsfoundry/gridsense/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultFaultSeed seeds bridge fault selection when the caller gives none.
const DefaultFaultSeed uint64 = 42

// SensorMetricsRecorder receives sensor plan and localisation outcomes.
type SensorMetricsRecorder interface {
	SetSensorCount(n int)
	ObserveLocalization(faultyBlock int, found bool, probes int)
}

// ScenarioRequest selects the fault injected by RunScenario.
type ScenarioRequest struct {
	// Kind defaults to FaultBridge.
	Kind FaultKind
	// LineIndex is only read when Kind == FaultExplicit.
	LineIndex int
	// Seed drives random and bridge selection.
	Seed uint64
}

// ScenarioResult captures every stage of one energize/fault/localise run.
type ScenarioResult struct {
	Baseline         map[BusID]bool
	BaselineLive     int
	Plan             *SensorPlan
	BaselineReadings map[BusID]bool

	Fault     FaultEvent
	Energized map[BusID]bool
	Live      int
	Dead      int

	Localization Localization
	Duration     time.Duration
}

// Summary renders the post-fault sensor report.
func (r *ScenarioResult) Summary() string {
	if r == nil {
		return SensorSummary(nil, nil, NoFaultyBlock)
	}
	return SensorSummary(r.Plan, r.Localization.Readings, r.Localization.FaultyBlock)
}

// RoundResult is published to round listeners after every drill round.
type RoundResult struct {
	Round       int
	Seed        uint64
	Fault       FaultEvent
	Dead        int
	FaultyBlock int
	Found       bool
	Probes      int
	// Localized is set when the dead endpoint of the faulted line lies in
	// the reported block.
	Localized bool
}

// DrillReport aggregates a RunDrill.
type DrillReport struct {
	Rounds    []RoundResult
	Localized int
	// Missed counts rounds with a dead sensor whose block did not contain
	// the dead endpoint of the fault.
	Missed int
	// Silent counts rounds where every sensor stayed live.
	Silent int
}

// SimulationEngine drives the energize/fault/localise pipeline over one
// Grid. The grid is owned by the caller and is not safe for concurrent
// runs.
type SimulationEngine struct {
	Grid         *Grid
	Energization *EnergizationService
	Log          logging.Logger
	Metrics      SensorMetricsRecorder

	// Pacer, when set, is waited on between drill rounds.
	Pacer timectrl.Pacer

	roundListeners []func(RoundResult)
}

func NewSimulationEngine(g *Grid, log logging.Logger) *SimulationEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulationEngine{
		Grid:           g,
		Energization:   NewEnergizationService(g),
		Log:            log,
		roundListeners: []func(RoundResult){},
	}
}

func (se *SimulationEngine) RegisterRoundListener(fn func(RoundResult)) {
	se.roundListeners = append(se.roundListeners, fn)
}

func (se *SimulationEngine) logger() logging.Logger {
	if se.Log == nil {
		return logging.Noop()
	}
	return se.Log
}

func (se *SimulationEngine) check() error {
	if se == nil || se.Grid == nil || se.Grid.IsEmpty() {
		return fmt.Errorf("%w", ErrEmptyGrid)
	}
	if se.Energization == nil {
		se.Energization = NewEnergizationService(se.Grid)
	}
	return nil
}

// RunScenario energizes the grid, places sensors, injects the requested
// fault and localises it. The grid is left in its faulted state.
func (se *SimulationEngine) RunScenario(ctx context.Context, req ScenarioRequest) (*ScenarioResult, error) {
	if err := se.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := se.logger()

	ctx, span := observability.StartSpan(ctx, "gridsim.RunScenario",
		attribute.Int("grid.buses", se.Grid.NumBuses()),
		attribute.Int("grid.lines", se.Grid.NumLines()),
	)
	defer span.End()

	es := se.Energization
	es.EnergizeAll()
	res := &ScenarioResult{Baseline: es.Energized()}
	res.BaselineLive, _ = CountEnergized(res.Baseline)
	if res.BaselineLive != se.Grid.NumBuses() {
		log.Warn(ctx, "baseline has dead buses",
			logging.Int("live", res.BaselineLive),
			logging.Int("buses", se.Grid.NumBuses()),
		)
	}

	plan, err := PlaceSensors(se.Grid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Plan = plan
	res.BaselineReadings = ReadSensors(plan.Sensors, res.Baseline)
	if se.Metrics != nil {
		se.Metrics.SetSensorCount(len(plan.Sensors))
	}
	log.Info(ctx, "sensors placed",
		logging.Int("sensors", len(plan.Sensors)),
		logging.Int("block_size", plan.BlockSize),
	)

	fault, err := se.inject(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Fault = fault
	span.SetAttributes(
		attribute.Int("fault.line", fault.LineIndex),
		attribute.String("fault.kind", string(fault.Kind)),
	)

	res.Energized = es.Energized()
	res.Live, res.Dead = CountEnergized(res.Energized)
	res.Localization = Localize(plan, res.Energized)
	if se.Metrics != nil {
		se.Metrics.ObserveLocalization(res.Localization.FaultyBlock, res.Localization.Found, res.Localization.Probes)
	}
	res.Duration = time.Since(start)

	log.Info(ctx, "scenario complete",
		logging.String("fault", fault.Name),
		logging.String("kind", string(fault.Kind)),
		logging.Int("live", res.Live),
		logging.Int("dead", res.Dead),
		logging.Int("faulty_block", res.Localization.FaultyBlock),
		logging.Int("probes", res.Localization.Probes),
	)
	return res, nil
}

func (se *SimulationEngine) inject(req ScenarioRequest) (FaultEvent, error) {
	es := se.Energization
	switch req.Kind {
	case FaultExplicit:
		return es.SetFault(req.LineIndex)
	case FaultRandom:
		return es.RandomFault(NewRand(req.Seed))
	case FaultBridge, "":
		return es.FindBridgeFault(NewRand(req.Seed))
	default:
		return FaultEvent{}, fmt.Errorf("unknown fault kind %q", req.Kind)
	}
}

// RunDrill repeats bridge-fault rounds against a single sensor plan. Round
// r uses seed+r and starts from a fully energized grid. Listeners are
// called synchronously after each round. The grid is re-energized when the
// drill ends.
func (se *SimulationEngine) RunDrill(ctx context.Context, rounds int, seed uint64) (*DrillReport, error) {
	if err := se.check(); err != nil {
		return nil, err
	}
	log := se.logger()
	ctx, span := observability.StartSpan(ctx, "gridsim.RunDrill",
		attribute.Int("drill.rounds", rounds),
		attribute.Int64("drill.seed", int64(seed)),
	)
	defer span.End()

	plan, err := PlaceSensors(se.Grid)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if se.Metrics != nil {
		se.Metrics.SetSensorCount(len(plan.Sensors))
	}

	es := se.Energization
	defer es.EnergizeAll()

	report := &DrillReport{Rounds: make([]RoundResult, 0, max(rounds, 0))}
	for round := 0; round < rounds; round++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if round > 0 && se.Pacer != nil {
			if err := se.Pacer.Wait(ctx); err != nil {
				return report, err
			}
		}
		es.EnergizeAll()
		roundSeed := seed + uint64(round)
		fault, err := es.FindBridgeFault(NewRand(roundSeed))
		if err != nil {
			span.RecordError(err)
			return report, err
		}

		status := es.Energized()
		_, dead := CountEnergized(status)
		loc := Localize(plan, status)
		if se.Metrics != nil {
			se.Metrics.ObserveLocalization(loc.FaultyBlock, loc.Found, loc.Probes)
		}

		rr := RoundResult{
			Round:       round,
			Seed:        roundSeed,
			Fault:       fault,
			Dead:        dead,
			FaultyBlock: loc.FaultyBlock,
			Found:       loc.Found,
			Probes:      loc.Probes,
		}
		if loc.Found {
			if b, ok := plan.BlockOf(deadEndpoint(fault, status)); ok && b == loc.FaultyBlock {
				rr.Localized = true
			}
		}
		switch {
		case rr.Localized:
			report.Localized++
		case rr.Found:
			report.Missed++
		default:
			report.Silent++
		}
		report.Rounds = append(report.Rounds, rr)

		log.Debug(ctx, "drill round",
			logging.Int("round", round),
			logging.String("fault", fault.Name),
			logging.Int("dead", dead),
			logging.Int("faulty_block", loc.FaultyBlock),
			logging.Bool("localized", rr.Localized),
		)
		for _, fn := range se.roundListeners {
			fn(rr)
		}
	}

	log.Info(ctx, "drill complete",
		logging.Int("rounds", len(report.Rounds)),
		logging.Int("localized", report.Localized),
		logging.Int("missed", report.Missed),
		logging.Int("silent", report.Silent),
	)
	return report, nil
}

// deadEndpoint returns whichever endpoint of the faulted line lost power,
// preferring To. NoBus when both are still live.
func deadEndpoint(f FaultEvent, status map[BusID]bool) BusID {
	if on, ok := status[f.To]; ok && !on {
		return f.To
	}
	if on, ok := status[f.From]; ok && !on {
		return f.From
	}
	return NoBus
}
