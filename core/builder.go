package core

import (
	"context"
	"strconv"
	"time"

	"github.com/signalsfoundry/gridsense/internal/logging"
)

// BuildOptions bounds how much of the classified input is ingested.
type BuildOptions struct {
	// MaxMajorLines caps the number of major line features processed.
	MaxMajorLines int
	// MaxMinorLines and MaxCables cap the secondary buckets.
	MaxMinorLines int
	MaxCables     int
	// CoordPrecision is the decimal-degree rounding used for dedup.
	CoordPrecision int
	// MinLineLengthKm floors stored line lengths.
	MinLineLengthKm float64
}

// DefaultBuildOptions returns the ingestion budget used by the CLI.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxMajorLines:   5000,
		MaxMinorLines:   100,
		MaxCables:       100,
		CoordPrecision:  DefaultCoordPrecision,
		MinLineLengthKm: MinLineLengthKm,
	}
}

// ApplyDefaults fills zero or negative fields from DefaultBuildOptions.
// Negative caps on the secondary buckets mean "skip the bucket".
func (o BuildOptions) ApplyDefaults() BuildOptions {
	def := DefaultBuildOptions()
	if o.MaxMajorLines <= 0 {
		o.MaxMajorLines = def.MaxMajorLines
	}
	if o.MaxMinorLines == 0 {
		o.MaxMinorLines = def.MaxMinorLines
	}
	if o.MaxCables == 0 {
		o.MaxCables = def.MaxCables
	}
	if o.CoordPrecision <= 0 {
		o.CoordPrecision = def.CoordPrecision
	}
	if o.MinLineLengthKm <= 0 {
		o.MinLineLengthKm = def.MinLineLengthKm
	}
	return o
}

// BuildReport counts what the builder did so callers can spot
// suspiciously empty results.
type BuildReport struct {
	FeaturesSeen    int
	FeaturesSkipped int
	BusesCreated    int
	LinesCreated    int
	Components      int
	BusesPruned     int
	LinesPruned     int

	Source               BusID
	SourceFromSubstation bool
	SourceVoltageKV      float64

	Duration time.Duration

	// Empty is set when no bus could be created. The returned grid is
	// then empty with Source == NoBus.
	Empty bool
}

// GridMetricsRecorder receives grid size updates after a build.
type GridMetricsRecorder interface {
	SetGridCounts(buses, lines int)
	ObserveBuild(d time.Duration)
}

// GridBuilder turns classified features into a connected Grid.
type GridBuilder struct {
	Options BuildOptions
	Log     logging.Logger
	Metrics GridMetricsRecorder
}

func NewGridBuilder(opts BuildOptions, log logging.Logger) *GridBuilder {
	if log == nil {
		log = logging.Noop()
	}
	return &GridBuilder{Options: opts.ApplyDefaults(), Log: log}
}

// Build constructs the grid:
//  1. concatenate major lines (capped), minor lines and cables,
//  2. dedup every rounded coordinate into a bus (first voltage wins),
//  3. add one line per consecutive pair of distinct buses,
//  4. keep the largest connected component,
//  5. attach the source to the highest-voltage substation that lands on a
//     surviving bus, else the lowest bus id.
//
// Malformed features are skipped, never fatal.
func (b *GridBuilder) Build(ctx context.Context, features *ClassifiedFeatures) (*Grid, *BuildReport) {
	start := time.Now()
	log := b.Log
	if log == nil {
		log = logging.Noop()
	}
	opts := b.Options.ApplyDefaults()

	grid := NewGrid()
	report := &BuildReport{Source: NoBus}
	if features == nil {
		features = &ClassifiedFeatures{}
	}

	linear := make([]LinearFeature, 0, len(features.Lines))
	linear = append(linear, capLinear(features.Lines, opts.MaxMajorLines)...)
	linear = append(linear, capLinear(features.MinorLines, opts.MaxMinorLines)...)
	linear = append(linear, capLinear(features.Cables, opts.MaxCables)...)

	coordToBus := make(map[coordKey]BusID)
	resolve := func(p LonLat, kv float64) BusID {
		k := p.key(opts.CoordPrecision)
		if id, ok := coordToBus[k]; ok {
			return id
		}
		id := grid.AddBus(p, kv)
		coordToBus[k] = id
		return id
	}

	for i, feat := range linear {
		report.FeaturesSeen++
		if len(feat.Coordinates) < 2 {
			report.FeaturesSkipped++
			continue
		}
		kv := ParseVoltageKV(feat.Voltage)
		featID := feat.ID
		if featID == "" {
			featID = "feat_" + strconv.Itoa(i)
		}

		ids := make([]BusID, len(feat.Coordinates))
		for j, c := range feat.Coordinates {
			ids[j] = resolve(c, kv)
		}

		for seg := 0; seg+1 < len(ids); seg++ {
			from, to := ids[seg], ids[seg+1]
			if from == to {
				continue
			}
			fb, _ := grid.Bus(from)
			tb, _ := grid.Bus(to)
			length := fb.Position.DistanceKm(tb.Position)
			if length < opts.MinLineLengthKm {
				length = opts.MinLineLengthKm
			}
			// from != to and both exist, so AddLine cannot fail here.
			_, _ = grid.AddLine(from, to, kv, lineName(featID, seg, kv), feat.Power, length)
		}
	}

	report.BusesCreated = grid.NumBuses()
	report.LinesCreated = grid.NumLines()
	log.Info(ctx, "grid topology assembled",
		logging.Int("features", report.FeaturesSeen),
		logging.Int("buses", report.BusesCreated),
		logging.Int("lines", report.LinesCreated),
	)

	if grid.IsEmpty() {
		report.Empty = true
		report.Duration = time.Since(start)
		log.Warn(ctx, "no buses created; grid is empty",
			logging.Int("features", report.FeaturesSeen),
			logging.Int("skipped", report.FeaturesSkipped),
		)
		b.record(grid, report)
		return grid, report
	}

	report.Components, report.BusesPruned, report.LinesPruned = grid.KeepLargestComponent()
	if report.Components > 1 {
		log.Info(ctx, "kept largest connected component",
			logging.Int("components", report.Components),
			logging.Int("buses_pruned", report.BusesPruned),
			logging.Int("lines_pruned", report.LinesPruned),
		)
	}

	src, kv, fromSub := selectSource(grid, features.Substations, coordToBus, opts.CoordPrecision)
	_ = grid.SetSource(src)
	report.Source = src
	report.SourceFromSubstation = fromSub
	report.SourceVoltageKV = kv
	report.Duration = time.Since(start)

	log.Info(ctx, "grid built",
		logging.Int("buses", grid.NumBuses()),
		logging.Int("lines", grid.NumLines()),
		logging.Int("source", int(src)),
		logging.Any("source_from_substation", fromSub),
		logging.String("duration", report.Duration.String()),
	)
	b.record(grid, report)
	return grid, report
}

func (b *GridBuilder) record(g *Grid, report *BuildReport) {
	if b.Metrics == nil {
		return
	}
	b.Metrics.SetGridCounts(g.NumBuses(), g.NumLines())
	b.Metrics.ObserveBuild(report.Duration)
}

// selectSource picks the surviving bus under the highest-voltage
// substation; equal voltages keep the first substation seen. Without a
// match it falls back to the lowest bus id.
func selectSource(g *Grid, substations []Feature, coordToBus map[coordKey]BusID, precision int) (BusID, float64, bool) {
	best := NoBus
	bestKV := 0.0
	for _, feat := range substations {
		if feat == nil {
			continue
		}
		switch feat.Geometry() {
		case GeometryPoint, GeometryPolygon:
		default:
			continue
		}
		pos, ok := feat.Representative()
		if !ok {
			continue
		}
		id, ok := coordToBus[pos.key(precision)]
		if !ok || !g.HasBus(id) {
			continue
		}
		kv := ParseVoltageKV(feat.VoltageTag())
		if best == NoBus || kv > bestKV {
			best, bestKV = id, kv
		}
	}
	if best != NoBus {
		return best, bestKV, true
	}

	ids := g.BusIDs()
	if len(ids) == 0 {
		return NoBus, 0, false
	}
	fallback, _ := g.Bus(ids[0])
	return fallback.ID, fallback.VoltageKV, false
}

func capLinear(feats []LinearFeature, limit int) []LinearFeature {
	if limit < 0 {
		return nil
	}
	if len(feats) > limit {
		return feats[:limit]
	}
	return feats
}

// lineName encodes feature id, segment index and voltage, e.g.
// "L_way/42_3_220kV".
func lineName(featID string, seg int, kv float64) string {
	return "L_" + featID + "_" + strconv.Itoa(seg) + "_" + strconv.FormatFloat(kv, 'f', -1, 64) + "kV"
}
