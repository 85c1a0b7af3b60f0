// Package config loads gridsim run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gridsense/core"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// RunConfig is the full configuration of one gridsim invocation.
type RunConfig struct {
	GeoJSON []string      `yaml:"geojson"`
	Build   BuildConfig   `yaml:"build"`
	Fault   FaultConfig   `yaml:"fault"`
	Drill   DrillConfig   `yaml:"drill"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// BuildConfig mirrors core.BuildOptions.
type BuildConfig struct {
	MaxLines        int     `yaml:"max_lines"`
	MaxMinorLines   int     `yaml:"max_minor_lines"`
	MaxCables       int     `yaml:"max_cables"`
	CoordPrecision  int     `yaml:"coord_precision"`
	MinLineLengthKm float64 `yaml:"min_line_length_km"`
}

// FaultConfig selects the injected fault.
type FaultConfig struct {
	// Kind is explicit, random or bridge.
	// Default: bridge
	Kind string `yaml:"kind"`

	// Line is the faulted line index when Kind is explicit.
	Line int `yaml:"line"`

	// Seed drives random and bridge selection. Zero selects
	// core.DefaultFaultSeed.
	Seed uint64 `yaml:"seed"`

	// TargetFraction and SampleCap tune bridge selection.
	TargetFraction float64 `yaml:"target_fraction"`
	SampleCap      int     `yaml:"sample_cap"`
}

// DrillConfig controls repeated fault rounds.
type DrillConfig struct {
	// Rounds defaults to 10.
	Rounds int `yaml:"rounds"`

	// Interval is the wall-clock pause between rounds, e.g. "2s". Zero
	// runs rounds back to back.
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig overrides LOG_LEVEL / LOG_FORMAT.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultRunConfig returns a RunConfig with the CLI defaults.
func DefaultRunConfig() RunConfig {
	build := core.DefaultBuildOptions()
	bridge := core.DefaultBridgeFaultOptions()
	return RunConfig{
		Build: BuildConfig{
			MaxLines:        build.MaxMajorLines,
			MaxMinorLines:   build.MaxMinorLines,
			MaxCables:       build.MaxCables,
			CoordPrecision:  build.CoordPrecision,
			MinLineLengthKm: build.MinLineLengthKm,
		},
		Fault: FaultConfig{
			Kind:           string(core.FaultBridge),
			Seed:           core.DefaultFaultSeed,
			TargetFraction: bridge.TargetFraction,
			SampleCap:      bridge.SampleCap,
		},
		Drill: DrillConfig{Rounds: 10},
	}
}

// ApplyDefaults fills zero fields from DefaultRunConfig.
func (c RunConfig) ApplyDefaults() RunConfig {
	def := DefaultRunConfig()
	if c.Build.MaxLines <= 0 {
		c.Build.MaxLines = def.Build.MaxLines
	}
	if c.Build.MaxMinorLines == 0 {
		c.Build.MaxMinorLines = def.Build.MaxMinorLines
	}
	if c.Build.MaxCables == 0 {
		c.Build.MaxCables = def.Build.MaxCables
	}
	if c.Build.CoordPrecision <= 0 {
		c.Build.CoordPrecision = def.Build.CoordPrecision
	}
	if c.Build.MinLineLengthKm <= 0 {
		c.Build.MinLineLengthKm = def.Build.MinLineLengthKm
	}
	c.Fault.Kind = strings.ToLower(strings.TrimSpace(c.Fault.Kind))
	if c.Fault.Kind == "" {
		c.Fault.Kind = def.Fault.Kind
	}
	if c.Fault.Seed == 0 {
		c.Fault.Seed = def.Fault.Seed
	}
	if c.Fault.TargetFraction <= 0 || c.Fault.TargetFraction > 1 {
		c.Fault.TargetFraction = def.Fault.TargetFraction
	}
	if c.Fault.SampleCap <= 0 {
		c.Fault.SampleCap = def.Fault.SampleCap
	}
	if c.Drill.Rounds <= 0 {
		c.Drill.Rounds = def.Drill.Rounds
	}
	if c.Drill.Interval < 0 {
		c.Drill.Interval = 0
	}
	return c
}

// Load reads a YAML run file and applies defaults. An empty path yields
// DefaultRunConfig; a missing file is an error.
func Load(path string) (RunConfig, error) {
	if path == "" {
		return DefaultRunConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read run config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return RunConfig{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	// Relative GeoJSON paths are resolved against the run file.
	dir := filepath.Dir(path)
	for i, p := range cfg.GeoJSON {
		if p != "" && !filepath.IsAbs(p) {
			cfg.GeoJSON[i] = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults. Unknown keys are rejected.
func Parse(data []byte) (RunConfig, error) {
	var cfg RunConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return RunConfig{}, err
	}
	return cfg.ApplyDefaults(), nil
}

// WithEnv applies GRIDSIM_GEOJSON (comma separated), GRIDSIM_MAX_LINES and
// GRIDSIM_SEED on top of c.
func (c RunConfig) WithEnv() (RunConfig, error) {
	if raw, ok := os.LookupEnv("GRIDSIM_GEOJSON"); ok && strings.TrimSpace(raw) != "" {
		c.GeoJSON = splitList(raw)
	}
	if raw, ok := os.LookupEnv("GRIDSIM_MAX_LINES"); ok && raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return c, fmt.Errorf("%w: GRIDSIM_MAX_LINES=%q", ErrInvalidConfig, raw)
		}
		c.Build.MaxLines = n
	}
	if raw, ok := os.LookupEnv("GRIDSIM_SEED"); ok && raw != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return c, fmt.Errorf("%w: GRIDSIM_SEED=%q", ErrInvalidConfig, raw)
		}
		c.Fault.Seed = n
	}
	return c.ApplyDefaults(), nil
}

// Validate reports settings no command can run with.
func (c RunConfig) Validate() error {
	if len(c.GeoJSON) == 0 {
		return fmt.Errorf("%w: no geojson input", ErrInvalidConfig)
	}
	switch core.FaultKind(c.Fault.Kind) {
	case core.FaultBridge, core.FaultRandom:
	case core.FaultExplicit:
		if c.Fault.Line < 0 {
			return fmt.Errorf("%w: fault line %d is negative", ErrInvalidConfig, c.Fault.Line)
		}
	default:
		return fmt.Errorf("%w: unknown fault kind %q", ErrInvalidConfig, c.Fault.Kind)
	}
	return nil
}

// BuildOptions converts the build section for core.GridBuilder.
func (c RunConfig) BuildOptions() core.BuildOptions {
	return core.BuildOptions{
		MaxMajorLines:   c.Build.MaxLines,
		MaxMinorLines:   c.Build.MaxMinorLines,
		MaxCables:       c.Build.MaxCables,
		CoordPrecision:  c.Build.CoordPrecision,
		MinLineLengthKm: c.Build.MinLineLengthKm,
	}.ApplyDefaults()
}

// BridgeOptions converts the fault section for core.EnergizationService.
func (c RunConfig) BridgeOptions() core.BridgeFaultOptions {
	return core.BridgeFaultOptions{
		TargetFraction: c.Fault.TargetFraction,
		SampleCap:      c.Fault.SampleCap,
	}.ApplyDefaults()
}

// ScenarioRequest converts the fault section for core.SimulationEngine.
func (c RunConfig) ScenarioRequest() core.ScenarioRequest {
	return core.ScenarioRequest{
		Kind:      core.FaultKind(c.Fault.Kind),
		LineIndex: c.Fault.Line,
		Seed:      c.Fault.Seed,
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
