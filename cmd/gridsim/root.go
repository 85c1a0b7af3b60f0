package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/gridsense/core"
	"github.com/signalsfoundry/gridsense/internal/config"
	"github.com/signalsfoundry/gridsense/internal/logging"
	"github.com/signalsfoundry/gridsense/internal/observability"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	geojson     []string
	maxLines    int
	seed        uint64
	metricsAddr string
	logLevel    string
	logFormat   string

	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	root := &cobra.Command{
		Use:   "gridsim",
		Short: "Grid fault simulation with square-root sensor placement",
		Long: `Build a power grid graph from OSM GeoJSON exports, energize it from the
highest-voltage substation, cut a line and localise the fault using
ceil(sqrt(n)) sensors placed along a depth-first walk.

Examples:
  gridsim simulate --geojson export.geojson
  gridsim simulate --geojson export.geojson --fault-line 42
  gridsim plan --geojson export.geojson --max-lines 2000
  gridsim drill --config run.yaml --rounds 25`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML run file")
	flags.StringSliceVarP(&opts.geojson, "geojson", "g", nil, "GeoJSON input files (repeatable)")
	flags.IntVar(&opts.maxLines, "max-lines", 0, "cap on major line features (default from config, 5000)")
	flags.Uint64Var(&opts.seed, "seed", 0, "seed for random and bridge fault selection")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address while running")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")

	root.AddCommand(newSimulateCmd(opts), newPlanCmd(opts), newDrillCmd(opts))
	return root
}

// resolveConfig layers the run file, the environment and explicit flags,
// in that order.
func (o *rootOptions) resolveConfig(cmd *cobra.Command) (config.RunConfig, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.RunConfig{}, err
	}
	cfg, err = cfg.WithEnv()
	if err != nil {
		return config.RunConfig{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("geojson") {
		cfg.GeoJSON = o.geojson
	}
	if flags.Changed("max-lines") {
		cfg.Build.MaxLines = o.maxLines
	}
	if flags.Changed("seed") {
		cfg.Fault.Seed = o.seed
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg.ApplyDefaults(), nil
}

// runEnv is everything a subcommand needs once the grid is built.
type runEnv struct {
	cfg       config.RunConfig
	log       logging.Logger
	collector *observability.GridCollector
	grid      *core.Grid
	report    *core.BuildReport
	engine    *core.SimulationEngine

	cleanup []func()
}

func (e *runEnv) close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

// prepare resolves configuration, starts logging, tracing and metrics,
// loads every GeoJSON input and builds the grid. The caller must close the
// returned env.
func (o *rootOptions) prepare(cmd *cobra.Command) (context.Context, *runEnv, error) {
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	base := logging.NewFromEnv(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx, log := logging.WithRunLogger(ctx, base)
	ctx = logging.ContextWithLogger(ctx, log)

	env := &runEnv{cfg: cfg, log: log}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("init tracing: %w", err)
	}
	env.cleanup = append(env.cleanup, func() {
		observability.ShutdownWithTimeout(context.Background(), shutdown, log)
	})

	collector, err := observability.NewGridCollector(prometheus.NewRegistry())
	if err != nil {
		env.close()
		return nil, nil, fmt.Errorf("init metrics: %w", err)
	}
	env.collector = collector
	if srv := serveMetrics(ctx, cfg.Metrics.Addr, collector, log); srv != nil {
		env.cleanup = append(env.cleanup, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	spanCtx, span := observability.StartSpan(ctx, "gridsim.BuildGrid")
	features, loadReport, err := core.LoadGeoJSONFiles(spanCtx, cfg.GeoJSON...)
	if err != nil {
		span.RecordError(err)
		span.End()
		env.close()
		return nil, nil, err
	}
	log.Info(ctx, "geojson loaded",
		logging.Int("files", len(cfg.GeoJSON)),
		logging.Int("features", loadReport.FeaturesSeen),
		logging.Int("skipped", loadReport.FeaturesSkipped),
		logging.Int("lines", loadReport.Counts.Lines),
		logging.Int("substations", loadReport.Counts.Substations),
	)

	builder := core.NewGridBuilder(cfg.BuildOptions(), log)
	builder.Metrics = collector
	grid, report := builder.Build(spanCtx, features)
	span.End()
	if report.Empty {
		env.close()
		return nil, nil, fmt.Errorf("%w: no buses built from %d features", core.ErrEmptyGrid, report.FeaturesSeen)
	}

	engine := core.NewSimulationEngine(grid, log)
	engine.Energization.Bridge = cfg.BridgeOptions()
	engine.Energization.Metrics = collector
	engine.Metrics = collector

	env.grid, env.report, env.engine = grid, report, engine
	return ctx, env, nil
}

func serveMetrics(ctx context.Context, addr string, collector *observability.GridCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func printBuildReport(w io.Writer, g *core.Grid, r *core.BuildReport) {
	fmt.Fprintf(w, "Grid: %d buses, %d lines\n", g.NumBuses(), g.NumLines())
	if r.Components > 1 {
		fmt.Fprintf(w, "  kept largest of %d components (pruned %d buses, %d lines)\n",
			r.Components, r.BusesPruned, r.LinesPruned)
	}
	origin := "lowest bus id"
	if r.SourceFromSubstation {
		origin = "substation"
	}
	fmt.Fprintf(w, "  source: bus %d (%.0f kV, %s)\n", r.Source, r.SourceVoltageKV, origin)
}
