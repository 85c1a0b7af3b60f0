package main

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/gridsense/core"
	"github.com/signalsfoundry/gridsense/timectrl"
	"github.com/spf13/cobra"
)

func newDrillCmd(root *rootOptions) *cobra.Command {
	var (
		rounds   int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Repeat bridge-fault rounds and score localisation",
		Long: `Inject one bridge fault per round against the same sensor plan, restoring
the grid between rounds. Round r uses seed+r.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			n := env.cfg.Drill.Rounds
			if cmd.Flags().Changed("rounds") {
				n = rounds
			}

			pause := env.cfg.Drill.Interval
			if cmd.Flags().Changed("interval") {
				pause = interval
			}
			if pause > 0 {
				pacer := timectrl.NewRoundController(pause, timectrl.RealTime)
				defer pacer.Stop()
				env.engine.Pacer = pacer
			}

			out := cmd.OutOrStdout()
			printBuildReport(out, env.grid, env.report)
			env.engine.RegisterRoundListener(func(r core.RoundResult) {
				verdict := "silent"
				switch {
				case r.Localized:
					verdict = "localized"
				case r.Found:
					verdict = "missed"
				}
				fmt.Fprintf(out, "round %3d  line %-6d dead %-6d block %-4d probes %-4d %s\n",
					r.Round, r.Fault.LineIndex, r.Dead, r.FaultyBlock, r.Probes, verdict)
			})

			report, err := env.engine.RunDrill(ctx, n, env.cfg.Fault.Seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Drill: %d rounds, %d localized, %d missed, %d silent\n",
				len(report.Rounds), report.Localized, report.Missed, report.Silent)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 0, "number of fault rounds (default from config, 10)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between rounds so /metrics can be scraped")
	return cmd
}
