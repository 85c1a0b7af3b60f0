package main

import (
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/gridsense/core"
	"github.com/spf13/cobra"
)

type planOutput struct {
	Buses     int            `json:"buses"`
	Lines     int            `json:"lines"`
	Source    core.BusID     `json:"source"`
	BlockSize int            `json:"block_size"`
	Sensors   []core.BusID   `json:"sensors"`
	Blocks    [][]core.BusID `json:"blocks"`
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the sensor placement for a grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, env, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			plan, err := core.PlaceSensors(env.grid)
			if err != nil {
				return err
			}
			env.collector.SetSensorCount(len(plan.Sensors))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(planOutput{
					Buses:     env.grid.NumBuses(),
					Lines:     env.grid.NumLines(),
					Source:    env.grid.Source(),
					BlockSize: plan.BlockSize,
					Sensors:   plan.Sensors,
					Blocks:    plan.Blocks,
				})
			}

			printBuildReport(out, env.grid, env.report)
			fmt.Fprintf(out, "Sensors: %d (block size %d)\n", len(plan.Sensors), plan.BlockSize)
			for i, s := range plan.Sensors {
				fmt.Fprintf(out, "  S%-3d bus %-6d block %d buses\n", i+1, s, len(plan.Blocks[i]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the plan as JSON")
	return cmd
}
