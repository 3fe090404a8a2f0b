package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/random"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/topology"
)

func newJumbleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jumble",
		Short: "Generate a random spatial graph",
		Long: `Scatter nodes over a rectangle and wire each to its nearest neighbors,
then render the result. The graph runs in weight mode when --ticks is set.

Examples:
  tendril jumble --count 200 --neighbors 4 --format dot
  tendril jumble --noise 0.25 --ticks 50 --format html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			neighbors, _ := cmd.Flags().GetInt("neighbors")
			width, _ := cmd.Flags().GetFloat64("width")
			height, _ := cmd.Flags().GetFloat64("height")
			noise, _ := cmd.Flags().GetFloat64("noise")
			seed, _ := cmd.Flags().GetInt64("seed")
			ticks, _ := cmd.Flags().GetInt("ticks")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p := jumbleProgram(cfg.Simulation, topology.JumbleOptions{
				Rect:      graph.Rect{X1: width, Y1: height},
				Count:     count,
				Neighbors: neighbors,
			}, noise)
			snap, err := buildSnapshot(cmd.Context(), p, seed, ticks)
			if err != nil {
				return err
			}
			return writeGraph(cmd, p.Name, snap)
		},
	}

	addGraphFlags(cmd)
	cmd.Flags().Int("count", 80, "Number of nodes")
	cmd.Flags().Int("neighbors", 3, "Nearest neighbors wired per node")
	cmd.Flags().Float64("width", 20, "Width of the area")
	cmd.Flags().Float64("height", 12, "Height of the area")
	cmd.Flags().Float64("noise", 0, "Simplex noise scale for weights (0 draws uniform weights)")
	cmd.Flags().Int64("seed", 1, "Random seed")
	cmd.Flags().Int("ticks", 0, "Weight-mode ticks to run before rendering")
	return cmd
}

// jumbleProgram wraps a jumble topology as a weight-mode program. A positive
// noise scale draws weights from simplex noise over node positions.
func jumbleProgram(base simulation.Config, opts topology.JumbleOptions, noise float64) *program.Program {
	cfg := base
	cfg.Mode = simulation.ModeWeight
	return &program.Program{
		Name:        "jumble",
		Description: "generated spatial graph",
		Config:      cfg,
		Topology: func(rnd *random.Source) simulation.TopologyFunc {
			o := opts
			if noise > 0 {
				o.Weight = topology.Noise(rnd.Int63(), noise, -1, 1)
			}
			return func(tx *graph.Tx, _ *simulation.Roles) {
				topology.Jumble(tx, o, rnd)
			}
		},
	}
}
