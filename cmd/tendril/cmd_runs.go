package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/trace"
)

type runJSON struct {
	ID         string             `json:"id"`
	Program    string             `json:"program"`
	Seed       int64              `json:"seed"`
	Mode       string             `json:"mode"`
	Nodes      int                `json:"nodes"`
	Flows      int                `json:"flows"`
	Ticks      int                `json:"ticks"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	PhaseError map[string]float64 `json:"phase_error,omitempty"`
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the trace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rec, err := openRecorder(cfg, true)
			if err != nil {
				return err
			}
			defer rec.Close()

			ctx := cmd.Context()
			runs, err := rec.Runs(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}

			out := make([]runJSON, 0, len(runs))
			for _, run := range runs {
				rj := runToJSON(run)
				if run.Mode != simulation.ModeWeight {
					if pe, err := rec.PhaseError(ctx, run.ID); err == nil && len(pe) > 0 {
						rj.PhaseError = pe
					}
				}
				out = append(out, rj)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			if len(out) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs in %s\n", rec.Path())
				return nil
			}
			for _, rj := range out {
				state := "running"
				if rj.FinishedAt != nil {
					state = "finished"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s seed %-6d %6d ticks  %s  %s\n",
					rj.ID, rj.Program, rj.Seed, rj.Ticks, rj.StartedAt.Local().Format(time.DateTime), state)
				if v, ok := rj.PhaseError["learn"]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "    mean learn error %.6f\n", v)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Show at most this many runs (0 for all)")
	return cmd
}

func runToJSON(run trace.Run) runJSON {
	return runJSON{
		ID:         run.ID,
		Program:    run.Program,
		Seed:       run.Seed,
		Mode:       run.Mode,
		Nodes:      run.Nodes,
		Flows:      run.Flows,
		Ticks:      run.Ticks,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
