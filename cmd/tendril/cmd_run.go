package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/config"
	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/trace"
)

// defaultWeightTicks is how long a weight-mode program runs without --ticks.
const defaultWeightTicks = 100

// defaultPeriods is how many full schedules a phased program runs without
// --ticks.
const defaultPeriods = 10

type runSummary struct {
	Program    string                  `json:"program"`
	Seed       int64                   `json:"seed"`
	Mode       string                  `json:"mode"`
	Ticks      int                     `json:"ticks"`
	RunID      string                  `json:"run_id,omitempty"`
	Trace      string                  `json:"trace,omitempty"`
	FinalError *float64                `json:"final_error,omitempty"`
	MeanWeight float64                 `json:"mean_weight"`
	Reports    []simulation.TickReport `json:"reports"`
	PhaseError map[string]float64      `json:"phase_error,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [program]",
		Short: "Run a program for a number of ticks",
		Long: `Build a program and step it as fast as possible, printing tick reports.

Examples:
  tendril run flip                       # ten learning periods
  tendril run boolean --ticks 4100 --every 41
  tendril run ./ring.yaml --seed 7 --trace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			seed, _ := cmd.Flags().GetInt64("seed")
			ticks, _ := cmd.Flags().GetInt("ticks")
			every, _ := cmd.Flags().GetInt("every")
			traceOn, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProgram(programArg(args, "flip"), cfg)
			if err != nil {
				return err
			}
			if ticks <= 0 {
				ticks = defaultTicks(p.Config)
			}
			if every <= 0 {
				every = defaultEvery(p.Config)
			}

			logger := newLogger(cfg, cmd.ErrOrStderr())
			rec, err := openRecorder(cfg, traceOn)
			if err != nil {
				return err
			}
			if rec != nil {
				defer rec.Close()
			}
			events := newEventLogger(cfg, p.Name)
			defer events.Close()

			opts := []driver.Option{driver.WithLogger(logger), driver.WithEvents(events), driver.WithPaused(true)}
			if rec != nil {
				opts = append(opts, driver.WithTrace(rec))
			}
			dr, err := driver.New(p, seed, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			summary, runErr := runTicks(ctx, dr, ticks, every, func(r simulation.TickReport) {
				if !jsonOut {
					printReport(cmd.OutOrStdout(), p.Config.Mode, r)
				}
			})
			if err := dr.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("driver close failed", "error", err)
			}
			if rec != nil && summary.RunID != "" {
				summary.Trace = rec.Path()
				if summary.Mode == simulation.ModePhased {
					if pe, err := rec.PhaseError(context.WithoutCancel(ctx), summary.RunID); err == nil && len(pe) > 0 {
						summary.PhaseError = pe
					}
				}
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(summary); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return runErr
		},
	}

	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the program's own seed)")
	cmd.Flags().Int("ticks", 0, "Ticks to run (default: 10 periods, or 100 in weight mode)")
	cmd.Flags().Int("every", 0, "Print every Nth tick (default: once per period)")
	cmd.Flags().Bool("trace", false, "Record the run in the trace database")
	return cmd
}

func defaultTicks(c simulation.Config) int {
	if c.Mode == simulation.ModeWeight {
		return defaultWeightTicks
	}
	return defaultPeriods * simulation.Period(c.PredictionDelay)
}

func defaultEvery(c simulation.Config) int {
	if c.Mode == simulation.ModeWeight {
		return 10
	}
	return simulation.Period(c.PredictionDelay)
}

// runTicks steps dr in chunks the driver accepts and collects every
// every-th report plus the last one.
func runTicks(ctx context.Context, dr *driver.Driver, ticks, every int, onReport func(simulation.TickReport)) (runSummary, error) {
	st := dr.Status()
	summary := runSummary{Program: st.Program, Seed: st.Seed, Mode: st.Mode, RunID: st.RunID, Reports: []simulation.TickReport{}}

	var last *simulation.TickReport
	var lastCorrected *simulation.TickReport
	keep := func(r simulation.TickReport) {
		summary.Reports = append(summary.Reports, r)
		onReport(r)
	}

	var runErr error
	for done := 0; done < ticks; {
		n := min(ticks-done, constants.MaxStepsPerCall)
		reports, err := dr.Step(ctx, n)
		for i := range reports {
			r := reports[i]
			last = &reports[i]
			if r.Outputs != nil {
				lastCorrected = &reports[i]
			}
			if (r.Tick+1)%every == 0 {
				keep(r)
			}
		}
		done += len(reports)
		if err != nil {
			runErr = err
			break
		}
	}

	if last != nil {
		if len(summary.Reports) == 0 || summary.Reports[len(summary.Reports)-1].Tick != last.Tick {
			keep(*last)
		}
		summary.Ticks = last.Tick + 1
		summary.MeanWeight = last.MeanWeight
	}
	if lastCorrected != nil {
		e := lastCorrected.Error
		summary.FinalError = &e
	}
	return summary, runErr
}

func printReport(w io.Writer, mode string, r simulation.TickReport) {
	if mode == simulation.ModeWeight {
		fmt.Fprintf(w, "tick %6d  moved %10.6f  flipped %3d  mean weight %.6f\n",
			r.Tick, r.Moved, r.Flipped, r.MeanWeight)
		return
	}
	fmt.Fprintf(w, "tick %6d  %-9s  sample %2d  error %10.6f  moved %10.6f  mean weight %.6f\n",
		r.Tick, r.Phase, r.Sample, r.Error, r.Moved, r.MeanWeight)
}

func printSummary(w io.Writer, s runSummary) {
	fmt.Fprintf(w, "\n%s (seed %d, %s): %d ticks, mean weight %.6f\n", s.Program, s.Seed, s.Mode, s.Ticks, s.MeanWeight)
	if s.FinalError != nil {
		fmt.Fprintf(w, "final error: %.6f\n", *s.FinalError)
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "trace run %s in %s\n", s.RunID, s.Trace)
	}
	for _, phase := range []string{"predict", "learn", "repredict"} {
		if v, ok := s.PhaseError[phase]; ok {
			fmt.Fprintf(w, "  mean %-9s error: %.6f\n", phase, v)
		}
	}
}

// openRecorder opens the trace database when tracing is on in cfg or
// forced by a flag.
func openRecorder(cfg *config.TendrilConfig, force bool) (*trace.Recorder, error) {
	if !force && !cfg.Trace.Enabled {
		return nil, nil
	}
	path, err := cfg.TracePath()
	if err != nil {
		return nil, err
	}
	rec, err := trace.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	return rec, nil
}
