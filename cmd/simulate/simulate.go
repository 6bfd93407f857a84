// Package simulate implements a headless, faster than real time run that
// exports the completed item history as CSV.
package simulate

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/history"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/simulator"
)

// Options controls a headless simulation.
type Options struct {
	Duration time.Duration // simulated time
	Step     time.Duration // dt of each frame
}

// Summary is the outcome of a headless simulation.
type Summary struct {
	RunID    string
	Clock    float64
	Stats    line.StatsSnapshot
	Bins     []line.BinState
	Exported int64
}

// Command creates the simulate command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		opts Options
		out  string
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the line headless for a fixed duration and export CSV",
		Long: `Advance the line for a fixed amount of simulated time as fast as possible
and write the completed item history as CSV.

Examples:
  qcline simulate --duration 10m --out history.csv
  qcline simulate --duration 1h --seed 42 --out -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seed") {
				settings.Simulation.Seed = seed
			}

			w := cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return errors.New(err).
						Component("simulate").
						Category(errors.CategoryFileIO).
						Context("path", out).
						Build()
				}
				defer f.Close()
				w = f
			}

			summary, err := Run(settings, opts, w)
			if err != nil {
				return err
			}
			PrintSummary(cmd.ErrOrStderr(), summary)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 10*time.Minute, "Simulated time to run")
	cmd.Flags().DurationVar(&opts.Step, "step", 50*time.Millisecond, "Frame length")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "CSV output file, - for stdout")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed, 0 picks one from the clock")

	return cmd
}

// Run steps a fresh engine for opts.Duration of simulated time and writes
// every completed item to w as CSV.
func Run(settings *conf.Settings, opts Options, w io.Writer) (*Summary, error) {
	if opts.Duration <= 0 || opts.Step <= 0 {
		return nil, errors.Newf("duration and step must be positive").
			Component("simulate").
			Category(errors.CategoryValidation).
			Context("duration", opts.Duration.String()).
			Context("step", opts.Step.String()).
			Build()
	}

	runID := uuid.New().String()

	// Each run gets a private in-memory database.
	store, err := history.Open("file:simulate_"+runID+"?mode=memory&cache=shared", settings.History.SlowQueryThreshold)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	engine, err := simulator.BuildEngine(settings, line.WithHistory(store))
	if err != nil {
		return nil, err
	}
	runner := simulator.New(engine,
		simulator.WithID(runID),
		simulator.WithMaxStep(settings.Simulation.MaxStep))

	dt := opts.Step.Seconds()
	for elapsed := time.Duration(0); elapsed < opts.Duration; elapsed += opts.Step {
		runner.Step(dt)
	}

	total, err := store.Count(history.Filter{})
	if err != nil {
		return nil, err
	}
	if err := store.WriteCSV(w, history.Filter{}); err != nil {
		return nil, err
	}

	snap := runner.Snapshot()
	return &Summary{
		RunID:    runID,
		Clock:    snap.Clock,
		Stats:    engine.Stats(),
		Bins:     snap.Bins,
		Exported: total,
	}, nil
}

// PrintSummary writes a short human readable report.
func PrintSummary(w io.Writer, s *Summary) {
	g := s.Stats.Global
	fmt.Fprintf(w, "run %s: %.1fs simulated\n", s.RunID, s.Clock)
	fmt.Fprintf(w, "spawned %d, completed %d, dropped %d, yield %.1f%%\n",
		g.Spawned, g.Completed, g.Dropped, g.YieldPercent())
	for _, v := range classifier.Verdicts {
		fmt.Fprintf(w, "  %-14s %d\n", v, g.Verdict(v))
	}
	for _, b := range s.Bins {
		fmt.Fprintf(w, "  bin %-12s %d\n", b.ID, b.Count)
	}
	fmt.Fprintf(w, "exported %d records\n", s.Exported)
}
