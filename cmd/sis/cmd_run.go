package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leomarlo/simulate-sis-on-circle/analysis"
	"github.com/leomarlo/simulate-sis-on-circle/config"
	"github.com/leomarlo/simulate-sis-on-circle/logging"
	"github.com/leomarlo/simulate-sis-on-circle/metrics"
	"github.com/leomarlo/simulate-sis-on-circle/sis"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Number of nodes listed in the run summary.
const summaryTopNodes = 3

func addSimulationFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.Flags()
	f.Int("nodes", def.Network.Nodes, "Number of nodes of the ring")
	f.Float64("initial", def.Network.InitialFraction, "Fraction of initially infected nodes")
	f.String("initial-file", "", "File with explicit initial states (overrides --initial)")
	f.Float64("lambda", def.Model.Lambda, "Infection rate")
	f.Float64("recovery", def.Model.Recovery, "Recovery rate")
	f.Float64("dt", def.Model.Dt, "Duration of a step")
	f.Int("max-steps", def.Model.MaxSteps, "Maximum number of steps of a run")
	f.Bool("no-cap", false, "Do not enforce the maximum number of steps")
	f.Float64("time", def.Run.TotalTime, "Total simulated time")
	f.Int64("seed", def.Run.Seed, "Seed value for the random number generator")
	f.Bool("no-store", false, "Write steps as they are simulated instead of recording the run first")
	f.String("format", def.Output.Format, "Output format: csv or jsonl")
	f.StringP("output", "o", def.Output.Path, `Output file ("-" for stdout, empty to derive a name from the parameters)`)
	f.String("metrics-textfile", "", "Write Prometheus metrics to this file")
}

// loadConfig loads the configuration file (if any) and applies the flags
// explicitly set on the command line.
func loadConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var flagErr error
	cmd.Flags().Visit(func(fl *pflag.Flag) {
		if flagErr != nil {
			return
		}
		flagErr = applyFlag(cmd.Flags(), fl.Name, cfg)
	})
	if flagErr != nil {
		return nil, flagErr
	}
	return cfg, nil
}

func applyFlag(f *pflag.FlagSet, name string, cfg *config.RunConfig) error {
	var err error
	switch name {
	case "nodes":
		cfg.Network.Nodes, err = f.GetInt(name)
	case "initial":
		cfg.Network.InitialFraction, err = f.GetFloat64(name)
	case "initial-file":
		cfg.Network.InitialStatesFile, err = f.GetString(name)
	case "lambda":
		cfg.Model.Lambda, err = f.GetFloat64(name)
	case "recovery":
		cfg.Model.Recovery, err = f.GetFloat64(name)
	case "dt":
		cfg.Model.Dt, err = f.GetFloat64(name)
	case "max-steps":
		cfg.Model.MaxSteps, err = f.GetInt(name)
	case "no-cap":
		var noCap bool
		noCap, err = f.GetBool(name)
		cfg.Model.EnforceCap = !noCap
	case "time":
		cfg.Run.TotalTime, err = f.GetFloat64(name)
	case "seed":
		cfg.Run.Seed, err = f.GetInt64(name)
	case "no-store":
		var noStore bool
		noStore, err = f.GetBool(name)
		cfg.Run.Store = !noStore
	case "format":
		cfg.Output.Format, err = f.GetString(name)
	case "output":
		cfg.Output.Path, err = f.GetString(name)
	case "metrics-textfile":
		cfg.Metrics.Textfile, err = f.GetString(name)
	case "log-level":
		cfg.Logging.Level, err = f.GetString(name)
	}
	return err
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and write its time series",
		Long: `Run simulates floor(time/dt) steps and writes the state of every node
after each step, one row (csv) or one object (jsonl) per step.

Runs longer than --max-steps are rejected unless --no-cap is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())
			return runSimulation(cfg, cmd.OutOrStdout(), logger)
		},
	}
	addSimulationFlags(cmd)
	return cmd
}

// runSimulation runs the configured simulation and writes its series to
// stdout or to the configured output file.
func runSimulation(cfg *config.RunConfig, stdout io.Writer, logger *slog.Logger) (err error) {
	initial, err := cfg.Initial()
	if err != nil {
		return err
	}
	net, err := sis.Generate(cfg.Network.Nodes, initial)
	if err != nil {
		return err
	}
	initialStates := net.States.Snapshot()

	reg := metrics.NewRegistry()
	defer func() {
		if cfg.Metrics.Textfile == "" {
			return
		}
		if werr := reg.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logger.Error("writing metrics", "path", cfg.Metrics.Textfile, "error", werr)
			if err == nil {
				err = werr
			}
		}
	}()

	out := stdout
	path := cfg.OutputPath()
	if path != "-" {
		file, cerr := os.Create(path)
		if cerr != nil {
			reg.RecordRun(metrics.RunInvalid)
			return fmt.Errorf("creating output file: %w", cerr)
		}
		defer func() {
			err = finishOutput(file, path, err)
		}()
		out = file
	}

	w, err := newSeriesWriter(cfg.Output.Format, out, cfg.Network.Nodes)
	if err != nil {
		return err
	}

	opts := []sis.Option{
		sis.WithObserver(reg),
		sis.WithLogger(logger),
	}
	var runOpts []sis.RunOption
	var streamErr error
	if !cfg.Run.Store {
		runOpts = append(runOpts, sis.WithoutStore())
		opts = append(opts, sis.WithObserver(sis.ObserverFunc(
			func(step int, states sis.Snapshot, _ []sis.StateChange) {
				if streamErr == nil {
					streamErr = w.WriteStep(step, states)
				}
			},
		)))
	}

	sim, err := sis.NewSimulator(net, cfg.SimConfig(), opts...)
	if err != nil {
		reg.RecordRun(metrics.RunInvalid)
		return err
	}

	ts, err := sim.Run(cfg.Run.TotalTime, runOpts...)
	switch {
	case errors.Is(err, sis.ErrIterationLimitExceeded):
		reg.RecordRun(metrics.RunRejected)
		return fmt.Errorf("%w (use --no-cap or raise --max-steps)", err)
	case err != nil:
		reg.RecordRun(metrics.RunInvalid)
		return err
	}
	reg.RecordRun(metrics.RunOK)

	if streamErr != nil {
		return fmt.Errorf("writing time series: %w", streamErr)
	}
	for i, states := range ts {
		if err := w.WriteStep(i+1, states); err != nil {
			return fmt.Errorf("writing time series: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing time series: %w", err)
	}

	attrs := []any{
		"steps", sim.StepsTaken(),
		"infected", net.States.NumInfected(),
		"output", path,
	}
	if cfg.Run.Store {
		summary := analysis.Summarize(initialStates, ts)
		top := make([]int, 0, summaryTopNodes)
		for _, ns := range analysis.MostInfected(summary.NodeStats, summaryTopNodes) {
			top = append(top, ns.Node)
		}
		attrs = append(attrs,
			"mean_prevalence", summary.MeanPrevalence,
			"peak_infected", summary.PeakInfected,
			"extinction_step", summary.ExtinctionStep,
			"most_infected", top,
		)
	}
	logger.Info("run complete", attrs...)
	return nil
}

// finishOutput closes the output file and removes it if the run or the close
// failed. It returns the first of both errors.
func finishOutput(f io.Closer, path string, err error) error {
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing output file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}
