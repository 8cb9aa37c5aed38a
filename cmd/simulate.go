package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridmarket/app"
	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/scheduler"
	"github.com/kilianp07/gridmarket/infra/logger"
)

var (
	simSteps    int
	simScenario string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Clear a number of intervals on a simulated clock and print the prices",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simSteps, "steps", "n", 0, "number of intervals (default simulation.steps)")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "override scenario file (default simulation.scenario)")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if simSteps > 0 {
		cfg.Simulation.Steps = simSteps
	}
	if simScenario != "" {
		cfg.Simulation.Scenario = simScenario
	}
	return runSimulation(cmd, cfg, cmd.OutOrStdout())
}

func runSimulation(cmd *cobra.Command, cfg *config.Config, out io.Writer) error {
	start, err := cfg.Simulation.StartTime()
	if err != nil {
		return err
	}
	opts := app.Options{
		Clock:   scheduler.NewSimClock(start),
		Offline: true,
		Logger:  logger.New("simulate"),
	}
	if cfg.Simulation.Scenario != "" {
		sc, err := scheduler.LoadScenario(cfg.Simulation.Scenario)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		opts.Scenario = &sc
	}
	svc, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tCOMMODITY\tPRICE\tTARGET_W\tDEMAND_W\tFLAGS")
	svc.SetResultHandler(func(r model.ClearingResult) {
		for _, c := range cfg.Market.Commodities {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\t%.1f\t%s\n",
				r.Timestamp.Format("2006-01-02T15:04"), c, r.Prices[c], r.Targets[c], r.Demand[c], flags(r, c))
		}
	})
	if err := svc.RunN(contextOf(cmd), cfg.Simulation.Steps); err != nil {
		return err
	}
	return w.Flush()
}

func flags(r model.ClearingResult, c model.Commodity) string {
	s := ""
	for _, x := range r.Constrained {
		if x == c {
			s += "C"
		}
	}
	for _, x := range r.Infeasible {
		if x == c {
			s += "I"
		}
	}
	if s == "" {
		return "-"
	}
	return s
}
