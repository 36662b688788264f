package main

import (
	"fmt"

	"github.com/leomarlo/simulate-sis-on-circle/sis"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a run configuration without simulating",
		Long: `Validate loads the configuration, builds the initial network and checks
the requested number of steps against the iteration cap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			initial, err := cfg.Initial()
			if err != nil {
				return err
			}
			net, err := sis.Generate(cfg.Network.Nodes, initial)
			if err != nil {
				return err
			}
			simCfg := cfg.SimConfig()
			sim, err := sis.NewSimulator(net, simCfg)
			if err != nil {
				return err
			}
			steps, err := sim.Plan(cfg.Run.TotalTime)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: %d nodes (%d infected), %d steps, cap %d (%s)\n",
				net.States.Len(), net.States.NumInfected(), steps, simCfg.MaxSteps, simCfg.CapPolicy)
			return nil
		},
	}
	addSimulationFlags(cmd)
	return cmd
}
