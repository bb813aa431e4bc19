package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"worldsim.ai/internal/sim/fate"
	"worldsim.ai/internal/sim/multiworld"
	"worldsim.ai/internal/sim/tuning"
)

func validateCmd() *cobra.Command {
	var simPath, worldsPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check sim.yaml and worlds.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tun, err := tuning.Load(simPath)
			if err != nil {
				return err
			}
			if _, err := fate.NewEngine(tun.Seed, fate.FromTuning(tun)...); err != nil {
				return fmt.Errorf("sim.yaml: %w", err)
			}
			cfg, err := multiworld.Load(worldsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rules, %d worlds (default %s)\n", len(tun.Rules), len(cfg.Worlds), cfg.DefaultWorldID)
			return nil
		},
	}
	cmd.Flags().StringVar(&simPath, "sim", "./configs/sim.yaml", "sim.yaml path")
	cmd.Flags().StringVar(&worldsPath, "worlds", "./configs/worlds.yaml", "worlds.yaml path")
	return cmd
}
