package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"worldsim.ai/internal/persistence/snapshot"
	"worldsim.ai/internal/sim/world"
)

func exportCmd(opts *storeOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <world-id>",
		Short: "Write a world document to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			w, err := st.ReadWorld(ctx, args[0])
			if err != nil {
				return fmt.Errorf("read world %s: %w", args[0], err)
			}
			if out == "" {
				out = fmt.Sprintf("%s-%d.snap.zst", w.ID, w.Epoch)
			}
			if err := snapshot.WriteFile(out, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s epoch=%d to %s\n", w.ID, w.Epoch, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default <id>-<epoch>.snap.zst)")
	return cmd
}

func importCmd(opts *storeOptions) *cobra.Command {
	var (
		as    string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "import <snapshot-file>",
		Short: "Load a snapshot file into storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, w, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			if as != "" {
				if !world.ValidID(as) {
					return fmt.Errorf("invalid world id %q", as)
				}
				w.ID = as
			}
			ctx := context.Background()
			st, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := st.ReadWorld(ctx, w.ID); err == nil && !force {
				return fmt.Errorf("world %s already exists (use --force to overwrite)", w.ID)
			}
			if err := st.WriteWorld(ctx, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s epoch=%d (saved %s)\n", w.ID, h.Epoch, h.SavedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "store under this world id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing world")
	return cmd
}
