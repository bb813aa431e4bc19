package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"worldsim.ai/internal/persistence/archive"
	"worldsim.ai/internal/persistence/backend"
	"worldsim.ai/internal/persistence/fsstore"
	"worldsim.ai/internal/persistence/snapshot"
)

// Checkpoints exist only for the filesystem backend.
func worldDir(opts *storeOptions, id string) (string, error) {
	if opts.kind != "" && opts.kind != backend.KindFS {
		return "", fmt.Errorf("checkpoints are kept by the fs backend only")
	}
	st, err := fsstore.Open(opts.dataDir, fsstore.Options{})
	if err != nil {
		return "", err
	}
	defer st.Close()
	return st.WorldDir(id), nil
}

func checkpointsCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints <world-id>",
		Short: "List archived checkpoints of a world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := worldDir(opts, args[0])
			if err != nil {
				return err
			}
			metas, err := archive.ListCheckpoints(dir)
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EPOCH\tCREATED\tPATH")
			for _, m := range metas {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Epoch, m.CreatedAt, filepath.Join(m.Dir, m.Snapshot))
			}
			return tw.Flush()
		},
	}
}

func restoreCmd(opts *storeOptions) *cobra.Command {
	var epoch int64
	cmd := &cobra.Command{
		Use:   "restore <world-id>",
		Short: "Roll a world back to an archived checkpoint",
		Long:  "Roll a world back to an archived checkpoint. Stop the server first; a running server overwrites the world on its next flush.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := worldDir(opts, args[0])
			if err != nil {
				return err
			}
			metas, err := archive.ListCheckpoints(dir)
			if err != nil {
				return err
			}
			var pick *archive.CheckpointMeta
			for i := range metas {
				if metas[i].Epoch == epoch || (epoch == 0 && i == len(metas)-1) {
					pick = &metas[i]
				}
			}
			if pick == nil {
				return fmt.Errorf("no checkpoint at epoch %d", epoch)
			}
			_, w, err := snapshot.ReadFile(filepath.Join(pick.Dir, pick.Snapshot))
			if err != nil {
				return err
			}
			ctx := context.Background()
			st, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.WriteWorld(ctx, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s to epoch %d\n", w.ID, w.Epoch)
			return nil
		},
	}
	cmd.Flags().Int64Var(&epoch, "epoch", 0, "checkpoint epoch (default: newest)")
	return cmd
}
