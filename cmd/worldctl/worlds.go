package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func worldsCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "List persisted worlds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			ids, err := st.ListWorlds(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No worlds found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEPOCH\tCHARACTERS\tEVENTS")
			for _, id := range ids {
				w, err := st.ReadWorld(ctx, id)
				if err != nil {
					fmt.Fprintf(tw, "%s\t?\t?\t?\t%v\n", id, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", w.ID, w.Name, w.Epoch, len(w.Characters), len(w.Events))
			}
			return tw.Flush()
		},
	}
}

func showCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <world-id>",
		Short: "Print a world document as JSON",
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
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(w)
		},
	}
}
