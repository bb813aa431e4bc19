package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func tailCmd(opts *storeOptions) *cobra.Command {
	var (
		n    int
		kind string
	)
	cmd := &cobra.Command{
		Use:   "tail <world-id>",
		Short: "Print the newest narrative log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 0 {
				return fmt.Errorf("-n must be >= 0")
			}
			ctx := context.Background()
			st, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			lines, err := st.TailLog(ctx, args[0], n, kind)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), string(l))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 50, "number of lines (0 for all)")
	cmd.Flags().StringVar(&kind, "kind", "", "only lines of this kind")
	return cmd
}
