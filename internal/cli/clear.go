package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/denismitr/lemondb/snapshot"
)

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every record of every store, keeping the stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, closer, l, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}

			defer func() {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			if err := rootOpts.snapshotter(l).Clear(cmd.Context(), snapshot.FromLemon(db)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d stores\n", len(db.StoreNames()))
			return nil
		},
	}
}
