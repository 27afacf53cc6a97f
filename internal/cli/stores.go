package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStoresCommand creates the stores command.
func NewStoresCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List the stores of the database with their key definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			db, closer, _, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}

			defer func() {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			for _, name := range db.StoreNames() {
				s, _ := db.Schema(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, s)
			}

			return nil
		},
	}
}
