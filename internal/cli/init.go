package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/denismitr/lemondb/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and the stores of a schema file",
		Long: `Create the database file and every store listed in the schema file.

Stores that already exist are kept as they are. The schema file maps store names
to compact definitions:

  stores:
    things: "id++, name"
    color_shape: "[shape+color]"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, schemaPath, cmd)
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "yaml schema file")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func runInit(opts *RootOptions, schemaPath string, cmd *cobra.Command) (err error) {
	schema, err := config.LoadSchemaFile(schemaPath)
	if err != nil {
		return err
	}

	db, closer, _, err := opts.open(cmd, schema)
	if err != nil {
		return errors.Wrap(err, "init failed")
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
}
