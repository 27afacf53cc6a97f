package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/denismitr/lemondb/internal/storage"
	"github.com/denismitr/lemondb/snapshot"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Insert the records of a JSON document",
		Long: `Insert the records of a JSON document into the stores of the same name.

Stores the database does not have are skipped. Existing records are never
overwritten: a record whose key is taken makes the whole import fail and
nothing is written. Use - to read the document from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) (err error) {
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, "could not read stdin")
		}
	} else {
		data, err = storage.ReadFile(path)
		if err != nil {
			return err
		}
	}

	db, closer, l, err := opts.open(cmd, nil)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := opts.snapshotter(l).Import(cmd.Context(), snapshot.FromLemon(db), data); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", path)
	return nil
}
