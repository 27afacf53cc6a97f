package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/denismitr/lemondb/internal/storage"
	"github.com/denismitr/lemondb/snapshot"
)

type exportOptions struct {
	output string
	pretty bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record of every store as one JSON document",
		Long: `Write every record of every store as one JSON document.

The document maps each store name to the array of its records in key order.
It is written to stdout unless --output is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", rootOpts.env.Pretty, "indent the document")

	return cmd
}

func runExport(rootOpts *RootOptions, opts *exportOptions, cmd *cobra.Command) (err error) {
	db, closer, l, err := rootOpts.open(cmd, nil)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	doc, err := rootOpts.snapshotter(l).Export(cmd.Context(), snapshot.FromLemon(db))
	if err != nil {
		return err
	}

	if opts.pretty {
		doc = pretty.Pretty(doc)
	} else {
		doc = append(doc, '\n')
	}

	if opts.output == "" {
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	}

	if err := storage.WriteAtomic(opts.output, opts.output+".tmp", doc, true); err != nil {
		return errors.Wrap(err, "could not write export")
	}

	return nil
}
