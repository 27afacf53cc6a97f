package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/denismitr/lemondb"
	"github.com/denismitr/lemondb/internal/config"
	"github.com/denismitr/lemondb/snapshot"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB      string
	Verbose bool
	Typed   bool

	env config.Config
}

// NewRootCommand creates the root command of the lemondb CLI.
// Flag defaults come from the LEMONDB_* environment variables.
func NewRootCommand() *cobra.Command {
	env, envErr := config.Load()
	if envErr != nil {
		env = config.Config{Path: "lemon.ldb", LogLevel: "info"}
	}

	opts := &RootOptions{env: env}

	cmd := &cobra.Command{
		Use:   "lemondb",
		Short: "lemondb - embedded object store database",
		Long:  "Create lemondb databases and move their content in and out of JSON snapshots.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}

			_, err := config.ParseLevel(opts.env.LogLevel)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DB, "db", env.Path, "database file, or "+lemondb.InMemory)
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log transactions to stderr")
	cmd.PersistentFlags().BoolVar(&opts.Typed, "typed", env.Typed, "preserve dates, binaries and non finite numbers")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStoresCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) (*slog.Logger, error) {
	cfg := o.env
	if o.Verbose {
		cfg.LogLevel = "debug"
	}

	return cfg.Logger(cmd.ErrOrStderr())
}

// open opens the database, creating the stores of schema that are missing
func (o *RootOptions) open(cmd *cobra.Command, schema []lemondb.StoreSchema) (*lemondb.DB, lemondb.Closer, *slog.Logger, error) {
	l, err := o.logger(cmd)
	if err != nil {
		return nil, lemondb.NullCloser, nil, err
	}

	db, closer, err := lemondb.Open(o.DB, &lemondb.Config{Logger: l, Schema: schema})
	if err != nil {
		return nil, lemondb.NullCloser, nil, err
	}

	return db, closer, l, nil
}

func (o *RootOptions) snapshotter(l *slog.Logger) *snapshot.Snapshotter {
	var serializer snapshot.Serializer = snapshot.Identity{}
	if o.Typed {
		serializer = snapshot.Typed{}
	}

	return snapshot.New(snapshot.WithSerializer(serializer), snapshot.WithLogger(l))
}
