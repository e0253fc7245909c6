package root

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/datasync/internal/app"
	"github.com/jgivc/datasync/internal/service/syncer"
	"github.com/spf13/cobra"
)

type options struct {
	cfgPath   string
	errors    bool
	overrides app.Overrides
}

// NewRootCmd creates the datasync command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "datasync",
		Short: "Download new and modified datasets listed in the catalog and drop stale ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := syncer.ModeNormal
			if opts.errors {
				mode = syncer.ModeRetryErrors
			}

			a := app.New(opts.cfgPath, opts.overrides)
			_, err := a.Run(ctx, mode)

			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.Flags()
	f.StringVarP(&opts.cfgPath, "config", "c", "", "Path to config file (.yml)")
	f.BoolVarP(&opts.errors, "errors", "e", false, "Retry only datasets whose last download failed")
	f.IntVarP(&opts.overrides.Workers, "workers", "w", 0, "Number of parallel download workers")
	f.StringVarP(&opts.overrides.DataDir, "data-dir", "d", "", "Directory the datasets are stored in")
	f.StringVar(&opts.overrides.CatalogURL, "catalog", "", "Catalog url (redis:// or postgres://)")

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)

	return cmd.ExecuteContext(context.Background())
}
