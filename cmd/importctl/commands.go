package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/catalog-importer/internal/core"
	"github.com/vrsandeep/catalog-importer/internal/db"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/migrations"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid import id %q", arg)
	}
	return id, nil
}

func newRunCmd() *cobra.Command {
	var next bool

	cmd := &cobra.Command{
		Use:   "run [import-id]",
		Short: "Run a pending import in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if next == (len(args) == 1) {
				return errors.New("pass either an import id or --next")
			}
			return withApp(func(app *core.App) error {
				ctx := cmd.Context()
				if next {
					ran, err := app.NewPool().RunOnce(ctx)
					if err != nil {
						return err
					}
					if !ran {
						fmt.Fprintln(cmd.OutOrStdout(), "No import is due.")
					}
					return nil
				}

				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				runErr := app.Orchestrator().Run(ctx, id)
				job, err := app.Store().GetImport(ctx, id)
				if err != nil {
					return errors.Join(runErr, err)
				}
				printJobs(cmd.OutOrStdout(), job)
				return runErr
			})
		},
	}
	cmd.Flags().BoolVar(&next, "next", false, "Claim and run the oldest due import")
	return cmd
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <import-id>",
		Short: "Requeue a failed import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(app *core.App) error {
				job, err := app.Submitter().Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				printJobs(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	var collectionID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "status [import-id]",
		Short: "Show one import or the most recent ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *core.App) error {
				ctx := cmd.Context()
				if len(args) == 1 {
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					job, err := app.Store().GetImport(ctx, id)
					if err != nil {
						return err
					}
					printJobs(cmd.OutOrStdout(), job)
					return nil
				}

				var filter *int64
				if collectionID > 0 {
					filter = &collectionID
				}
				list, err := app.Store().ListImports(ctx, filter, limit)
				if err != nil {
					return err
				}
				printJobs(cmd.OutOrStdout(), list...)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&collectionID, "collection", 0, "Only imports into this collection")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of imports to list")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// core.New applies pending migrations while opening the database.
			return withApp(func(app *core.App) error {
				version, dirty, err := db.MigrationVersion(app.DB(), migrations.FS)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	}
}

func printJobs(out io.Writer, list ...*models.ImportJob) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tUPDATED\tPROGRESS")
	for _, job := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			job.ID, job.Kind, job.Status.Label(), job.UpdatedAt.Local().Format("2006-01-02 15:04:05"), job.Progress)
	}
	w.Flush()
}
