// Command importctl runs and inspects catalog imports from the shell,
// against the same database and blob storage as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/catalog-importer/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Run and inspect spreadsheet catalog imports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newRetryCmd(), newStatusCmd(), newMigrateCmd())
	return root
}

// withApp loads config.yml, opens the app for one command and closes it
// afterwards.
func withApp(fn func(app *core.App) error) error {
	app, err := core.New()
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
