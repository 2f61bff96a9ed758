// finsession is the finance session backend: an HTTP BFF in front of the
// remote finance API plus a handful of maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"finsession/internal/cli"
	"finsession/internal/log"
)

const version = "0.4.0"

func main() {
	cli.LoadEnvFile()

	rootCmd := &cobra.Command{
		Use:     "finsession",
		Short:   "Finance session store and BFF server",
		Version: version,
		Long: `finsession keeps a user's finance session, caches what the UI reads and
serves a snapshot over HTTP.

Examples:
  # Run the server
  finsession serve

  # Sign in and pull fresh data
  finsession login --token "$TOKEN" --user u1
  finsession refresh --force

  # Push the current month to the configured spreadsheet
  finsession export
`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(toastsCmd())
	rootCmd.AddCommand(suggestCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration, builds the application and hands it to fn.
// The app is closed when fn returns.
func withApp(ctx context.Context, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)

	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	}()
	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
