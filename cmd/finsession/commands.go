package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finsession/internal/auth"
	"finsession/internal/cli"
	"finsession/internal/core"
	"finsession/internal/export"
	apphttp "finsession/internal/http"
	"finsession/internal/log"
	"finsession/internal/notify"
	"finsession/internal/worker"
)

const shutdownTimeout = 30 * time.Second

var errNotSignedIn = errors.New("not signed in: run 'finsession login' first")

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(context.Background(), runServe)
		},
	}
}

func runServe(ctx context.Context, app *cli.App) error {
	logger := app.Logger
	app.StartJanitor()

	srv := apphttp.NewServer(":"+app.Config.Port, apphttp.Deps{
		Provider:           app.Provider,
		Auth:               app.Auth,
		Toasts:             app.Toasts,
		Metrics:            app.Metrics,
		Logger:             logger,
		Ready:              app.Ready,
		RateLimitPerMinute: app.Config.RateLimitPerMinute,
		RefreshTimeout:     app.Config.RefreshTimeout,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go func() {
		app.Provider.Bootstrap(shutdownCtx)
		worker.NewRefreshWorker(app.Provider, worker.Config{
			DataInterval:     app.Config.RefreshInterval,
			CategoryInterval: app.Config.CategoryRefreshInterval,
			Logger:           logger,
		}).Run(shutdownCtx)
	}()

	logger.Info("Starting finsession server",
		"port", app.Config.Port,
		"backend", app.Config.StorageBackend,
		"api", app.Config.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", app.Config.Port)
		return err
	}

	<-done
	logger.Info("Server stopped gracefully")
	return nil
}

func refreshCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the finance snapshot and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				if app.Provider.Restore(ctx) == nil {
					return errNotSignedIn
				}
				app.Provider.RefreshData(ctx, force)
				snap := app.Provider.Snapshot()
				if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
					return err
				}
				if snap.Error != "" {
					return errors.New(snap.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Bypass cached summary and categories")
	return cmd
}

func categoriesCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Refresh categories (with retry) and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				if app.Provider.Restore(ctx) == nil {
					return errNotSignedIn
				}
				if clear {
					app.Provider.ClearCategoriesCache(ctx)
				}
				app.Provider.RefreshCategories(ctx)
				return printJSON(cmd.OutOrStdout(), app.Provider.Snapshot().Categories)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Drop the cached categories first")
	return cmd
}

func loginCmd() *cobra.Command {
	var (
		token string
		user  core.User
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a session token and profile, then load data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token = strings.TrimSpace(token)
			if token == "" || user.ID == "" {
				return errors.New("--token and --user are required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				if err := app.Auth.SetToken(ctx, token); err != nil {
					return err
				}
				if err := app.Provider.UpdateUserData(ctx, &user); err != nil {
					return err
				}
				if exp, ok := auth.TokenExpiry(token); ok {
					app.Logger.Info("Token expiry taken from JWT", "expires_at", exp)
				}
				return printJSON(cmd.OutOrStdout(), app.Provider.Session(ctx))
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Bearer token issued by the finance API")
	cmd.Flags().StringVar(&user.ID, "user", "", "User id")
	cmd.Flags().StringVar(&user.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&user.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&user.Currency, "currency", "", "Preferred currency code")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session and cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				return app.Provider.UpdateUserData(ctx, nil)
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write this month's transactions and the accounts to Google Sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				cfg := app.Config
				if cfg.GoogleSpreadsheetID == "" {
					return errors.New("GOOGLE_SPREADSHEET_ID is not set")
				}
				if app.Provider.Restore(ctx) == nil {
					return errNotSignedIn
				}
				app.Provider.RefreshData(ctx, force)
				snap := app.Provider.Snapshot()
				if snap.Error != "" {
					return fmt.Errorf("refresh before export: %s", snap.Error)
				}

				exporter, err := export.NewSheetsExporter(ctx, export.Config{
					SpreadsheetID:      cfg.GoogleSpreadsheetID,
					SheetName:          cfg.GoogleSheetName,
					ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
					ServiceAccountFile: cfg.GoogleServiceAccountFile,
				}, app.Logger)
				if err != nil {
					return err
				}
				res, err := exporter.Export(ctx, export.Data{
					Accounts:     snap.Accounts,
					Transactions: snap.Transactions,
					Categories:   snap.Categories,
					At:           time.Now(),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Bypass cached summary and categories before exporting")
	return cmd
}

func toastsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toasts",
		Short: "Print toasts published to the AMQP queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(context.Background(), func(_ context.Context, app *cli.App) error {
				if app.AMQP == nil {
					return errors.New("AMQP_URL is not set")
				}
				ctx, done := cli.GracefulShutdown(app.Logger, shutdownTimeout, nil)
				err := app.AMQP.Consume(ctx, func(t notify.Toast) error {
					return printJSON(cmd.OutOrStdout(), t)
				})
				if ctx.Err() != nil {
					<-done
					return nil
				}
				return err
			})
		},
	}
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <description>",
		Short: "Ask the finance API to suggest a category for a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				if app.Provider.Restore(ctx) == nil {
					return errNotSignedIn
				}
				s, err := app.API.SuggestCategory(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}
