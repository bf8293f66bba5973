package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/user-service/config"
	"github.com/Skryldev/user-service/db"
	"github.com/Skryldev/user-service/httpapi"
	"github.com/Skryldev/user-service/models"
	"github.com/Skryldev/user-service/repo"
	"github.com/Skryldev/user-service/service"
	"github.com/Skryldev/user-service/validation"
	"github.com/Skryldev/user-service/web"
)

func newServeCommand(app *appState) *cobra.Command {
	var (
		addr    string
		backend string
		dsn     string
		noSeed  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("backend") {
				cfg.Storage.Backend = backend
			}
			if cmd.Flags().Changed("dsn") {
				cfg.Storage.DSN = dsn
			}
			if noSeed {
				cfg.Seed = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
			}
			return serve(ctx, ln, cfg, app.logger)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Address to listen on (overrides server.addr)")
	cmd.Flags().StringVar(&backend, "backend", config.BackendSQLite, "Storage backend: memory, sqlite3, postgres, mysql or redis")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Database DSN (overrides storage.dsn)")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Do not load the fixture users into an empty store")
	return cmd
}

// serve runs the HTTP server on ln until ctx is cancelled, then shuts it down
// within the configured timeout.
func serve(ctx context.Context, ln net.Listener, cfg config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	v := validation.New()
	storeSvc := service.New(store, v, service.WithLogger(logger))
	if cfg.Seed {
		err := db.WithRetry(ctx, startupRetry(cfg.Storage), func() error {
			return storeSvc.Seed(ctx, models.SeedUsers())
		})
		if err != nil {
			_ = ln.Close()
			return err
		}
	}
	scratchSvc := service.New(repo.NewMemoryRepository(models.SeedUsers()...), v, service.WithLogger(logger))

	views, err := web.New(storeSvc, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Scratch: scratchSvc,
			Store:   storeSvc,
			Mounts:  []func(*http.ServeMux){views.Register},
			Logger:  logger,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			"addr", ln.Addr().String(), "backend", cfg.Storage.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
