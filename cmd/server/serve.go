package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/rpattn/restfilter/internal/config"
	"github.com/rpattn/restfilter/internal/crypt"
	"github.com/rpattn/restfilter/internal/db"
	"github.com/rpattn/restfilter/internal/httpapi"
	"github.com/rpattn/restfilter/internal/logger"
	"github.com/rpattn/restfilter/internal/middleware"
	"github.com/rpattn/restfilter/internal/schema"
	"github.com/rpattn/restfilter/internal/service"
	"github.com/rpattn/restfilter/internal/store"
	"github.com/rpattn/restfilter/internal/store/memory"
	"github.com/rpattn/restfilter/internal/store/postgres"
)

var migrateOnStart bool

// serveCmd starts the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var conn *db.Connection
		if cfg.Driver == config.DriverPostgres {
			if migrateOnStart {
				if err := db.RunMigrations(cfg.Database, cfg.MigrationsPath, db.MigrateUp, 0); err != nil {
					return err
				}
			}
			var err error
			conn, err = db.NewConnection(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
		}

		registry, err := buildRegistry(ctx, cfg, conn)
		if err != nil {
			return err
		}
		st, err := buildStore(cfg, conn, registry)
		if err != nil {
			return err
		}

		svc := service.New(registry, st)
		logger.Infof("serving entities %v with the %s driver", svc.Entities(), cfg.Driver)

		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
		})

		handler := middleware.RequestIDMiddleware(*logger.Logger())(
			middleware.LoggingMiddleware(httpapi.NewHTTPHandler(svc)),
		)

		mux := http.NewServeMux()
		mux.Handle("/api/", corsHandler.Handler(handler))

		server := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("starting REST server on %s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("failed to start server: %w", err)
			}
			close(errCh)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-quit:
		}
		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
}

// buildRegistry registers the configured entities. With introspection
// enabled, entities declared without columns read them from the database.
func buildRegistry(ctx context.Context, cfg config.Config, conn *db.Connection) (*schema.Registry, error) {
	registry := schema.NewRegistry()
	for _, entity := range cfg.Entities {
		if cfg.Introspect && conn != nil {
			completed, err := schema.Complete(ctx, conn.Pool, entity)
			if err != nil {
				return nil, err
			}
			entity = completed
		}
		if err := registry.Register(entity); err != nil {
			return nil, err
		}
	}
	if err := registry.Verify(); err != nil {
		return nil, err
	}
	return registry, nil
}

func buildStore(cfg config.Config, conn *db.Connection, registry *schema.Registry) (store.Store, error) {
	if cfg.Driver == config.DriverPostgres {
		return postgres.New(conn.Pool, registry, cfg.Encryption.Key), nil
	}
	cipher, err := crypt.New(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}
	return memory.New(registry, cipher), nil
}
