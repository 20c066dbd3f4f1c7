package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/migration"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/bookwise-inc/bookwise/internal/interfaces/http"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

var (
	env         string
	configPath  string
	autoMigrate bool
	noScheduler bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server and the billing scheduler",
		Long:  `Start the Bookwise billing server: webhook and admin endpoints, the validation and renewal jobs, and notification delivery.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Run database migrations on startup")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Serve HTTP only; billing jobs run elsewhere")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	rt, err := bootstrap.Open(env, configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	log := rt.Log

	log.Infow("starting server",
		"environment", env,
		"gateway", cfg.Billing.Gateway,
		"auto_migrate", autoMigrate,
		"redis", rt.Redis != nil)

	gin.SetMode(mapEnvToGinMode(env))
	gin.DefaultWriter = io.Discard

	if autoMigrate {
		if env == constants.EnvProduction {
			log.Warnw("auto-migration is enabled in production environment")
		}
		mgr := migration.NewManager(env, &cfg.Database, log)
		if err := mgr.Migrate(rt.DB, migration.AutoMigrateModels()...); err != nil {
			return err
		}
	}

	container, err := httpRouter.NewContainer(rt.DB, rt.Redis, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to wire billing engine: %w", err)
	}
	if noScheduler {
		err = container.StartDispatcher()
	} else {
		err = container.StartBackground()
	}
	if err != nil {
		return fmt.Errorf("failed to start background services: %w", err)
	}
	defer container.Shutdown()

	router := httpRouter.NewRouter(container, log)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case constants.EnvProduction, "prod", "release":
		return gin.ReleaseMode
	case constants.EnvTest, "testing":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
