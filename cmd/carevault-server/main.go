package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carevault/carevault/internal/config"
	"github.com/carevault/carevault/internal/domain/actor"
	"github.com/carevault/carevault/internal/domain/auditlog"
	"github.com/carevault/carevault/internal/domain/document"
	"github.com/carevault/carevault/internal/domain/patient"
	"github.com/carevault/carevault/internal/domain/report"
	"github.com/carevault/carevault/internal/platform/audit"
	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/internal/platform/db"
	appmw "github.com/carevault/carevault/internal/platform/middleware"
	"github.com/carevault/carevault/internal/platform/metrics"
)

func main() {
	root := &cobra.Command{
		Use:           "carevault-server",
		Short:         "CareVault healthcare records API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			cancel()
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			metrics.Register()

			auditStore := audit.NewRepoPG(pool)
			writer := audit.NewWriter(auditStore, logger, cfg.AuditQueueSize, cfg.AuditWriteTimeout)

			actorRepo := actor.NewRepoPG(pool)
			actorSvc := actor.NewService(actorRepo, cfg.LockoutThreshold, cfg.LockoutDuration, cfg.MinPasswordLength)

			issuer := auth.NewTokenIssuer(cfg.AuthSigningSecret, cfg.TokenTTL, cfg.RefreshTokenTTL)
			authMW := auth.NewMiddleware(issuer, actorRepo, writer)

			patientSvc := patient.NewService(patient.NewRepoPG(pool))

			blobs, err := document.NewDiskBlobStore("data/blobs")
			if err != nil {
				return err
			}
			documentSvc := document.NewService(document.NewRepoPG(pool), blobs)

			reportSvc := report.NewService(report.NewRepoPG(pool), auditStore)

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true

			e.Use(appmw.Recovery(logger, writer))
			e.Use(appmw.RequestLogger(logger))
			e.Use(appmw.AuditCapture(writer, cfg.ExemptPaths()))
			e.Use(authMW.Authenticate)

			e.GET("/health", func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})
			e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

			sessions := e.Group("/auth", appmw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			auth.NewHandler(actorSvc, issuer, writer).RegisterRoutes(sessions)

			trained := auth.RequireTraining(writer)

			actors := e.Group("/actors", auth.RequireRole(writer, actor.RoleAdministrator))
			actor.NewHandler(actorSvc).RegisterRoutes(actors)

			patients := e.Group("/patients", trained, auth.RequireTier(writer, actor.TierLimited))
			patient.NewHandler(patientSvc, writer).RegisterRoutes(patients)

			documents := e.Group("/documents", trained, auth.RequireTier(writer, actor.TierLimited))
			document.NewHandler(documentSvc).RegisterRoutes(documents)

			reports := e.Group("/reports", trained, auth.RequireTier(writer, actor.TierFull))
			report.NewHandler(reportSvc).RegisterRoutes(reports)

			trail := e.Group("/audit", auth.RequireRole(writer, actor.RoleAdministrator))
			auditlog.NewHandler(auditStore).RegisterRoutes(trail)

			errCh := make(chan error, 1)
			go func() {
				errCh <- e.Start(":" + cfg.Port)
			}()
			logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}
			// Drain the audit queue after the listener stops so in-flight
			// entries reach the store.
			if err := writer.Close(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("audit writer drain failed")
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool).Up(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%4d  %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})
	return cmd
}
