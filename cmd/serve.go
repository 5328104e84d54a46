package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	echoSwagger "github.com/swaggo/echo-swagger"

	"evalgo.org/dataflowmigrator/auth"
	_ "evalgo.org/dataflowmigrator/docs"
	"evalgo.org/dataflowmigrator/internal/metrics"
	"evalgo.org/dataflowmigrator/internal/operations"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations through a REST API",
	Long: `Start an HTTP server that runs migrations on request.

Endpoints:
  - POST /v1/api/migrations: Start a migration (same inputs as migrate)
  - GET  /v1/api/migrations: List runs of a day
  - GET  /v1/api/migrations/:id: Show one run
  - GET  /v1/api/migrations/stats: Aggregate statistics
  - GET  /v1/api/audit: Recent audited API calls
  - GET  /runs: HTML overview of today's runs
  - GET  /health, /metrics, /swagger/*

Requests to /v1/api are protected by the x-api-key header when
server.api_key or server.api_key_hash is configured.`,
	Args:    cobra.NoArgs,
	PreRunE: bindConcurrency,
	RunE:    runServe,
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Print the bcrypt hash of an API key for server.api_key_hash",
	Long: `Print the bcrypt hash of an API key. Without an argument a random key
is generated and printed together with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			if key, err = auth.GenerateKey(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\n", key)
		}
		hash, err := auth.HashKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", hash)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().String("api-key", "", "API key for endpoint protection")
	serveCmd.Flags().IntP("concurrency", "c", 1, "number of dataflows processed at once per run")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.api_key", serveCmd.Flags().Lookup("api-key"))

	serveCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, metrics.New())
	if err != nil {
		return err
	}
	audit, err := auth.NewAuditLogger(cfg.Ledger.Dir)
	if err != nil {
		return err
	}

	// Runs are detached from the signal context; shutdown drains them
	// through the registry.
	s := newServer(context.Background(), a, audit, auth.NewVerifier(cfg.Server.APIKey, cfg.Server.APIKeyHash))
	e := s.routes()

	log := logrus.WithField("component", "server")
	log.WithFields(logrus.Fields{
		"port":        cfg.Server.Port,
		"fabric":      cfg.Fabric.BaseURL,
		"concurrency": cfg.Migrate.Concurrency,
		"api_key_set": s.verifier.Enabled(),
		"ledger_dir":  cfg.Ledger.Dir,
		"archive":     cfg.Archive.Kind,
	}).Info("Starting HTTP server")
	if !s.verifier.Enabled() {
		log.Warn("No API key configured, /v1/api is unprotected")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during graceful shutdown")
	}
	if err := s.registry.Drain(shutdownCtx); err != nil {
		log.WithError(err).Warn("Runs still in progress at shutdown")
	}

	log.Info("Service stopped")
	return nil
}

// server holds the state shared by the HTTP handlers
type server struct {
	app      *app
	registry *operations.Registry
	audit    *auth.AuditLogger
	verifier *auth.Verifier
	// runCtx parents every run so runs outlive their request
	runCtx context.Context
}

func newServer(runCtx context.Context, a *app, audit *auth.AuditLogger, verifier *auth.Verifier) *server {
	return &server{
		app:      a,
		registry: operations.NewRegistry(),
		audit:    audit,
		verifier: verifier,
		runCtx:   runCtx,
	}
}

// routes builds the echo instance with every endpoint
func (s *server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, apiKeyHeader},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logrus.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	api := e.Group("/v1/api", APIKeyMiddleware(s.verifier, s.audit))
	api.POST("/migrations", s.startMigrationHandler)
	api.GET("/migrations", s.listMigrationsHandler)
	api.GET("/migrations/stats", s.migrationStatsHandler)
	api.GET("/migrations/:id", s.getMigrationHandler)
	api.GET("/audit", s.auditHandler)

	e.GET("/runs", s.runsPageHandler)
	e.GET("/health", s.healthHandler)
	if s.app.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.app.metrics.Handler()))
	}
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
