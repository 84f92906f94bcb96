// Package server initializes and runs the submission security layer: it
// opens the database, runs migrations, wires repositories, services, the
// webhook dispatcher and the HTTP boundary, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/config"
	"github.com/formvault/formvault/internal/server/httpapi"
	"github.com/formvault/formvault/internal/server/repositories/repomanager"
	"github.com/formvault/formvault/internal/server/services"
	"github.com/formvault/formvault/internal/server/storage"
	"github.com/formvault/formvault/internal/server/webhook"
)

// App owns the wired components and their shutdown order.
type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	dispatcher *webhook.Dispatcher
	httpServer *httpapi.HTTPServer
}

// Collaborators are the external integration points the layer depends on
// but does not implement: credential verification against the user store
// and webhook subscriber lookup. Nil fields disable the matching surface.
type Collaborators struct {
	Verifier services.CredentialVerifier
	Resolver services.WebhookResolver
}

// NewApp wires the full server from config.
func NewApp(ctx context.Context, cfg *config.Config, collab Collaborators) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager()
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store := storage.NewS3Store(cfg)
	dispatcher := webhook.NewDispatcher(rm.Webhooks(db), logger, cfg)

	submissionSvc := services.NewSubmissionService(db, rm, store, dispatcher, collab.Resolver, logger)
	lockoutSvc := services.NewLockoutService(db, rm, logger, cfg)
	revocationSvc := services.NewRevocationService(db, rm, logger)
	authSvc := services.NewAuthService(collab.Verifier, lockoutSvc, revocationSvc, logger, cfg)
	limiter := services.NewRateLimitService(rm.RateLimits(db), logger, cfg)

	httpServer := httpapi.NewHTTPServer(cfg.EndpointAddr, logger, submissionSvc, authSvc, limiter)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal or context cancellation, then drains in-flight
// webhook deliveries before closing the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	err := app.httpServer.Run(ctx)

	app.logger.Info(ctx, "Waiting for webhook deliveries to finish...")
	app.dispatcher.Wait()

	if closeErr := app.db.Close(); closeErr != nil {
		app.logger.Error(ctx, "db close error", "error", closeErr)
	}
	return err
}
