package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/haven-community/haven/internal/app"
	"github.com/haven-community/haven/internal/applications"
	"github.com/haven-community/haven/internal/audit"
	"github.com/haven-community/haven/internal/branding"
	"github.com/haven-community/haven/internal/categories"
	"github.com/haven-community/haven/internal/departments"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/garage"
	"github.com/haven-community/haven/internal/identity"
	"github.com/haven-community/haven/internal/observability"
	"github.com/haven-community/haven/internal/platform/cache"
	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/selfroles"
	"github.com/haven-community/haven/internal/shared"
	"github.com/haven-community/haven/internal/tickets"
	"github.com/haven-community/haven/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "haven_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	discordClient := discord.NewClient(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURL,
		BotToken:     cfg.DiscordBotToken,
		GuildID:      cfg.DiscordGuildID,
	})

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, discordClient)
	identityHandler := identity.NewHandler(logger, identityService, sessionManager, csrfManager, cfg.PostLoginURL)
	identityMiddleware := identity.Middleware{Service: identityService, Logger: logger}

	categoriesRepo := categories.NewRepository(dbpool)
	categoriesService := categories.NewService(categoriesRepo)
	categoriesHandler := categories.NewHandler(logger, categoriesService)

	ticketsRepo := tickets.NewRepository(dbpool)
	ticketsService := tickets.NewService(logger, ticketsRepo, categoriesService, jobClient, auditLogger)
	ticketsHandler := tickets.NewHandler(logger, ticketsService)

	applicationsRepo := applications.NewRepository(dbpool)
	applicationsService := applications.NewService(logger, applicationsRepo, auditLogger)
	applicationsHandler := applications.NewHandler(logger, applicationsService)

	departmentsRepo := departments.NewRepository(dbpool)
	departmentsService := departments.NewService(logger, departmentsRepo, jobClient)
	departmentsHandler := departments.NewHandler(logger, departmentsService)

	garageRepo := garage.NewRepository(dbpool)
	garageService := garage.NewService(logger, garageRepo, auditLogger)
	garageHandler := garage.NewHandler(logger, garageService)

	selfRolesRepo := selfroles.NewRepository(dbpool)
	selfRolesService := selfroles.NewService(logger, selfRolesRepo, jobClient)
	selfRolesHandler := selfroles.NewHandler(logger, selfRolesService)

	brandingRepo := branding.NewRepository(dbpool)
	brandingHandler := branding.NewHandler(logger, brandingRepo)

	auditRepo := audit.NewRepository(dbpool)
	auditHandler := audit.NewHandler(logger, auditRepo)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Identity:       identityMiddleware,

		IdentityHandler:     identityHandler,
		CategoriesHandler:   categoriesHandler,
		TicketsHandler:      ticketsHandler,
		ApplicationsHandler: applicationsHandler,
		DepartmentsHandler:  departmentsHandler,
		GarageHandler:       garageHandler,
		SelfRolesHandler:    selfRolesHandler,
		BrandingHandler:     brandingHandler,
		AuditHandler:        auditHandler,
		JobHandler:          jobHandler,

		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
