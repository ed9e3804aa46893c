package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/trellis/config"
	"github.com/Ramsey-B/trellis/internal/handlers"
	"github.com/Ramsey-B/trellis/pkg/configstore"
	"github.com/Ramsey-B/trellis/pkg/connectors"
	"github.com/Ramsey-B/trellis/pkg/customdata"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/expressions"
	"github.com/Ramsey-B/trellis/pkg/health"
	"github.com/Ramsey-B/trellis/pkg/httpclient"
	"github.com/Ramsey-B/trellis/pkg/installations"
	"github.com/Ramsey-B/trellis/pkg/jobs"
	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/oauth"
	appredis "github.com/Ramsey-B/trellis/pkg/redis"
	"github.com/Ramsey-B/trellis/pkg/repositories"
	"github.com/Ramsey-B/trellis/pkg/secrets"
)

// app holds the infrastructure the startup dependencies fill in, in order.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       database.DB
	redis    *appredis.Client
	producer *kafka.Producer

	echo         *echo.Echo
	server       *http.Server
	checker      *health.Checker
	serverErrors chan error
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:          cfg,
		logger:       logger,
		checker:      health.NewChecker(cfg.Version),
		serverErrors: make(chan error, 1),
	}
}

func (a *app) buildServer(ctx context.Context) error {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.checker.AddCheck("database", a.db)
	a.checker.AddCheck("redis", health.PingFunc(a.redis.Ping))
	a.checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secretStore := secrets.NewStore(secrets.Config{BaseURL: cfg.SecretStoreURL, Key: cfg.SecretStoreKey}, a.logger)
	router := configstore.NewRouter(secretStore, repositories.NewTenantConfigRepository(a.db, a.logger), a.logger)
	installer := installations.NewInstaller(repositories.NewInstallationRepository(a.db, a.logger), a.logger)
	queue := jobs.NewQueue(a.producer, a.logger)

	httpConfig := httpclient.DefaultConfig()
	httpConfig.Timeout = cfg.OutboundTimeout

	registry := connectors.Build(connectors.Settings{
		PublicURL:   cfg.PublicURL,
		Credentials: oauthCredentials(cfg),
	}, oauth.Deps{
		Store:     router,
		Installer: installer,
		Jobs:      queue,
		Cache:     a.redis,
		Locker:    appredis.NewLocker(a.redis, ""),
		States:    oauth.NewStateCodec(cfg.OAuthStateSecret),
		HTTP:      httpclient.NewClient(httpConfig, a.logger),
		Evaluator: expressions.NewEvaluator(),
		Logger:    a.logger,
	}, router)

	customData := customdata.NewService(repositories.NewCustomDataRepository(a.db, a.logger), queue, a.logger)

	connectorHandler := handlers.NewConnectorHandler(registry, installer, cfg.FrontendURL, a.logger)

	// Provider redirects carry no session, so the callback sits outside the tenant guard.
	public := e.Group("/api")
	connectorHandler.RegisterCallbackRoutes(public)

	admin := e.Group("/api")
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		admin.Use(middleware.Authentication(a.logger, verifier), middleware.RequireAdmin())
	} else {
		a.logger.Warn("Authentication disabled, trusting identity headers")
		admin.Use(middleware.HeaderIdentity())
	}
	admin.Use(middleware.RequireTenant())

	connectorHandler.RegisterRoutes(admin)
	handlers.NewConfigHandler(router).RegisterRoutes(admin)
	handlers.NewCustomDataHandler(customData).RegisterRoutes(admin)

	a.echo = e
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return nil
}

func oauthCredentials(cfg *config.Config) map[models.ConnectorType]connectors.Credentials {
	return map[models.ConnectorType]connectors.Credentials{
		models.ConnectorSlack:     {ClientID: cfg.SlackClientID, ClientSecret: cfg.SlackClientSecret},
		models.ConnectorAsana:     {ClientID: cfg.AsanaClientID, ClientSecret: cfg.AsanaClientSecret},
		models.ConnectorClickUp:   {ClientID: cfg.ClickUpClientID, ClientSecret: cfg.ClickUpClientSecret},
		models.ConnectorGitLab:    {ClientID: cfg.GitLabClientID, ClientSecret: cfg.GitLabClientSecret},
		models.ConnectorIntercom:  {ClientID: cfg.IntercomClientID, ClientSecret: cfg.IntercomClientSecret},
		models.ConnectorZendesk:   {ClientID: cfg.ZendeskClientID, ClientSecret: cfg.ZendeskClientSecret},
		models.ConnectorPipedrive: {ClientID: cfg.PipedriveClientID, ClientSecret: cfg.PipedriveClientSecret},
		models.ConnectorJira:      {ClientID: cfg.JiraClientID, ClientSecret: cfg.JiraClientSecret},
	}
}
