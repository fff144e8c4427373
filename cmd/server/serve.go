package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/config"
	"github.com/iliyamo/taskflow/internal/database"
	"github.com/iliyamo/taskflow/internal/handler"
	"github.com/iliyamo/taskflow/internal/integrations"
	"github.com/iliyamo/taskflow/internal/logger"
	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
	"github.com/iliyamo/taskflow/internal/router"
	"github.com/iliyamo/taskflow/internal/service"
	"github.com/iliyamo/taskflow/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime gateway",
	RunE: func(*cobra.Command, []string) error {
		app := fx.New(
			fx.Provide(loadConfig, newLogger),
			fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: log.Named("fx")}
			}),
			infraModule,
			repositoryModule,
			serviceModule,
			httpModule,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var infraModule = fx.Module("infra",
	fx.Provide(newDB, newRedis, newHub, newBroadcaster, newInvalidator, newRoleSyncer, newEffects),
)

var repositoryModule = fx.Module("repository",
	fx.Provide(
		repository.NewUserRepo,
		repository.NewTaskRepo,
		repository.NewProjectRepo,
		repository.NewTeamRepo,
		repository.NewNotificationRepo,
		repository.NewCommentRepo,
		repository.NewMeetingRepo,
		repository.NewTimeEntryRepo,
		repository.NewConnectionRepo,
	),
)

var serviceModule = fx.Module("service",
	fx.Provide(
		service.NewNotificationService,
		service.NewTaskService,
		service.NewProjectService,
		service.NewTeamService,
		service.NewCommentService,
		service.NewMeetingService,
		service.NewTimeService,
		service.NewUserService,
		newRegistry,
		newConnections,
		newWebhook,
	),
)

var httpModule = fx.Module("http",
	fx.Provide(
		handler.NewTaskHandler,
		handler.NewProjectHandler,
		handler.NewTeamHandler,
		handler.NewNotificationHandler,
		handler.NewTimeHandler,
		handler.NewUserHandler,
		newAppHandler,
		newConnectionHandler,
		newRealtimeHandler,
		newEcho,
	),
	fx.Invoke(func(*echo.Echo) {}),
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(cfg.LogLevel)
}

func newDB(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return database.Migrate(ctx, db, cfg.DBDriver) },
		OnStop:  func(context.Context) error { return db.Close() },
	})
	return db, nil
}

// newRedis returns nil when Redis is unreachable; cache and rate limiting
// are then disabled.
func newRedis(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	rdb := config.NewRedisClient(cfg.Redis, log)
	if rdb != nil {
		lc.Append(fx.StopHook(rdb.Close))
	}
	return rdb
}

func newHub(lc fx.Lifecycle, log *zap.Logger) *realtime.Hub {
	hub := realtime.NewHub(log.Named("realtime"), realtime.DefaultBuffer)
	lc.Append(fx.StopHook(hub.Close))
	return hub
}

// newBroadcaster publishes through RabbitMQ when it is configured, with a
// relay feeding the local hub from the exchange so every instance reaches
// its own sessions.  Without a broker the hub is the broadcaster.
func newBroadcaster(lc fx.Lifecycle, cfg config.Config, hub *realtime.Hub, log *zap.Logger) realtime.Broadcaster {
	if cfg.RabbitMQURL == "" {
		log.Info("realtime: in-process delivery")
		return hub
	}
	log = log.Named("realtime")
	pub := realtime.NewAMQPBroadcaster(cfg.RabbitMQURL, cfg.RealtimeExchange, log)
	relay := realtime.NewRelay(cfg.RabbitMQURL, cfg.RealtimeExchange, hub, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("realtime relay stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return pub.Close()
		},
	})
	return pub
}

func newInvalidator(cfg config.Config, rdb *redis.Client) service.Invalidator {
	return middleware.NewRedisInvalidator(cfg.Cache, rdb)
}

// newRoleSyncer pushes roles to the auth provider when a secret key is
// configured.  The nil interface keeps services from calling a nil client.
func newRoleSyncer(cfg config.Config, log *zap.Logger) service.RoleSyncer {
	c := webhook.NewClerkClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey)
	if c == nil {
		log.Info("auth provider role sync disabled")
		return nil
	}
	return c
}

func newEffects(bus realtime.Broadcaster, cache service.Invalidator, log *zap.Logger) service.Effects {
	return service.Effects{Bus: bus, Cache: cache, Log: log.Named("service")}
}

func newRegistry(cfg config.Config) *integrations.Registry {
	return integrations.NewRegistry(cfg.OAuth)
}

func newConnections(cfg config.Config, providers *integrations.Registry, conns *repository.ConnectionRepo,
	cache service.Invalidator, log *zap.Logger) (*integrations.Connections, error) {
	sealer, err := integrations.NewSealer(cfg.ConnectionsSecret, cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return integrations.NewConnections(providers, conns, sealer, cache, cfg.JWTSecret, cfg.AppURL, log.Named("connections")), nil
}

func newWebhook(cfg config.Config, users *service.UserService, log *zap.Logger) *webhook.Handler {
	log = log.Named("webhook")
	var v *webhook.Verifier
	if cfg.ClerkWebhookSecret == "" {
		log.Warn("CLERK_WEBHOOK_SECRET not set, webhook deliveries will be refused")
	} else {
		var err error
		if v, err = webhook.NewVerifier(cfg.ClerkWebhookSecret); err != nil {
			log.Error("invalid webhook secret, deliveries will be refused", zap.Error(err))
		}
	}
	return webhook.NewHandler(v, users, log)
}

func newAppHandler(cfg config.Config, providers *integrations.Registry) *handler.AppHandler {
	return &handler.AppHandler{UploadPublicKey: cfg.UploadPublicKey, Providers: providers}
}

func newConnectionHandler(cfg config.Config, conns *integrations.Connections, log *zap.Logger) *handler.ConnectionHandler {
	return handler.NewConnectionHandler(conns, cfg.IsProduction(), log)
}

// newRealtimeHandler closes open websocket sessions on shutdown; the HTTP
// server does not track hijacked connections.
func newRealtimeHandler(lc fx.Lifecycle, hub *realtime.Hub, log *zap.Logger) *handler.RealtimeHandler {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StopHook(cancel))
	return handler.NewRealtimeHandler(hub, ctx, log.Named("realtime"))
}

type handlers struct {
	fx.In

	Tasks         *handler.TaskHandler
	Projects      *handler.ProjectHandler
	Teams         *handler.TeamHandler
	Notifications *handler.NotificationHandler
	Time          *handler.TimeHandler
	Users         *handler.UserHandler
	App           *handler.AppHandler
	Connections   *handler.ConnectionHandler
	Realtime      *handler.RealtimeHandler
	Webhook       *webhook.Handler
	People        *service.UserService
}

func newEcho(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, rdb *redis.Client, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.RequestLogger(log.Named("http")))

	router.Register(e, router.Handlers{
		Tasks:         h.Tasks,
		Projects:      h.Projects,
		Teams:         h.Teams,
		Notifications: h.Notifications,
		Time:          h.Time,
		Users:         h.Users,
		App:           h.App,
		Connections:   h.Connections,
		Realtime:      h.Realtime,
		Webhook:       h.Webhook,
	}, router.Auth{
		JWT:       middleware.JWTAuth(cfg.JWTSecret),
		Caller:    middleware.LoadCaller(h.People, log),
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log.Named("ratelimit")),
		Cache:     middleware.NewRedisCache(cfg.Cache, rdb, log.Named("cache")),
	})

	addr := ":" + cfg.Port
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return e.Shutdown(ctx)
		},
	})
	return e
}
