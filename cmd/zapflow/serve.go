package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/zapflowai/zapflow/internal/agents"
	"github.com/zapflowai/zapflow/internal/commands"
	"github.com/zapflowai/zapflow/internal/config"
	"github.com/zapflowai/zapflow/internal/contacts"
	"github.com/zapflowai/zapflow/internal/conversation"
	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/flow"
	"github.com/zapflowai/zapflow/internal/handlers"
	"github.com/zapflowai/zapflow/internal/idempotency"
	"github.com/zapflowai/zapflow/internal/llm"
	"github.com/zapflowai/zapflow/internal/logger"
	"github.com/zapflowai/zapflow/internal/media"
	"github.com/zapflowai/zapflow/internal/mediacache"
	"github.com/zapflowai/zapflow/internal/notify"
	"github.com/zapflowai/zapflow/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDBQueries,
			provideRedisClient,
			provideGuard,
			provideLLMClient,
			provideMediaCache,
			provideAnalyzer,
			provideSigner,
			provideDownloader,
			agents.NewService,
			crm.NewService,
			contacts.NewService,
			conversation.NewStore,
			provideMediaService,
			notify.NewService,
			commands.NewExecutor,
			provideResolver,
			handlers.NewPingHandler,
			provideMessagesHandler,
			handlers.NewMediaHandler,
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideDBQueries(pool *pgxpool.Pool) *db.Queries {
	return db.New(pool)
}

// provideRedisClient returns nil when no address is configured; the guard and
// the media cache both degrade gracefully without it.
func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideGuard(log *slog.Logger, client *redis.Client) *idempotency.Guard {
	var guardClient idempotency.Client
	if client != nil {
		guardClient = client
	}
	return idempotency.NewGuard(log, guardClient)
}

func provideLLMClient(log *slog.Logger, cfg config.Config) *llm.Client {
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	return llm.NewClient(log, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, timeout)
}

func provideMediaCache(log *slog.Logger, client *redis.Client) *mediacache.Cache {
	var cacheClient mediacache.Client
	if client != nil {
		cacheClient = client
	}
	return mediacache.New(cacheClient, log)
}

func provideAnalyzer(cache *mediacache.Cache, client *llm.Client, log *slog.Logger) *mediacache.Analyzer {
	return mediacache.NewAnalyzer(cache, client, log)
}

func provideSigner(cfg config.Config) *media.Signer {
	ttl := time.Duration(cfg.Media.URLTTLSeconds) * time.Second
	return media.NewSigner(cfg.Media.SigningSecret, cfg.Media.PublicBaseURL, ttl)
}

func provideDownloader(cfg config.Config) *media.Downloader {
	return media.NewDownloader(cfg.LLM.MaxMediaBytes)
}

func provideMediaService(queries *db.Queries, signer *media.Signer, log *slog.Logger) *media.Service {
	return media.NewService(queries, signer, log)
}

func provideResolver(
	guard *idempotency.Guard,
	agentsSvc *agents.Service,
	crmSvc *crm.Service,
	contactsSvc *contacts.Service,
	states *conversation.Store,
	executor *commands.Executor,
	mediaSvc *media.Service,
	cache *mediacache.Cache,
	analyzer *mediacache.Analyzer,
	downloader *media.Downloader,
	model *llm.Client,
	queries *db.Queries,
	log *slog.Logger,
) *flow.Resolver {
	return flow.NewResolver(guard, agentsSvc, crmSvc, contactsSvc, states, executor,
		mediaSvc, cache, analyzer, downloader, model, queries, log)
}

func provideMessagesHandler(resolver *flow.Resolver, log *slog.Logger) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(resolver, log)
}

func provideServer(cfg config.Config, log *slog.Logger,
	ping *handlers.PingHandler,
	messages *handlers.MessagesHandler,
	mediaHandler *handlers.MediaHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, log, ping, messages, mediaHandler)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
