package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	httpapp "github.com/syedkazim110/social-oauth-service/internal/app/httpapp"
	"github.com/syedkazim110/social-oauth-service/internal/config"
	httphandler "github.com/syedkazim110/social-oauth-service/internal/http"
	"github.com/syedkazim110/social-oauth-service/internal/providers"
	"github.com/syedkazim110/social-oauth-service/internal/publish"
	"github.com/syedkazim110/social-oauth-service/internal/services/connection"
	"github.com/syedkazim110/social-oauth-service/internal/services/oauthflow"
	publishsvc "github.com/syedkazim110/social-oauth-service/internal/services/publish"
	"github.com/syedkazim110/social-oauth-service/internal/storage/postgre"
	"github.com/syedkazim110/social-oauth-service/internal/storage/redis"
	"github.com/syedkazim110/social-oauth-service/pkg/cipher"
	pgClient "github.com/syedkazim110/social-oauth-service/pkg/clients/postgre"
	redisClient "github.com/syedkazim110/social-oauth-service/pkg/clients/redis"
)

type App struct {
	HTTPServer      *httpapp.App
	DbConnection    pgClient.PostgresClient
	CacheConnection redisClient.RedisClient
}

func New(
	log *slog.Logger,
	cfg *config.Config,
) *App {

	postgreSQLClient, version, err := pgClient.NewPostgresClient(context.Background(), cfg.Postgres.ConnRetry, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Username, cfg.Postgres.Password, cfg.Postgres.Database)
	if err != nil {
		panic(err)
	}
	log.Info("postgreSQL connected", slog.String("version", version))

	redisCacheClient, version, err := redisClient.NewRedisClient(context.Background(), cfg.Redis.ConnRetry, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.Database)
	if err != nil {
		panic(err)
	}
	log.Info("redis connected", slog.String("version", version))

	tokenCipher, err := cipher.New(cfg.Tokens.EncryptionKey)
	if err != nil {
		panic(err)
	}

	dbStorage := postgre.NewStorage(log, postgreSQLClient)
	mediaStorage := redis.NewStorage(log, redisCacheClient)

	registry := providers.NewRegistry(
		providers.NewTwitter(log, cfg.Providers.Twitter),
		providers.NewFacebook(log, cfg.Providers.Facebook),
		providers.NewInstagram(log, cfg.Providers.Instagram),
	)

	connections := connection.New(log, dbStorage, tokenCipher, registry,
		time.Duration(cfg.Tokens.RefreshThresholdMinutes)*time.Minute)
	flow := oauthflow.New(log, dbStorage, connections, registry)

	publisher := publishsvc.New(log, connections, mediaStorage,
		cfg.HTTP.BaseURL,
		cfg.Publish.MaxRetries,
		time.Duration(cfg.Publish.BackoffSeconds)*time.Second,
		publish.NewTwitter(log, cfg.Providers.Twitter.ConsumerKey, cfg.Providers.Twitter.ConsumerSecret),
		publish.NewFacebook(log),
		publish.NewInstagram(log),
	)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := httphandler.NewHandler(log, flow, connections, publisher, mediaStorage)
	handler.Register(engine)

	httpApp := httpapp.New(log, cfg.HTTP.Port, cfg.HTTP.Timeout, engine)

	return &App{
		HTTPServer:      httpApp,
		DbConnection:    postgreSQLClient,
		CacheConnection: redisCacheClient,
	}
}
