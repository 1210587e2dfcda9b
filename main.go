package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"roadwatch/api"
	"roadwatch/config"
	"roadwatch/domain"
	"roadwatch/projection"
	"roadwatch/search"
	"roadwatch/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.StorageConnectionString, cfg.EventsTable, cfg.SummariesTable, cfg.EventBusQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Provision(ctx); err != nil {
		log.Fatalf("provision storage: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisConnectionString)
	if err != nil {
		log.Fatalf("redis config: %v", err)
	}
	rc := redis.NewClient(redisOpts)

	logger := log.New()

	indexer := projection.NewSearchIndexer(rc)
	if err := indexer.EnsureIndex(ctx); err != nil {
		logger.WithError(err).Warn("search index unavailable, queries will fall back to the read model")
	}

	publisher := projection.NewPublisher(store, store, logger,
		projection.NewCacheRefresher(rc, cfg.CacheTTL),
		indexer,
		projection.NewBroadcaster(rc, cfg.UpdatesChannel),
	)

	cached := storage.NewCache(store, rc)
	service := domain.NewIncidentService(store, publisher, cached)
	searcher := search.NewService(rc, store, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	broker := api.NewUpdateBroker()
	go api.SubscribeUpdates(ctx, logger, rc, cfg.UpdatesChannel, broker)

	api.Register(e, service, service, searcher, broker, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
