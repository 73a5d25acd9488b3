package container

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"storefront/menusync/internal/client"
	"storefront/menusync/internal/config"
	"storefront/menusync/internal/domain"
	"storefront/menusync/internal/pubsub"
	"storefront/menusync/internal/queue"
	"storefront/menusync/internal/repository"
	"storefront/menusync/internal/service"
	"storefront/menusync/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config  *config.Config
	Feed    *pubsub.Feed
	Index   repository.CatalogIndex
	Applier *service.Applier
	Remote  *client.RESTClient
	API     client.MenuAPI
	Watcher *service.Watcher
	Queue   queue.Queue

	detachMirror func()
	db           *pgxpool.Pool
	redis        *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
		Feed:   pubsub.New(),
	}

	if cfg.Storage.Driver == config.StorageRedis || cfg.Feed.Mirror {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})

		// Test connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")
		container.redis = rdb
	}

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		container.db = db
		container.Index = repository.NewPostgresCatalogIndex(db)
		log.Info("✅ Connected to Postgres successfully")
	default:
		container.Index = repository.NewRedisCatalogIndex(container.redis, cfg.Storage.KeyPrefix)
	}

	if err := container.Index.Init(ctx); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize catalog index: %w", err)
	}

	if cfg.Feed.Mirror {
		redisQueue := queue.NewRedisQueue(container.redis, cfg.Feed)
		container.Queue = redisQueue
		container.detachMirror = queue.NewFeedMirror(redisQueue).Attach(container.Feed)
		log.Infof("🔁 Mirroring feed to Redis streams %s*", cfg.Feed.StreamPrefix)
	}

	container.Applier = service.NewApplier(container.Index, container.Feed,
		service.WithApplierLogger(log.WithField("component", "applier")))
	container.Remote = client.NewRESTClient(cfg.Menu, cfg.Session)
	container.API = service.NewLocalMenuAPI(container.Remote, container.Index, container.Applier, cfg.Menu.KeysOnly)

	opts := []service.WatcherOption{
		service.WithReconnectDelay(cfg.Session.ReconnectDelay),
		service.WithKeysOnly(cfg.Menu.KeysOnly),
	}
	container.Watcher = service.NewWatcher(container.API, opts...)

	return container, nil
}

// DefaultScope is the partner location named in the configuration.
func (c *Container) DefaultScope() domain.Scope {
	return domain.Scope{Partner: c.Config.Menu.Partner, Location: c.Config.Menu.Location}
}

// Watch keeps the menu of scope in sync until ctx is done. The first session
// offers the menu this container last committed for scope so an unchanged
// menu is not downloaded again. Without one a full catalog is requested.
func (c *Container) Watch(ctx context.Context, scope domain.Scope, ready session.ReadyFunc, observer session.ObserverFunc) error {
	var fingerprint string
	base := c.Applier.LastCatalog(scope)
	if base != nil {
		fingerprint = base.Fingerprint
	} else {
		log.Infof("No menu held for %s, requesting a full catalog", scope)
	}

	log.Infof("👀 Watching menu for %s", scope)
	return c.Watcher.Watch(ctx, scope, base, fingerprint, ready, observer)
}

// Run watches every scope concurrently and returns when one of them fails or
// ctx is done.
func (c *Container) Run(ctx context.Context, scopes []domain.Scope, ready session.ReadyFunc, observer session.ObserverFunc) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, scope := range scopes {
		g.Go(func() error {
			return c.Watch(ctx, scope, ready, observer)
		})
	}

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.detachMirror != nil {
		c.detachMirror()
	}
	if c.Remote != nil {
		c.Remote.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}

	log.Info("Container shut down successfully")
	return nil
}
