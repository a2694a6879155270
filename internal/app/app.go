// Package app assembles the EchoSphere server from configuration.
package app

import (
	"context"

	"echosphere/internal/config"
	"echosphere/internal/handler"
	"echosphere/internal/mirror"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/replication"
	"echosphere/internal/repository"
	"echosphere/internal/service"
	"echosphere/internal/ws"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// App owns the stores and the long-running parts of the server.
type App struct {
	cfg    *config.Config
	db     *gorm.DB
	rdb    *redis.Client
	tree   mirror.Tree
	hub    *ws.Hub
	relay  *replication.Relay
	server *Server
}

// Store openers, swapped in tests.
var (
	openDB    = repository.NewDB
	openRedis = repository.NewRedisClient
)

// New opens both stores and wires the server. Stores opened before a
// failure are closed again.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := openDB(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	rdb, err := openRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if cerr := closeStores(db, nil); cerr != nil {
			jww.WARN.Printf("close database: %v", cerr)
		}
		return nil, err
	}

	a, err := build(cfg, db, rdb)
	if err != nil {
		if cerr := closeStores(db, rdb); cerr != nil {
			jww.WARN.Printf("close stores: %v", cerr)
		}
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	a := &App{cfg: cfg, db: db, rdb: rdb}
	a.tree = mirror.NewRedisTree(rdb, cfg.MirrorPrefix)

	repl, err := replication.New(cfg.SyncMode, a.tree)
	if err != nil {
		return nil, err
	}

	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	tokens := auth.NewTokenManager(cfg.JWTKey, cfg.TokenTTL)

	if cfg.SyncMode == config.SyncModeOutbox {
		a.relay = NewRelay(cfg, repos.Outbox, a.tree)
	}

	var media service.MediaService
	if cfg.S3Enabled() {
		media = service.NewS3MediaService(cfg, repos.Users)
	} else {
		jww.WARN.Println("S3 is not configured; avatar and post media uploads are disabled")
	}

	realtime := service.NewRealtimeService(repos, a.tree, repository.NewPresenceRepository(rdb, cfg.MirrorPrefix))
	a.hub = ws.NewHub(a.tree)

	checks := map[string]handler.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if media != nil {
		checks["s3"] = media.HealthCheck
	}

	a.server = NewServer(cfg.Origins(), handler.NewHealthHandler(checks),
		handler.NewUserHandler(service.NewUserService(repos, uow, repl, tokens), media, tokens),
		handler.NewChatRoomHandler(
			service.NewChatRoomService(repos, uow, repl),
			service.NewMessageService(repos, uow, repl),
			realtime,
			tokens,
		),
		handler.NewFriendHandler(service.NewFriendService(repos, uow, repl), tokens),
		handler.NewRealtimeHandler(realtime, a.hub, ws.NewUpgrader(cfg.Origins()), tokens),
		handler.NewPostHandler(service.NewPostService(repos, uow), media, tokens),
	)

	return a, nil
}

// NewRelay builds the outbox relay from configuration.
func NewRelay(cfg *config.Config, outbox repository.OutboxRepository, tree mirror.Tree) *replication.Relay {
	return replication.NewRelay(outbox, tree, replication.RelayConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		Rate:         cfg.OutboxRate,
	})
}

// Run serves HTTP, the websocket hub and, in outbox mode, the relay until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Run(ctx, a.cfg.ServerPort) })
	g.Go(func() error { return a.hub.Run(ctx) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(ctx) })
	}

	jww.INFO.Printf("echosphere running (sync mode %s)", a.cfg.SyncMode)
	return g.Wait()
}

// Close stops the hub and releases both stores.
func (a *App) Close() error {
	a.hub.Shutdown()
	return closeStores(a.db, a.rdb)
}

// closeStores closes whichever stores are set and returns the first error.
func closeStores(db *gorm.DB, rdb *redis.Client) error {
	var first error
	if rdb != nil {
		first = errors.Wrap(rdb.Close(), "close redis")
	}
	if db != nil {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && first == nil {
			first = errors.Wrap(err, "close database")
		}
	}
	return first
}
