// cmd/api/app.go

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	feedadapter "regionalert/internal/adapter/feed"
	"regionalert/internal/adapter/lock"
	"regionalert/internal/adapter/oracle"
	"regionalert/internal/adapter/storage"
	"regionalert/internal/adapter/stream"
	"regionalert/internal/config"
	"regionalert/internal/observability"
	"regionalert/internal/server"
	"regionalert/internal/server/handlers"
	alertsvc "regionalert/internal/service/alert"
	"regionalert/internal/service/broadcast"
	feedsvc "regionalert/internal/service/feed"
	geosvc "regionalert/internal/service/geo"
	locationsvc "regionalert/internal/service/location"
	"regionalert/internal/service/privacy"
	"regionalert/internal/service/risk"
)

// app is the wired service graph
type app struct {
	server  *server.Server
	alerts  *alertsvc.Manager
	poller  *feedsvc.Poller
	closers []func()
	logger  *zap.Logger
}

// stores groups the storage backends selected by the database driver
type stores struct {
	locations locationsvc.LocationStore
	alerts    alertsvc.AlertStore
}

// buildApp wires stores, transport, locking and services from cfg. Optional
// backends are skipped when their address is empty.
func buildApp(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &app{logger: logger}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	clock := clockwork.NewRealClock()
	checks := map[string]handlers.Check{}

	st, err := a.initStores(ctx, cfg.Database, checks)
	if err != nil {
		return nil, err
	}

	bus, err := a.initBus(cfg.NATS, checks)
	if err != nil {
		return nil, err
	}

	var publisher broadcast.Publisher = bus
	if len(cfg.Kafka.Brokers) > 0 {
		audit := stream.NewKafkaAudit(stream.NewKafkaWriter(stream.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}), cfg.Kafka.WriteTimeout)
		a.closers = append(a.closers, func() { _ = audit.Close() })
		publisher = stream.NewTee(bus, audit, logger)
		logger.Info("mirroring alert events to kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	locker := a.initLocker(cfg.Redis, checks)

	var scorer risk.Oracle
	if cfg.Oracle.Enabled && cfg.Oracle.APIKey != "" {
		scorer = oracle.NewAnthropicOracle(oracle.Config{
			APIKey:    cfg.Oracle.APIKey,
			BaseURL:   cfg.Oracle.BaseURL,
			Model:     cfg.Oracle.Model,
			MaxTokens: cfg.Oracle.MaxTokens,
		}, logger)
	} else {
		logger.Warn("scoring oracle disabled, alerts use fallback risk analysis")
	}

	geoService := geosvc.NewGeoSpatialService(geosvc.DefaultConfig())
	privacyManager := privacy.NewManager(privacy.NewFuzzer(nil), privacy.Level(cfg.Privacy.DefaultLevel))

	locations := locationsvc.NewService(st.locations, geoService, privacyManager, clock, logger)
	a.alerts = alertsvc.NewManager(
		st.alerts,
		risk.NewEnricher(scorer, risk.EnricherConfig{Timeout: cfg.Oracle.Timeout}, metrics, logger),
		broadcast.NewBroadcaster(st.locations, publisher, clock, broadcast.Config{
			Concurrency: cfg.Broadcast.Concurrency,
		}, metrics, logger),
		geoService,
		locker,
		clock,
		metrics,
		logger,
	)

	if cfg.Feed.Enabled {
		source := feedadapter.NewTwitterSource(feedadapter.TwitterConfig{
			BearerToken: cfg.Feed.BearerToken,
			Host:        cfg.Feed.Host,
			MaxResults:  cfg.Feed.MaxResults,
		}, nil)
		a.poller = feedsvc.NewPoller(source, a.alerts, clock, feedsvc.PollerConfig{
			Interval:      cfg.Feed.Interval,
			AlertLifetime: cfg.Feed.AlertLifetime,
			Accounts:      cfg.Feed.Accounts,
		}, metrics, logger)
	}

	a.server = server.NewServer(cfg.Server, server.Services{
		Alerts:    a.alerts,
		Locations: locations,
		Geo:       geoService,
		Bus:       bus,
		Checks:    checks,
	}, logger)

	built = true
	return a, nil
}

func (a *app) initStores(ctx context.Context, cfg config.DatabaseConfig, checks map[string]handlers.Check) (stores, error) {
	if cfg.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return stores{
			locations: storage.NewMemoryLocationStore(),
			alerts:    storage.NewMemoryAlertStore(),
		}, nil
	}

	pool, err := initDatabase(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, pool.Close)
	checks["database"] = pool.Ping

	if cfg.MigrateOnStart {
		if err := storage.Migrate(ctx, pool, a.logger); err != nil {
			return stores{}, err
		}
	}

	return stores{
		locations: storage.NewLocationStore(pool),
		alerts:    storage.NewAlertStore(pool),
	}, nil
}

func (a *app) initBus(cfg config.NATSConfig, checks map[string]handlers.Check) (stream.Bus, error) {
	if cfg.URL == "" {
		a.logger.Warn("no NATS url configured, alerts are delivered in process only")
		return stream.NewLocalBus(), nil
	}

	nc, err := initNATS(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, nc.Close)
	checks["nats"] = func(context.Context) error {
		if !nc.IsConnected() {
			return eris.Errorf("nats: connection %s", nc.Status())
		}
		return nil
	}
	return stream.NewNATSBus(nc), nil
}

func (a *app) initLocker(cfg config.RedisConfig, checks map[string]handlers.Check) lock.Locker {
	if cfg.Addr == "" {
		return lock.NewKeyedMutex()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}

	return lock.NewRedisLocker(client, lock.RedisConfig{
		Prefix:       cfg.LockKeyspace,
		TTL:          cfg.LockTTL,
		RetryBackoff: cfg.LockRetry,
	}, a.logger)
}

// Start launches background workers.
func (a *app) Start(ctx context.Context) {
	if a.poller != nil {
		a.poller.Start(ctx)
	}
}

// Close stops background workers and releases connections in reverse order.
func (a *app) Close() {
	if a.poller != nil {
		a.poller.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initDatabase opens and pings a pgx pool
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "database: parse connection string")
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, eris.Wrap(err, "database: connect")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "database: ping")
	}

	return pool, nil
}

// initNATS connects to NATS with reconnect logging
func initNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("regionalert"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, eris.Wrap(err, "nats: connect")
	}

	return nc, nil
}
