package app

import (
	"context"
	"fmt"
	"net/http"

	"postflow/internal/config"
	"postflow/internal/database"
	"postflow/internal/metrics"
	"postflow/internal/platform"
	"postflow/internal/repository"
	"postflow/internal/service"
	"postflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired pipeline shared by the server and the one-shot
// publisher binaries.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Etcd       *clientv3.Client
	Jobs       *repository.JobRepository
	Scheduler  *service.SchedulerService
	Executor   *service.Executor
	Reconciler *service.Reconciler
	Codec      *service.TokenCodec

	etcdSecrets *repository.GlobalSecretRepository
}

func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if cfg.Etcd.Enabled {
		cli, err := initEtcd(cfg.Etcd)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Etcd = cli
	}
	a.Redis = initRedis(cfg.Redis)

	jobs := repository.NewJobRepository(db)
	secrets := repository.NewSecretRepository(db)
	memberships := repository.NewMembershipRepository(db)
	a.Jobs = jobs

	var global service.GlobalSecretSource = secrets
	switch cfg.Secrets.GlobalSource {
	case "", "sql":
	case "etcd":
		if a.Etcd == nil {
			a.Close()
			return nil, fmt.Errorf("secrets.global_source is etcd but etcd is disabled")
		}
		a.etcdSecrets = repository.NewGlobalSecretRepository(a.Etcd, cfg.Secrets.EtcdPrefix)
		global = a.etcdSecrets
	default:
		a.Close()
		return nil, fmt.Errorf("unknown secrets.global_source %q", cfg.Secrets.GlobalSource)
	}

	observer := metrics.NewPrometheusObserver()
	resolver := service.NewSecretResolver(secrets, global, cfg.Publisher.StoreTimeout)
	registry := platform.NewDefaultRegistry(cfg.Platforms, &http.Client{})

	a.Executor = service.NewExecutor(jobs, resolver, registry, observer, service.ExecutorConfig{
		BatchSize:           cfg.Publisher.BatchSize,
		JobConcurrency:      cfg.Publisher.JobConcurrency,
		PlatformConcurrency: cfg.Publisher.PlatformConcurrency,
		PublishTimeout:      cfg.Publisher.PublishTimeout,
		StoreTimeout:        cfg.Publisher.StoreTimeout,
		Heartbeat:           cfg.Reconciler.StaleAfter / 3,
	})

	var locker service.PassLocker = &service.LocalLocker{}
	if a.Etcd != nil {
		locker = service.NewEtcdLocker(a.Etcd, cfg.Reconciler.LockKey)
	}
	a.Reconciler = service.NewReconciler(jobs, a.Executor, locker, observer, service.ReconcilerConfig{
		Interval:   cfg.Reconciler.Interval,
		StaleAfter: cfg.Reconciler.StaleAfter,
		BatchSize:  cfg.Reconciler.BatchSize,
	})

	a.Scheduler = service.NewSchedulerService(jobs, service.NewAuthorizationGuard(memberships), secrets, cfg.Publisher.MaxAttempts)
	a.Codec = service.NewTokenCodec(cfg.Auth.SigningKey)

	logger.Info("pipeline wired",
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("etcd", a.Etcd != nil),
		zap.Bool("redis", a.Redis != nil),
		zap.String("global_secrets", cfg.Secrets.GlobalSource),
		zap.Strings("platforms", registry.Keys()),
	)
	return a, nil
}

// PingContext checks the stores a publication pass depends on.
func (a *App) PingContext(ctx context.Context) error {
	if err := a.Jobs.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.etcdSecrets != nil {
		if err := a.etcdSecrets.Health(ctx); err != nil {
			return fmt.Errorf("etcd: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Etcd != nil {
		a.Etcd.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// -- Infrastructure Initializers --

// initRedis returns nil when no address is configured. An unreachable
// server is tolerated; the rate limiter falls back to memory.
func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, rate limiting will fall back to memory", zap.Error(err))
	}
	return rdb
}

func initEtcd(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      logger.L().Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}
