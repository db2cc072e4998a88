package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Guyuepp/go-feed-engine/domain"
	"github.com/Guyuepp/go-feed-engine/internal/config"
	"github.com/Guyuepp/go-feed-engine/internal/consumer/rabbitmq"
	"github.com/Guyuepp/go-feed-engine/internal/observability"
	"github.com/Guyuepp/go-feed-engine/internal/repository"
	badgerRepo "github.com/Guyuepp/go-feed-engine/internal/repository/badger"
	mysqlRepo "github.com/Guyuepp/go-feed-engine/internal/repository/mysql"
	"github.com/Guyuepp/go-feed-engine/internal/repository/mysql/model"
	myRedisCache "github.com/Guyuepp/go-feed-engine/internal/repository/redis"
	"github.com/Guyuepp/go-feed-engine/internal/rest"
	"github.com/Guyuepp/go-feed-engine/internal/rest/middleware"
	"github.com/Guyuepp/go-feed-engine/internal/usecase/affinity"
	"github.com/Guyuepp/go-feed-engine/internal/usecase/engagement"
	"github.com/Guyuepp/go-feed-engine/internal/usecase/feed"
	"github.com/Guyuepp/go-feed-engine/internal/usecase/ranking"
	"github.com/Guyuepp/go-feed-engine/internal/workers"
)

const (
	serviceName        = "go-feed-engine"
	dbRetryIntervalSec = 2
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	observability.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  serviceName,
		Environment:  cfg.Env,
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplerRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		logrus.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logrus.Warnf("failed to flush traces: %v", err)
		}
	}()

	// prepare database
	db := openDatabase(cfg)
	defer func() {
		sqlDB, err := db.DB()
		if err != nil {
			logrus.Errorf("got error when getting sql.DB from gorm.DB: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			logrus.Errorf("got error when closing the DB connection: %v", err)
		}
	}()

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(model.All()...); err != nil {
			logrus.Fatalf("failed to migrate schema: %v", err)
		}
	}

	// prepare cache
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.CachePass,
		DB:       cfg.CacheDB,
	})
	client.AddHook(observability.RedisMetricsHook{})
	defer func() {
		if err := client.Close(); err != nil {
			logrus.Errorf("got error when closing the cache connection: %v", err)
		}
	}()

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to open connection to cache: %v", err)
	}

	// Prepare Repository
	postRepo := mysqlRepo.NewPostRepository(db)
	userRepo := mysqlRepo.NewUserRepository(db)
	relationRepo := mysqlRepo.NewRelationRepository(db)

	likeCache := myRedisCache.NewLikeCache(client, cfg.LikeStateTTL)
	bloomRepo := myRedisCache.NewRedisBloomRepo(client, cfg.BloomBitSize)
	interactionStore := myRedisCache.NewInteractionCache(client, myRedisCache.InteractionCacheConfig{
		RecentCap:   cfg.RecentInteractionsCap,
		AffinityTTL: cfg.AffinityTTL,
		ProfileTTL:  cfg.ProfileTTL,
	})

	// Feed cache hierarchy
	// 1. fast tier
	fastFeeds := myRedisCache.NewFeedCache(client)
	// 2. persistent tier
	var persistentFeeds domain.FeedStore
	switch cfg.PersistentCacheDriver {
	case config.PersistentDriverBadger:
		bdb, err := badgerdb.Open(badgerdb.DefaultOptions(cfg.BadgerPath).WithLogger(nil))
		if err != nil {
			logrus.Fatalf("failed to open badger at %s: %v", cfg.BadgerPath, err)
		}
		defer func() {
			if err := bdb.Close(); err != nil {
				logrus.Errorf("got error when closing badger: %v", err)
			}
		}()
		persistentFeeds = badgerRepo.NewFeedStore(bdb)
	default:
		persistentFeeds = mysqlRepo.NewFeedStore(db)
	}
	// 3. coordinator
	snapshotRepo := repository.NewFeedSnapshotRepository(fastFeeds, persistentFeeds, cfg.FastFeedTTL)

	// Build service Layer
	engagementSvc := engagement.NewService(postRepo, likeCache, bloomRepo, engagement.Config{
		HydrationClaimTTL:    cfg.HydrationClaimTTL,
		HydrationWait:        cfg.HydrationWait,
		ReconcileConcurrency: cfg.ReconcileConcurrency,
	})
	affinitySvc := affinity.NewService(interactionStore, relationRepo, postRepo, userRepo, affinity.Config{
		RecentLimit: int(cfg.RecentInteractionsCap),
	})
	rankingSvc := ranking.NewService(postRepo, relationRepo, affinitySvc, engagementSvc, ranking.Config{
		PoolSize:   cfg.CandidatePoolSize,
		OutputSize: cfg.FeedOutputSize,
	})
	feedSvc := feed.NewService(snapshotRepo, rankingSvc, affinitySvc, feed.Config{
		PersistentTTL:    cfg.PersistentFeedTTL,
		ComputeTimeout:   cfg.FeedComputeTimeout,
		DefaultLimit:     cfg.FeedOutputSize,
		AlgorithmVersion: cfg.AlgorithmVersion,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prepare bloom filter
	if err := engagementSvc.InitBloomFilter(ctx); err != nil {
		logrus.Errorf("failed to init bloom filter: %v", err)
		return
	}

	// Start workers
	interactionWorker := workers.NewInteractionWorker(affinitySvc, cfg.InteractionQueueSize, cfg.InteractionWorkers)
	background := []domain.Worker{
		interactionWorker,
		workers.NewReconcileLikesWorker(engagementSvc, cfg.ReconcileInterval),
		workers.NewPrecomputeFeedWorker(userRepo, feedSvc, workers.PrecomputeConfig{
			Interval:     cfg.PrecomputeInterval,
			ActiveWindow: cfg.PrecomputeActiveWindow,
			Concurrency:  cfg.PrecomputeConcurrency,
		}),
		workers.NewHousekeepingWorker(feedSvc, engagementSvc, cfg.CleanupInterval),
	}
	done := make(chan struct{}, len(background))
	for _, w := range background {
		go func() {
			w.Start(ctx)
			done <- struct{}{}
		}()
	}

	if cfg.AMQPURL != "" {
		consumer := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, interactionWorker)
		if err := consumer.Start(ctx); err != nil {
			logrus.Errorf("failed to start interaction consumer, continuing without it: %v", err)
		}
	}

	// prepare gin
	rest.RegisterValidators()
	route := gin.New()
	route.Use(gin.Recovery())
	route.Use(middleware.RequestID())
	route.Use(middleware.Tracing())
	route.Use(middleware.Metrics())
	route.Use(middleware.CORS(strings.Split(cfg.AllowedOrigins, ",")))
	route.Use(middleware.SetRequestContextWithTimeout(cfg.ContextTimeout))
	route.Use(middleware.Identity())

	engagementHandler := rest.NewEngagementHandler(engagementSvc, interactionWorker)
	feedHandler := rest.NewFeedHandler(feedSvc)
	interactionHandler := rest.NewInteractionHandler(interactionWorker)

	// Register routes
	route.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	route.GET("/metrics", gin.WrapH(promhttp.Handler()))

	route.GET("/posts/:id/likes", engagementHandler.GetLikes)
	route.POST("/posts/likes/batch", engagementHandler.BatchLikes)

	authorized := route.Group("/")
	authorized.Use(middleware.RequireUser())
	{
		authorized.POST("/posts/:id/like", engagementHandler.ToggleLike)
		authorized.POST("/interactions", interactionHandler.Track)

		authorized.GET("/feed", feedHandler.GetFeed)
		authorized.GET("/feed/status", feedHandler.Status)
		authorized.POST("/feed/invalidate", feedHandler.Invalidate)
	}

	// Start Server
	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: route,
	}
	go func() {
		logrus.Infof("Server is running on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("listen: %s", err)
		}
	}()

	// shutdown
	<-ctx.Done()
	logrus.Info("Shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Waiting for workers to cleanup...")
	for range background {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logrus.Warn("workers did not stop in time")
			return
		}
	}

	logrus.Info("Server exiting")
}

func openDatabase(cfg *config.Config) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)

	for i := range cfg.DBMaxRetry {
		db, err = gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
		if err != nil {
			logrus.Warnf("failed to open connection to database (attempt %d/%d): %v", i+1, cfg.DBMaxRetry, err)
		} else {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				err = dbErr
				logrus.Warnf("failed to get sql.DB from gorm.DB (attempt %d/%d): %v", i+1, cfg.DBMaxRetry, err)
				continue
			}
			if err = sqlDB.Ping(); err == nil {
				return db
			}
			logrus.Warnf("failed to ping database (attempt %d/%d): %v", i+1, cfg.DBMaxRetry, err)
			_ = sqlDB.Close()
		}

		time.Sleep(dbRetryIntervalSec * time.Second)
	}

	logrus.Fatalf("could not connect to database after retries: %v", err)
	return nil
}
