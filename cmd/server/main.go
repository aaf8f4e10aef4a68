package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/flashsale-booking/internal/admission"
	"github.com/iliyamo/flashsale-booking/internal/apperr"
	"github.com/iliyamo/flashsale-booking/internal/booking"
	"github.com/iliyamo/flashsale-booking/internal/config"
	"github.com/iliyamo/flashsale-booking/internal/database"
	"github.com/iliyamo/flashsale-booking/internal/handler"
	"github.com/iliyamo/flashsale-booking/internal/inventory"
	"github.com/iliyamo/flashsale-booking/internal/ledger"
	"github.com/iliyamo/flashsale-booking/internal/lock"
	"github.com/iliyamo/flashsale-booking/internal/metrics"
	"github.com/iliyamo/flashsale-booking/internal/middleware"
	"github.com/iliyamo/flashsale-booking/internal/notify"
	"github.com/iliyamo/flashsale-booking/internal/queue"
	"github.com/iliyamo/flashsale-booking/internal/repository"
	"github.com/iliyamo/flashsale-booking/internal/repository/memory"
	"github.com/iliyamo/flashsale-booking/internal/router"
	"github.com/iliyamo/flashsale-booking/internal/sweeper"
)

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Env == "prod" || cfg.Env == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// openStore returns the durable store and its health check.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.Store, handler.Check, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func(context.Context) error { return nil }, func() {}, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("database schema applied")
	}
	return repository.NewMySQLStore(db, logger), db.PingContext, func() { _ = db.Close() }, nil
}

func seed(ctx context.Context, inv *inventory.Service, bcfg config.BookingConfig, logger *logrus.Logger) {
	for _, date := range bcfg.SeedDates {
		err := inv.CreateConcert(ctx, date, bcfg.SeedSeatsPerDate, bcfg.SeatPrice)
		if err != nil && !apperr.Is(err, apperr.Conflict) {
			logger.WithError(err).WithField("concert_date", date).Fatal("seeding concert failed")
		}
	}
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	bcfg := config.LoadBookingConfig()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeCheck, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("opening store failed")
	}
	defer closeStore()

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer func() { _ = rdb.Close() }()

	locks := lock.NewRedis(rdb, logger, bcfg.LockPrefix, bcfg.LockRetry)
	gate := admission.NewGate(
		admission.NewRedisStore(rdb, bcfg.QueuePrefix, bcfg.ExpiredRetention),
		admission.Config{MaxActive: bcfg.MaxActive, TokenTTL: bcfg.TokenTTL},
		admission.PerPosition(bcfg.WaitPerPosition),
		logger,
	)
	inv := inventory.New(store, locks, inventory.Config{
		HoldDuration: bcfg.HoldDuration, LockWait: bcfg.LockWait, LockLease: bcfg.LockLease,
	}, logger)
	led := ledger.New(store, locks, ledger.Config{LockWait: bcfg.LockWait, LockLease: bcfg.LockLease}, logger)
	seed(ctx, inv, bcfg, logger)

	var (
		sink     booking.NotificationSink = notify.NewDataPlatform(logger)
		consumer *queue.Consumer
	)
	if cfg.NotifyDriver == "amqp" {
		pub := notify.NewAMQPPublisher(cfg.RabbitURL, logger)
		defer func() { _ = pub.Close() }()
		sink = pub
		consumer = queue.NewConsumer(cfg.RabbitURL, notify.NewDataPlatform(logger), logger)
	}

	ranking := notify.NewRedisRanking(rdb)
	orch := booking.New(booking.Deps{
		Store:     store,
		Locks:     locks,
		Gate:      gate,
		Inventory: inv,
		Ledger:    led,
		Sink:      sink,
		Ranking:   ranking,
		Logger:    logger,
	}, booking.Config{LockWait: bcfg.LockWait, LockLease: bcfg.LockLease, HookTimeout: bcfg.HookTimeout})

	sw := sweeper.New(store, inv, gate, sweeper.Config{
		SweepInterval: bcfg.SweepInterval, AdmitInterval: bcfg.AdmitInterval,
	}, logger)

	e := router.New(router.Handlers{
		Queue:   handler.NewQueueHandler(gate),
		Booking: handler.NewBookingHandler(orch),
		Points:  handler.NewPointHandler(led),
		Catalog: handler.NewCatalogHandler(store.Catalog(), inv),
		Ranking: handler.NewRankingHandler(ranking),
		Health: handler.Health(map[string]handler.Check{
			"store": storeCheck,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		Metrics: promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger).Middleware(),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sw.Run(gctx) })
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	orch.Wait()
	logger.Info("shutdown complete")
}
