package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carelinehq/hybrid-queue/config"
	httpDelivery "github.com/carelinehq/hybrid-queue/internal/delivery/http"
	"github.com/carelinehq/hybrid-queue/internal/delivery/kafka/consumer"
	"github.com/carelinehq/hybrid-queue/internal/delivery/kafka/producer"
	infraRedis "github.com/carelinehq/hybrid-queue/internal/infra/redis"
	"github.com/carelinehq/hybrid-queue/internal/repository"
	memoryRepo "github.com/carelinehq/hybrid-queue/internal/repository/memory"
	redisRepo "github.com/carelinehq/hybrid-queue/internal/repository/redis"
	"github.com/carelinehq/hybrid-queue/internal/service"
	pkgKafka "github.com/carelinehq/hybrid-queue/pkg/kafka"
	pkgLog "github.com/carelinehq/hybrid-queue/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	var (
		entryRepo   repository.EntryRepository
		catalogRepo repository.CatalogRepository
		statsRepo   repository.DurationStatsRepository
	)

	switch cfg.Store.Backend {
	case "redis":
		redisCli, err := infraRedis.Connect(ctx, cfg.Redis, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
		}
		defer infraRedis.Disconnect(context.Background(), redisCli, l)

		entryRepo = redisRepo.NewEntryRepository(redisCli, l)
		catalogRepo = redisRepo.NewCatalogRepository(redisCli, l)
		statsRepo = redisRepo.NewStatsRepository(redisCli, cfg.Queue.DurationWindow, l)
	case "memory":
		entryRepo = memoryRepo.NewEntryRepository()
		catalogRepo = memoryRepo.NewCatalogRepository()
		statsRepo = memoryRepo.NewStatsRepository(cfg.Queue.DurationWindow)
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewProducer(ctx, pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}

		kafkaNotifier := producer.NewNotifier(kafkaSyncProd, l)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	est := service.NewRollingEstimator(statsRepo, catalogRepo, cfg.Queue.DefaultServiceDuration, l)
	ctrl := service.NewQueueController(entryRepo, catalogRepo, statsRepo, notifier, est, cfg.Queue, l)

	if cfg.Kafka.Enabled {
		kafkaConsGr, err := pkgKafka.NewConsumer(ctx, pkgKafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroupID,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}

		cons := consumer.NewConsumer(kafkaConsGr, ctrl, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
		defer cons.Close()
	}

	watcher := service.NewNoShowWatcher(ctrl, entryRepo, catalogRepo, cfg.Queue.NoShowTimeout, cfg.Queue.WatchInterval, l)
	if err := watcher.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start no-show watcher: %v", err)
	}

	handler := httpDelivery.NewHandler(ctrl, cfg.JWT, l)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(gCtx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		l.Info(gCtx, "Server shutting down...")

		if err := watcher.Stop(); err != nil {
			l.Warnf(gCtx, "Failed to stop no-show watcher: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server exited with error: %v", err)
		os.Exit(1)
	}

	l.Info(context.Background(), "Server exited")
}
