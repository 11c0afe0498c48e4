package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/krishop90/smart-airport-pooling/internal/config"
	"github.com/krishop90/smart-airport-pooling/internal/dispatch"
	httpapi "github.com/krishop90/smart-airport-pooling/internal/http"
	"github.com/krishop90/smart-airport-pooling/internal/ingest"
	"github.com/krishop90/smart-airport-pooling/internal/logging"
	"github.com/krishop90/smart-airport-pooling/internal/matcher"
	"github.com/krishop90/smart-airport-pooling/internal/pool"
	"github.com/krishop90/smart-airport-pooling/internal/queue"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger("pooling-api", cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_pooling.sql")); err == nil {
				if _, err := ps.DB().Exec(string(b)); err != nil {
					logger.Error("migration exec failed", "error", err)
					os.Exit(1)
				}
				logger.Info("migration applied", "file", "001_create_pooling.sql")
			}
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("PG_DSN not set, using in-memory store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With redis the worker binary drains the queue; without it jobs go
	// through an in-process queue and workers run here.
	var q queue.Queue
	inProcess := false
	if cfg.RedisAddr != "" {
		rq := queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword)
		if err := rq.Ping(ctx); err != nil {
			logger.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		defer rq.Close()
		q = rq
	} else {
		q = queue.NewMemoryQueue(0)
		inProcess = true
		logger.Warn("REDIS_ADDR not set, matching runs in-process")
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
	}

	wsreg := dispatch.NewWSRegistry()
	pools := pool.NewManager(store)
	srv := httpapi.NewServer(store, q, pools, kp, wsreg, logger)

	if inProcess {
		engine := &matcher.Engine{
			Store:    store,
			Pools:    pools,
			Notify:   dispatch.NewPushDispatcher(cfg.PushEndpoint, wsreg),
			RadiusKm: cfg.MatchRadiusKm,
		}
		w := &queue.Worker{
			Queue:       q,
			Matcher:     engine,
			Logger:      logger,
			MaxAttempts: cfg.JobMaxAttempts,
			Backoff:     cfg.JobRetryBackoff,
		}
		go queue.RunPool(ctx, cfg.WorkerCount, w)
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	go func() {
		logger.Info("pooling api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
