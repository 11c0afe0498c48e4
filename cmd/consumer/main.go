package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krishop90/smart-airport-pooling/internal/config"
	"github.com/krishop90/smart-airport-pooling/internal/dispatch"
	"github.com/krishop90/smart-airport-pooling/internal/logging"
	"github.com/krishop90/smart-airport-pooling/internal/matcher"
	"github.com/krishop90/smart-airport-pooling/internal/pool"
	"github.com/krishop90/smart-airport-pooling/internal/queue"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

var (
	locationsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_locations_consumed_total",
		Help: "Total driver location messages consumed",
	})
	locationsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_locations_invalid_total",
		Help: "Total invalid location messages received",
	})
	locationsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_locations_applied_total",
		Help: "Total location updates written to the store",
	})
	locationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_location_errors_total",
		Help: "Total store errors applying location updates",
	})
)

func init() {
	prometheus.MustRegister(locationsConsumed, locationsInvalid, locationsApplied, locationErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger("pooling-consumer", cfg.LogLevel)

	if cfg.PGDSN == "" {
		logger.Error("PG_DSN is required for the worker process")
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker process")
		os.Exit(1)
	}

	store, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q := queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword)
	if err := q.Ping(ctx); err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	// jobs a previous run left mid-flight go back onto the queue
	if n, err := q.Reclaim(ctx); err != nil {
		logger.Error("reclaim failed", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("reclaimed in-flight jobs", "count", n)
	}

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := q.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		go consumeLocations(ctx, cfg, store, logger.With("component", "locations"))
	}

	engine := &matcher.Engine{
		Store:    store,
		Pools:    pool.NewManager(store),
		Notify:   dispatch.NewPushDispatcher(cfg.PushEndpoint, nil),
		RadiusKm: cfg.MatchRadiusKm,
	}
	w := &queue.Worker{
		Queue:       q,
		Matcher:     engine,
		Logger:      logger.With("component", "match-worker"),
		MaxAttempts: cfg.JobMaxAttempts,
		Backoff:     cfg.JobRetryBackoff,
	}
	logger.Info("match workers starting", "count", cfg.WorkerCount)
	queue.RunPool(ctx, cfg.WorkerCount, w)
	logger.Info("shutting down")
}
