package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/krishop90/smart-airport-pooling/internal/config"
	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

// LocationUpdater is the subset of the store the location consumer needs.
type LocationUpdater interface {
	UpdateDriverLocation(ctx context.Context, id string, loc models.Coord, status models.DriverStatus) error
}

// consumeLocations drains the driver-locations topic into the store.
func consumeLocations(ctx context.Context, cfg config.Config, store LocationUpdater, logger *slog.Logger) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer r.Close()

	logger.Info("location consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("location consumer stopping")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		locationsConsumed.Inc()

		var u models.DriverLocationUpdate
		if err := json.Unmarshal(m.Value, &u); err != nil || u.DriverID == "" {
			locationsInvalid.Inc()
			logger.Warn("invalid location message", "error", err)
			continue
		}
		if u.Status != "" && !u.Status.Valid() {
			locationsInvalid.Inc()
			logger.Warn("invalid driver status", "driver_id", u.DriverID, "status", u.Status)
			continue
		}

		if err := applyLocationWithRetry(ctx, store, u, 3, 200*time.Millisecond); err != nil {
			locationErrors.Inc()
			logger.Error("location update failed", "driver_id", u.DriverID, "error", err)
			continue
		}
		locationsApplied.Inc()
	}
}

// applyLocationWithRetry writes the update to the store with bounded
// retry and doubling delay. Unknown drivers are dropped, not retried.
func applyLocationWithRetry(ctx context.Context, store LocationUpdater, u models.DriverLocationUpdate, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = store.UpdateDriverLocation(ctx, u.DriverID, u.Loc, u.Status)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if i == attempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
