package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

// fakeUpdater implements LocationUpdater for tests
type fakeUpdater struct {
	fail     int // number of times to fail before succeeding
	notFound bool
	calls    int
}

func (f *fakeUpdater) UpdateDriverLocation(ctx context.Context, id string, loc models.Coord, status models.DriverStatus) error {
	f.calls++
	if f.notFound {
		return storage.ErrNotFound
	}
	if f.calls <= f.fail {
		return errors.New("store down")
	}
	return nil
}

func TestApplyLocationWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{fail: 2}
	u := models.DriverLocationUpdate{DriverID: "d1", Loc: models.Coord{Lat: 1, Lng: 2}}
	start := time.Now()
	if err := applyLocationWithRetry(context.Background(), f, u, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyLocationWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{fail: 5}
	u := models.DriverLocationUpdate{DriverID: "d1", Loc: models.Coord{Lat: 1, Lng: 2}}
	if err := applyLocationWithRetry(context.Background(), f, u, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestApplyLocationWithRetry_UnknownDriverNotRetried(t *testing.T) {
	f := &fakeUpdater{notFound: true}
	u := models.DriverLocationUpdate{DriverID: "ghost", Loc: models.Coord{}}
	if err := applyLocationWithRetry(context.Background(), f, u, 3, time.Millisecond); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected 1 call, got %d", f.calls)
	}
}
