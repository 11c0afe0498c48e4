// Package pool owns every transactional mutation of pool, passenger and
// driver state. Join, Create and Cancel each run as one unit of work, so
// a crash or a lost race can never leave a half-applied change behind.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/krishop90/smart-airport-pooling/internal/fare"
	"github.com/krishop90/smart-airport-pooling/internal/geo"
	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

type Manager struct {
	Store storage.Store
}

func NewManager(store storage.Store) *Manager {
	return &Manager{Store: store}
}

// Join adds the request to an existing pool. Capacity and request status
// are re-checked inside the transaction; a pool that filled up or a
// request that got resolved underneath us fails with ErrConflict so the
// caller can retry the whole match.
func (m *Manager) Join(ctx context.Context, poolID string, req *models.RideRequest) (*models.MatchResult, error) {
	var result *models.MatchResult
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.RequestPending {
			return fmt.Errorf("request %s is %s: %w", cur.ID, cur.Status, storage.ErrConflict)
		}
		pl, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pl.Status != models.PoolMatching || pl.DriverID == "" {
			return fmt.Errorf("pool %s no longer joinable: %w", poolID, storage.ErrConflict)
		}
		drv, err := tx.GetDriver(ctx, pl.DriverID)
		if err != nil {
			return err
		}
		passengers, err := tx.ActivePassengers(ctx, poolID)
		if err != nil {
			return err
		}
		seats, luggage := 0, 0
		for _, p := range passengers {
			pr, err := tx.GetRequest(ctx, p.RequestID)
			if err != nil {
				return err
			}
			seats += pr.Seats
			luggage += pr.Luggage
		}
		if seats+cur.Seats > drv.TotalSeats || luggage+cur.Luggage > drv.LuggageCapacity {
			return fmt.Errorf("pool %s over capacity: %w", poolID, storage.ErrConflict)
		}

		f, err := m.fareFor(ctx, tx, cur)
		if err != nil {
			return err
		}
		// order indices follow join sequence over ALL passengers ever in
		// the pool; counting only active ones would hand out an index a
		// cancelled rider vacated while a live rider still holds it
		order, err := tx.CountPoolPassengers(ctx, poolID)
		if err != nil {
			return err
		}
		pp := &models.PoolPassenger{
			PoolID:      poolID,
			RequestID:   cur.ID,
			Fare:        f,
			PickupOrder: order,
			DropOrder:   order,
			Status:      models.PassengerActive,
		}
		if err := tx.InsertPassenger(ctx, pp); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, cur.ID, models.RequestMatched); err != nil {
			return err
		}
		if err := tx.UpdatePoolRoute(ctx, poolID, append(pl.Route, cur.Pickup, cur.Drop)); err != nil {
			return err
		}
		result = &models.MatchResult{
			Kind:        models.MatchJoined,
			PoolID:      poolID,
			PassengerID: pp.ID,
			DriverID:    pl.DriverID,
			Fare:        f,
		}
		return nil
	})
	return result, err
}

// Create opens a new MATCHING pool under the driver with the request as
// its first passenger and flips the driver to BUSY.
func (m *Manager) Create(ctx context.Context, driverID string, req *models.RideRequest) (*models.MatchResult, error) {
	var result *models.MatchResult
	err := m.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.RequestPending {
			return fmt.Errorf("request %s is %s: %w", cur.ID, cur.Status, storage.ErrConflict)
		}
		drv, err := tx.GetDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if drv.Status != models.DriverAvailable {
			return fmt.Errorf("driver %s is %s: %w", driverID, drv.Status, storage.ErrConflict)
		}

		f, err := m.fareFor(ctx, tx, cur)
		if err != nil {
			return err
		}
		pl := &models.RidePool{
			DriverID: driverID,
			Status:   models.PoolMatching,
			Route:    []models.Coord{cur.Pickup, cur.Drop},
		}
		if err := tx.InsertPool(ctx, pl); err != nil {
			return err
		}
		pp := &models.PoolPassenger{
			PoolID:      pl.ID,
			RequestID:   cur.ID,
			Fare:        f,
			PickupOrder: 0,
			DropOrder:   0,
			Status:      models.PassengerActive,
		}
		if err := tx.InsertPassenger(ctx, pp); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, cur.ID, models.RequestMatched); err != nil {
			return err
		}
		if err := tx.UpdateDriverStatus(ctx, driverID, models.DriverBusy); err != nil {
			return err
		}
		result = &models.MatchResult{
			Kind:        models.MatchCreated,
			PoolID:      pl.ID,
			PassengerID: pp.ID,
			DriverID:    driverID,
			Fare:        f,
		}
		return nil
	})
	return result, err
}

// Cancel marks the request CANCELLED and, when it was pooled, removes its
// passenger record; a pool whose last active passenger leaves completes
// and frees its driver. Calling it again on an already-cancelled request
// is a no-op.
func (m *Manager) Cancel(ctx context.Context, requestID string) error {
	return m.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if cur.Status == models.RequestCancelled {
			return nil
		}
		if err := tx.UpdateRequestStatus(ctx, requestID, models.RequestCancelled); err != nil {
			return err
		}
		pp, err := tx.PassengerByRequest(ctx, requestID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil // was never matched
			}
			return err
		}
		if pp.Status != models.PassengerCancelled {
			if err := tx.UpdatePassengerStatus(ctx, pp.ID, models.PassengerCancelled); err != nil {
				return err
			}
		}
		remaining, err := tx.ActivePassengers(ctx, pp.PoolID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			return nil
		}
		pl, err := tx.GetPool(ctx, pp.PoolID)
		if err != nil {
			return err
		}
		if pl.Status != models.PoolCompleted {
			if err := tx.UpdatePoolStatus(ctx, pp.PoolID, models.PoolCompleted); err != nil {
				return err
			}
		}
		if pl.DriverID != "" {
			if err := tx.UpdateDriverStatus(ctx, pl.DriverID, models.DriverAvailable); err != nil {
				return err
			}
		}
		return nil
	})
}

// fareFor prices the rider's own pickup-to-drop leg; surge inputs come
// from the same transaction so the quote matches system state at commit.
func (m *Manager) fareFor(ctx context.Context, tx storage.Tx, req *models.RideRequest) (int, error) {
	demand, err := tx.CountPendingRequests(ctx)
	if err != nil {
		return 0, err
	}
	// the request being priced is still PENDING here; it is not part of
	// the demand pressing on everyone else
	if demand > 0 {
		demand--
	}
	supply, err := tx.CountAvailableDrivers(ctx)
	if err != nil {
		return 0, err
	}
	return fare.Calculate(geo.Distance(req.Pickup, req.Drop), req.Luggage, demand, supply), nil
}
