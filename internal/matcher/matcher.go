package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/krishop90/smart-airport-pooling/internal/geo"
	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/observability"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

// DefaultRadiusKm is the maximum driver-to-pickup distance considered.
const DefaultRadiusKm = 5.0

// Lifecycle is the slice of the pool manager the engine commits through.
type Lifecycle interface {
	Join(ctx context.Context, poolID string, req *models.RideRequest) (*models.MatchResult, error)
	Create(ctx context.Context, driverID string, req *models.RideRequest) (*models.MatchResult, error)
}

// Notifier pushes a pool assignment to a driver. Best-effort only.
type Notifier interface {
	Assign(driverID string, a models.PoolAssignment) error
}

type Engine struct {
	Store    storage.Store
	Pools    Lifecycle
	Notify   Notifier // optional
	RadiusKm float64
}

// Match resolves one request: join the first pool that satisfies every
// constraint, else open a new pool under the nearest capable driver, else
// leave the request PENDING and return nil. A request that is no longer
// PENDING is a successful no-op, not an error — a concurrent worker or a
// cancellation got there first.
func (e *Engine) Match(ctx context.Context, requestID string) (*models.MatchResult, error) {
	radius := e.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	req, err := e.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	if req.Status != models.RequestPending {
		return nil, nil
	}

	// First-fit over open pools in creation order.
	pools, err := e.Store.ListMatchingPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	for _, pl := range pools {
		ok, err := e.poolFits(ctx, pl, req, radius)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res, err := e.Pools.Join(ctx, pl.ID, req)
		if err != nil {
			return nil, err
		}
		observability.PoolJoins.Inc()
		observability.MatchesTotal.Inc()
		e.notify(req, res)
		return res, nil
	}

	// No joinable pool: nearest AVAILABLE driver with capacity.
	driverID, found, err := e.nearestDriver(ctx, req, radius)
	if err != nil {
		return nil, err
	}
	if !found {
		observability.MatchesNone.Inc()
		return nil, nil
	}
	res, err := e.Pools.Create(ctx, driverID, req)
	if err != nil {
		return nil, err
	}
	observability.PoolsCreated.Inc()
	observability.MatchesTotal.Inc()
	e.notify(req, res)
	return res, nil
}

// poolFits screens a pool: driver attached, seat and luggage headroom,
// pickup within radius of the driver, and detour tolerances in both
// directions. All reads here are advisory; Join re-checks capacity and
// status inside its transaction.
func (e *Engine) poolFits(ctx context.Context, pl *models.RidePool, req *models.RideRequest, radius float64) (bool, error) {
	if pl.DriverID == "" {
		return false, nil
	}
	drv, err := e.Store.GetDriver(ctx, pl.DriverID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	passengers, err := e.Store.ActivePassengers(ctx, pl.ID)
	if err != nil {
		return false, err
	}

	seats, luggage := 0, 0
	riders := make([]*models.RideRequest, 0, len(passengers))
	for _, p := range passengers {
		pr, err := e.Store.GetRequest(ctx, p.RequestID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return false, err
		}
		seats += pr.Seats
		luggage += pr.Luggage
		riders = append(riders, pr)
	}
	if seats+req.Seats > drv.TotalSeats {
		return false, nil
	}
	if luggage+req.Luggage > drv.LuggageCapacity {
		return false, nil
	}
	if geo.Distance(drv.Loc, req.Pickup) > radius {
		return false, nil
	}
	// Inserting the new pickup must stay inside every existing rider's
	// detour budget.
	for _, r := range riders {
		if geo.Detour(r.Pickup, r.Drop, req.Pickup) > r.DetourKm {
			return false, nil
		}
	}
	// And the new rider's own budget, measured against the first rider's
	// pickup, must hold too.
	if len(riders) > 0 {
		if geo.Detour(req.Pickup, req.Drop, riders[0].Pickup) > req.DetourKm {
			return false, nil
		}
	}
	return true, nil
}

// nearestDriver returns the closest AVAILABLE driver with enough seat and
// luggage capacity strictly inside the radius. Ties keep the first found,
// which is stable because the store lists drivers in a fixed order.
func (e *Engine) nearestDriver(ctx context.Context, req *models.RideRequest, radius float64) (string, bool, error) {
	drivers, err := e.Store.ListAvailableDrivers(ctx, req.Seats, req.Luggage)
	if err != nil {
		return "", false, fmt.Errorf("list drivers: %w", err)
	}
	bestID := ""
	bestDist := radius
	for _, d := range drivers {
		dist := geo.Distance(d.Loc, req.Pickup)
		if dist < bestDist {
			bestID = d.ID
			bestDist = dist
		}
	}
	return bestID, bestID != "", nil
}

func (e *Engine) notify(req *models.RideRequest, res *models.MatchResult) {
	if e.Notify == nil || res == nil {
		return
	}
	_ = e.Notify.Assign(res.DriverID, models.PoolAssignment{
		PoolID:    res.PoolID,
		RequestID: req.ID,
		Pickup:    req.Pickup,
		Drop:      req.Drop,
		Seats:     req.Seats,
		Fare:      res.Fare,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
