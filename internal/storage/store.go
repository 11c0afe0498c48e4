package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

var (
	// ErrNotFound means the id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent transaction invalidated this one;
	// the whole unit of work should be retried.
	ErrConflict = errors.New("transaction conflict")
)

// Store is the durable repository the matching engine and pool lifecycle
// run on. Multi-record mutations go through WithTx: the function either
// commits as a whole or leaves no trace.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreateDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	UpdateDriverLocation(ctx context.Context, id string, loc models.Coord, status models.DriverStatus) error

	CreateRequest(ctx context.Context, r *models.RideRequest) error
	GetRequest(ctx context.Context, id string) (*models.RideRequest, error)

	// Read-only helpers for the matching scan. These run outside any
	// transaction; the authoritative re-checks happen inside WithTx.
	ListMatchingPools(ctx context.Context) ([]*models.RidePool, error)
	ListAvailableDrivers(ctx context.Context, seats, luggage int) ([]*models.Driver, error)
	ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error)
	PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error)
}

// Tx is one atomic unit of work. Implementations must guarantee that two
// conflicting units cannot both commit; the loser fails with ErrConflict.
type Tx interface {
	GetRequest(ctx context.Context, id string) (*models.RideRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error

	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	UpdateDriverStatus(ctx context.Context, id string, status models.DriverStatus) error

	GetPool(ctx context.Context, id string) (*models.RidePool, error)
	InsertPool(ctx context.Context, p *models.RidePool) error
	UpdatePoolStatus(ctx context.Context, id string, status models.PoolStatus) error
	UpdatePoolRoute(ctx context.Context, id string, route []models.Coord) error

	ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error)
	// CountPoolPassengers counts every passenger record in the pool,
	// cancelled ones included; order indices are derived from it so a
	// cancellation can never free an index that is still assigned.
	CountPoolPassengers(ctx context.Context, poolID string) (int, error)
	PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error)
	InsertPassenger(ctx context.Context, p *models.PoolPassenger) error
	UpdatePassengerStatus(ctx context.Context, id string, status models.PassengerStatus) error

	// Surge inputs.
	CountPendingRequests(ctx context.Context) (int, error)
	CountAvailableDrivers(ctx context.Context) (int, error)
}

// NewID returns a random 16-hex-char identifier.
func NewID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
