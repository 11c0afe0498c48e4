package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DriverStatus is a closed set; anything else is rejected at the edges.
type DriverStatus string

const (
	DriverAvailable DriverStatus = "AVAILABLE"
	DriverBusy      DriverStatus = "BUSY"
	DriverOffline   DriverStatus = "OFFLINE"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverAvailable, DriverBusy, DriverOffline:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestMatched   RequestStatus = "MATCHED"
	RequestCancelled RequestStatus = "CANCELLED"
)

type PoolStatus string

const (
	PoolMatching  PoolStatus = "MATCHING"
	PoolCompleted PoolStatus = "COMPLETED"
)

type PassengerStatus string

const (
	PassengerActive    PassengerStatus = "ACTIVE"
	PassengerCancelled PassengerStatus = "CANCELLED"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Driver struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Phone           string       `json:"phone"`
	Loc             Coord        `json:"loc"`
	TotalSeats      int          `json:"total_seats"`
	LuggageCapacity int          `json:"luggage_capacity"`
	Status          DriverStatus `json:"status"`
	Updated         time.Time    `json:"updated"`
}

type RideRequest struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Pickup    Coord         `json:"pickup"`
	Drop      Coord         `json:"drop"`
	Seats     int           `json:"seats"`
	Luggage   int           `json:"luggage"`
	DetourKm  float64       `json:"detour_km"` // max extra distance the rider accepts
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type RidePool struct {
	ID        string     `json:"id"`
	DriverID  string     `json:"driver_id"`
	Status    PoolStatus `json:"status"`
	Route     []Coord    `json:"route"` // stops in join order, approximation only
	CreatedAt time.Time  `json:"created_at"`
}

// PoolPassenger links one request to one pool. Fare is fixed at join time.
type PoolPassenger struct {
	ID          string          `json:"id"`
	PoolID      string          `json:"pool_id"`
	RequestID   string          `json:"request_id"`
	Fare        int             `json:"fare"`
	PickupOrder int             `json:"pickup_order"`
	DropOrder   int             `json:"drop_order"`
	Status      PassengerStatus `json:"status"`
}

// MatchResultKind distinguishes how a request was placed.
type MatchResultKind string

const (
	MatchJoined  MatchResultKind = "JOINED_POOL"
	MatchCreated MatchResultKind = "CREATED_POOL"
)

type MatchResult struct {
	Kind        MatchResultKind `json:"kind"`
	PoolID      string          `json:"pool_id"`
	PassengerID string          `json:"passenger_id"`
	DriverID    string          `json:"driver_id"`
	Fare        int             `json:"fare"`
}

// PoolAssignment is what a driver gets pushed when a rider is added to
// their pool.
type PoolAssignment struct {
	PoolID    string `json:"pool_id"`
	RequestID string `json:"request_id"`
	Pickup    Coord  `json:"pickup"`
	Drop      Coord  `json:"drop"`
	Seats     int    `json:"seats"`
	Fare      int    `json:"fare"`
}

// MatchJob is the queue payload. Attempt is carried in the job so a
// re-enqueued job keeps its retry history.
type MatchJob struct {
	RequestID string `json:"request_id"`
	Attempt   int    `json:"attempt"`
}

// DriverLocationUpdate is the kafka payload for driver position and
// status changes.
type DriverLocationUpdate struct {
	DriverID string       `json:"driver_id"`
	Loc      Coord        `json:"loc"`
	Status   DriverStatus `json:"status,omitempty"`
}
