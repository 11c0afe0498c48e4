package matcher

import (
	"context"
	"testing"

	"github.com/krishop90/smart-airport-pooling/internal/geo"
	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/pool"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

// The engine is exercised against the real lifecycle manager on the
// in-memory store; only the notifier is faked.

type recordingNotifier struct {
	assigns []models.PoolAssignment
}

func (n *recordingNotifier) Assign(driverID string, a models.PoolAssignment) error {
	n.assigns = append(n.assigns, a)
	return nil
}

func newEngine(store storage.Store) (*Engine, *recordingNotifier) {
	n := &recordingNotifier{}
	return &Engine{Store: store, Pools: pool.NewManager(store), Notify: n, RadiusKm: 5}, n
}

func seedDriver(t *testing.T, store storage.Store, id string, loc models.Coord, seats, luggage int) {
	t.Helper()
	d := &models.Driver{ID: id, Loc: loc, TotalSeats: seats, LuggageCapacity: luggage, Status: models.DriverAvailable}
	if err := store.CreateDriver(context.Background(), d); err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

func seedRequest(t *testing.T, store storage.Store, id string, pickup, drop models.Coord, seats, luggage int, detourKm float64) {
	t.Helper()
	r := &models.RideRequest{
		ID: id, UserID: "u-" + id, Pickup: pickup, Drop: drop,
		Seats: seats, Luggage: luggage, DetourKm: detourKm,
		Status: models.RequestPending,
	}
	if err := store.CreateRequest(context.Background(), r); err != nil {
		t.Fatalf("seed request: %v", err)
	}
}

var (
	airport = models.Coord{Lat: 12.95, Lng: 77.60}
	cityA   = models.Coord{Lat: 12.97, Lng: 77.59}
	cityB   = models.Coord{Lat: 12.975, Lng: 77.592} // close to cityA
	farAway = models.Coord{Lat: 13.50, Lng: 78.20}
)

func TestMatchNoDriverLeavesPending(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 3)
	seedDriver(t, store, "d-far", farAway, 4, 2)

	res, err := e.Match(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
	r, _ := store.GetRequest(context.Background(), "r1")
	if r.Status != models.RequestPending {
		t.Fatalf("expected PENDING, got %s", r.Status)
	}
}

func TestMatchCreatesPool(t *testing.T) {
	store := storage.NewMemoryStore()
	e, n := newEngine(store)
	seedDriver(t, store, "d1", airport, 4, 2)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 3)

	res, err := e.Match(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Kind != models.MatchCreated {
		t.Fatalf("expected CREATED_POOL, got %+v", res)
	}
	d, _ := store.GetDriver(context.Background(), "d1")
	if d.Status != models.DriverBusy {
		t.Fatalf("expected driver BUSY, got %s", d.Status)
	}
	r, _ := store.GetRequest(context.Background(), "r1")
	if r.Status != models.RequestMatched {
		t.Fatalf("expected MATCHED, got %s", r.Status)
	}
	pp, err := store.PassengerByRequest(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected passenger record: %v", err)
	}
	if pp.PickupOrder != 0 || pp.DropOrder != 0 {
		t.Fatalf("expected order 0, got pickup=%d drop=%d", pp.PickupOrder, pp.DropOrder)
	}
	if len(n.assigns) != 1 {
		t.Fatalf("expected one driver notification, got %d", len(n.assigns))
	}
}

func TestMatchJoinsExistingPool(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", airport, 4, 4)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 5)
	seedRequest(t, store, "r2", cityB, cityA, 1, 0, 5)

	if _, err := e.Match(context.Background(), "r1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	res, err := e.Match(context.Background(), "r2")
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	if res == nil || res.Kind != models.MatchJoined {
		t.Fatalf("expected JOINED_POOL, got %+v", res)
	}
	pp, _ := store.PassengerByRequest(context.Background(), "r2")
	if pp.PickupOrder != 1 {
		t.Fatalf("expected order 1, got %d", pp.PickupOrder)
	}
	d, _ := store.GetDriver(context.Background(), "d1")
	if d.Status != models.DriverBusy {
		t.Fatalf("expected driver still BUSY, got %s", d.Status)
	}
}

func TestMatchFullPoolFallsThroughToDriverSearch(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", airport, 1, 2) // one seat only
	seedDriver(t, store, "d2", cityB, 4, 2)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 5)
	seedRequest(t, store, "r2", cityB, cityA, 1, 0, 5)

	if _, err := e.Match(context.Background(), "r1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	res, err := e.Match(context.Background(), "r2")
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	if res == nil || res.Kind != models.MatchCreated {
		t.Fatalf("expected fall-through to new pool, got %+v", res)
	}
	if res.DriverID != "d2" {
		t.Fatalf("expected d2, got %s", res.DriverID)
	}
}

func TestMatchRejectsPoolOverDetourTolerance(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", airport, 4, 2)
	// r1 tolerates almost no detour
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 0.01)
	// r2's pickup is off r1's straight line
	seedRequest(t, store, "r2", cityB, cityA, 1, 0, 5)

	if _, err := e.Match(context.Background(), "r1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	res, err := e.Match(context.Background(), "r2")
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	// d1 is BUSY now and no other driver exists, so r2 stays pending
	if res != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
	r, _ := store.GetRequest(context.Background(), "r2")
	if r.Status != models.RequestPending {
		t.Fatalf("expected PENDING, got %s", r.Status)
	}
}

func TestMatchLuggageCapacityRespected(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", airport, 4, 1)
	seedRequest(t, store, "r1", airport, cityA, 1, 1, 5)
	seedRequest(t, store, "r2", cityB, cityA, 1, 1, 5)

	if _, err := e.Match(context.Background(), "r1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	res, err := e.Match(context.Background(), "r2")
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	if res != nil {
		t.Fatalf("expected luggage-full pool rejected with no fallback, got %+v", res)
	}
}

func TestMatchResolvedRequestIsNoOp(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", airport, 4, 2)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 3)

	if _, err := e.Match(context.Background(), "r1"); err != nil {
		t.Fatalf("first match: %v", err)
	}
	res, err := e.Match(context.Background(), "r1")
	if err != nil {
		t.Fatalf("re-match errored: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no-op on matched request, got %+v", res)
	}

	seedRequest(t, store, "r2", airport, cityA, 1, 0, 3)
	if err := pool.NewManager(store).Cancel(context.Background(), "r2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res, err = e.Match(context.Background(), "r2")
	if err != nil {
		t.Fatalf("match on cancelled errored: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no-op on cancelled request, got %+v", res)
	}
}

func TestMatchUnknownRequestFails(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	if _, err := e.Match(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown request")
	}
}

func TestNearestDriverWins(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d-near", models.Coord{Lat: 12.951, Lng: 77.60}, 4, 2)
	seedDriver(t, store, "d-nearer", models.Coord{Lat: 12.9501, Lng: 77.60}, 4, 2)
	seedRequest(t, store, "r1", airport, cityA, 1, 0, 3)

	res, err := e.Match(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.DriverID != "d-nearer" {
		t.Fatalf("expected d-nearer, got %+v", res)
	}
}

func TestDriverAtExactRadiusExcluded(t *testing.T) {
	store := storage.NewMemoryStore()
	e, _ := newEngine(store)
	seedDriver(t, store, "d1", cityA, 4, 2)
	seedRequest(t, store, "r1", airport, cityB, 1, 0, 3)
	// the radius ends exactly at the driver; inside means strictly inside
	e.RadiusKm = geo.Distance(cityA, airport)

	res, err := e.Match(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no match at the radius boundary, got %+v", res)
	}
	req, _ := store.GetRequest(context.Background(), "r1")
	if req.Status != models.RequestPending {
		t.Fatalf("expected request still PENDING, got %s", req.Status)
	}
}
