package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. Transactions run
// against a staged copy of the state that replaces the live one only on
// success, so a failed unit of work leaves nothing behind. Because the
// mutex is held for the whole transaction, units of work are serialized
// and ErrConflict can never happen here.
type MemoryStore struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	users      map[string]models.User
	drivers    map[string]models.Driver
	requests   map[string]models.RideRequest
	pools      map[string]models.RidePool
	passengers map[string]models.PoolPassenger
	poolOrder  []string // pool ids in creation order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memState{
		users:      make(map[string]models.User),
		drivers:    make(map[string]models.Driver),
		requests:   make(map[string]models.RideRequest),
		pools:      make(map[string]models.RidePool),
		passengers: make(map[string]models.PoolPassenger),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:      make(map[string]models.User, len(s.users)),
		drivers:    make(map[string]models.Driver, len(s.drivers)),
		requests:   make(map[string]models.RideRequest, len(s.requests)),
		pools:      make(map[string]models.RidePool, len(s.pools)),
		passengers: make(map[string]models.PoolPassenger, len(s.passengers)),
		poolOrder:  append([]string(nil), s.poolOrder...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.drivers {
		c.drivers[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.pools {
		v.Route = append([]models.Coord(nil), v.Route...)
		c.pools[k] = v
	}
	for k, v := range s.passengers {
		c.passengers[k] = v
	}
	return c
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.st.clone()
	if err := fn(ctx, &memTx{st: staged}); err != nil {
		return err
	}
	m.st = staged
	return nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.st.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = NewID()
	}
	d.Updated = time.Now()
	m.st.drivers[d.ID] = *d
	return nil
}

func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) UpdateDriverLocation(ctx context.Context, id string, loc models.Coord, status models.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Loc = loc
	if status != "" {
		d.Status = status
	}
	d.Updated = time.Now()
	m.st.drivers[id] = d
	return nil
}

func (m *MemoryStore) CreateRequest(ctx context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.st.requests[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListMatchingPools(ctx context.Context) ([]*models.RidePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listMatchingPools()
}

func (m *MemoryStore) ListAvailableDrivers(ctx context.Context, seats, luggage int) ([]*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.st.drivers))
	for id := range m.st.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids) // stable scan order
	out := []*models.Driver{}
	for _, id := range ids {
		d := m.st.drivers[id]
		if d.Status != models.DriverAvailable {
			continue
		}
		if d.TotalSeats < seats || d.LuggageCapacity < luggage {
			continue
		}
		dc := d
		out = append(out, &dc)
	}
	return out, nil
}

func (m *MemoryStore) ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.activePassengers(poolID)
}

func (m *MemoryStore) PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.passengerByRequest(requestID)
}

func (s *memState) listMatchingPools() ([]*models.RidePool, error) {
	out := []*models.RidePool{}
	for _, id := range s.poolOrder {
		p, ok := s.pools[id]
		if !ok || p.Status != models.PoolMatching {
			continue
		}
		pc := p
		pc.Route = append([]models.Coord(nil), p.Route...)
		out = append(out, &pc)
	}
	return out, nil
}

func (s *memState) activePassengers(poolID string) ([]*models.PoolPassenger, error) {
	out := []*models.PoolPassenger{}
	for _, p := range s.passengers {
		if p.PoolID == poolID && p.Status != models.PassengerCancelled {
			pc := p
			out = append(out, &pc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupOrder < out[j].PickupOrder })
	return out, nil
}

func (s *memState) passengerByRequest(requestID string) (*models.PoolPassenger, error) {
	for _, p := range s.passengers {
		if p.RequestID == requestID {
			pc := p
			return &pc, nil
		}
	}
	return nil, ErrNotFound
}

// memTx mutates the staged copy; the caller swaps it in on commit.
type memTx struct {
	st *memState
}

func (t *memTx) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	r, ok := t.st.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	r, ok := t.st.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	t.st.requests[id] = r
	return nil
}

func (t *memTx) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	d, ok := t.st.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (t *memTx) UpdateDriverStatus(ctx context.Context, id string, status models.DriverStatus) error {
	d, ok := t.st.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	d.Updated = time.Now()
	t.st.drivers[id] = d
	return nil
}

func (t *memTx) GetPool(ctx context.Context, id string) (*models.RidePool, error) {
	p, ok := t.st.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Route = append([]models.Coord(nil), p.Route...)
	return &p, nil
}

func (t *memTx) InsertPool(ctx context.Context, p *models.RidePool) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	t.st.pools[p.ID] = *p
	t.st.poolOrder = append(t.st.poolOrder, p.ID)
	return nil
}

func (t *memTx) UpdatePoolStatus(ctx context.Context, id string, status models.PoolStatus) error {
	p, ok := t.st.pools[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	t.st.pools[id] = p
	return nil
}

func (t *memTx) UpdatePoolRoute(ctx context.Context, id string, route []models.Coord) error {
	p, ok := t.st.pools[id]
	if !ok {
		return ErrNotFound
	}
	p.Route = append([]models.Coord(nil), route...)
	t.st.pools[id] = p
	return nil
}

func (t *memTx) ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error) {
	return t.st.activePassengers(poolID)
}

func (t *memTx) CountPoolPassengers(ctx context.Context, poolID string) (int, error) {
	n := 0
	for _, p := range t.st.passengers {
		if p.PoolID == poolID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error) {
	return t.st.passengerByRequest(requestID)
}

func (t *memTx) InsertPassenger(ctx context.Context, p *models.PoolPassenger) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if _, err := t.st.passengerByRequest(p.RequestID); err == nil {
		return ErrConflict // one passenger record per request
	}
	t.st.passengers[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePassengerStatus(ctx context.Context, id string, status models.PassengerStatus) error {
	p, ok := t.st.passengers[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	t.st.passengers[id] = p
	return nil
}

func (t *memTx) CountPendingRequests(ctx context.Context) (int, error) {
	n := 0
	for _, r := range t.st.requests {
		if r.Status == models.RequestPending {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountAvailableDrivers(ctx context.Context) (int, error) {
	n := 0
	for _, d := range t.st.drivers {
		if d.Status == models.DriverAvailable {
			n++
		}
	}
	return n, nil
}
