package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

// PostgresStore backs the repository with Postgres. Units of work run at
// SERIALIZABLE so that two concurrent joins to the same pool, or a join
// racing a cancel, cannot both commit; the loser surfaces as ErrConflict
// and the queue retries it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// DB exposes the handle for migrations run by the process entry point.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return pgErr(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return pgErr(err)
	}
	return nil
}

// pgErr maps serialization failures onto ErrConflict.
func pgErr(err error) error {
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConflict, pe.Message)
		case "23505": // unique_violation (duplicate passenger, order index)
			return fmt.Errorf("%w: %v", ErrConflict, pe.Message)
		}
	}
	return err
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(id, name, phone, created_at) VALUES($1,$2,$3,$4)`,
		u.ID, u.Name, u.Phone, u.CreatedAt)
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Phone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	d.Updated = time.Now()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO drivers(id, name, phone, lat, lng, total_seats, luggage_capacity, status, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.Name, d.Phone, d.Loc.Lat, d.Loc.Lng, d.TotalSeats, d.LuggageCapacity, d.Status, d.Updated)
	return err
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	return scanDriver(p.db.QueryRowContext(ctx, driverQuery+` WHERE id=$1`, id))
}

func (p *PostgresStore) UpdateDriverLocation(ctx context.Context, id string, loc models.Coord, status models.DriverStatus) error {
	var res sql.Result
	var err error
	if status != "" {
		res, err = p.db.ExecContext(ctx,
			`UPDATE drivers SET lat=$1, lng=$2, status=$3, updated_at=$4 WHERE id=$5`,
			loc.Lat, loc.Lng, status, time.Now(), id)
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE drivers SET lat=$1, lng=$2, updated_at=$3 WHERE id=$4`,
			loc.Lat, loc.Lng, time.Now(), id)
	}
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (p *PostgresStore) CreateRequest(ctx context.Context, r *models.RideRequest) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ride_requests(id, user_id, pickup_lat, pickup_lng, drop_lat, drop_lng, seats, luggage, detour_km, status, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ID, r.UserID, r.Pickup.Lat, r.Pickup.Lng, r.Drop.Lat, r.Drop.Lng,
		r.Seats, r.Luggage, r.DetourKm, r.Status, r.CreatedAt)
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	return scanRequest(p.db.QueryRowContext(ctx, requestQuery+` WHERE id=$1`, id))
}

func (p *PostgresStore) ListMatchingPools(ctx context.Context) ([]*models.RidePool, error) {
	rows, err := p.db.QueryContext(ctx,
		poolQuery+` WHERE status=$1 ORDER BY created_at, id`, models.PoolMatching)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.RidePool{}
	for rows.Next() {
		pl, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListAvailableDrivers(ctx context.Context, seats, luggage int) ([]*models.Driver, error) {
	rows, err := p.db.QueryContext(ctx,
		driverQuery+` WHERE status=$1 AND total_seats >= $2 AND luggage_capacity >= $3 ORDER BY id`,
		models.DriverAvailable, seats, luggage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error) {
	return queryActivePassengers(ctx, p.db, poolID)
}

func (p *PostgresStore) PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error) {
	return queryPassengerByRequest(ctx, p.db, requestID)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
}

const (
	driverQuery    = `SELECT id, name, phone, lat, lng, total_seats, luggage_capacity, status, updated_at FROM drivers`
	requestQuery   = `SELECT id, user_id, pickup_lat, pickup_lng, drop_lat, drop_lng, seats, luggage, detour_km, status, created_at FROM ride_requests`
	poolQuery      = `SELECT id, COALESCE(driver_id, ''), status, route, created_at FROM ride_pools`
	passengerQuery = `SELECT id, pool_id, request_id, fare, pickup_order, drop_order, status FROM pool_passengers`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*models.Driver, error) {
	var d models.Driver
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Loc.Lat, &d.Loc.Lng,
		&d.TotalSeats, &d.LuggageCapacity, &d.Status, &d.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanRequest(row rowScanner) (*models.RideRequest, error) {
	var r models.RideRequest
	err := row.Scan(&r.ID, &r.UserID, &r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Lat, &r.Drop.Lng,
		&r.Seats, &r.Luggage, &r.DetourKm, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPool(row rowScanner) (*models.RidePool, error) {
	var pl models.RidePool
	var route []byte
	err := row.Scan(&pl.ID, &pl.DriverID, &pl.Status, &route, &pl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(route) > 0 {
		if err := json.Unmarshal(route, &pl.Route); err != nil {
			return nil, fmt.Errorf("decode route: %w", err)
		}
	}
	return &pl, nil
}

func scanPassenger(row rowScanner) (*models.PoolPassenger, error) {
	var pp models.PoolPassenger
	err := row.Scan(&pp.ID, &pp.PoolID, &pp.RequestID, &pp.Fare, &pp.PickupOrder, &pp.DropOrder, &pp.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

func queryActivePassengers(ctx context.Context, q querier, poolID string) ([]*models.PoolPassenger, error) {
	rows, err := q.QueryContext(ctx,
		passengerQuery+` WHERE pool_id=$1 AND status <> $2 ORDER BY pickup_order`,
		poolID, models.PassengerCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.PoolPassenger{}
	for rows.Next() {
		pp, err := scanPassenger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

func queryPassengerByRequest(ctx context.Context, q querier, requestID string) (*models.PoolPassenger, error) {
	return scanPassenger(q.QueryRowContext(ctx, passengerQuery+` WHERE request_id=$1`, requestID))
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetRequest(ctx context.Context, id string) (*models.RideRequest, error) {
	return scanRequest(t.tx.QueryRowContext(ctx, requestQuery+` WHERE id=$1`, id))
}

func (t *pgTx) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE ride_requests SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (t *pgTx) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	return scanDriver(t.tx.QueryRowContext(ctx, driverQuery+` WHERE id=$1`, id))
}

func (t *pgTx) UpdateDriverStatus(ctx context.Context, id string, status models.DriverStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE drivers SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (t *pgTx) GetPool(ctx context.Context, id string) (*models.RidePool, error) {
	return scanPool(t.tx.QueryRowContext(ctx, poolQuery+` WHERE id=$1`, id))
}

func (t *pgTx) InsertPool(ctx context.Context, p *models.RidePool) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	route, err := json.Marshal(p.Route)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO ride_pools(id, driver_id, status, route, created_at) VALUES($1,$2,$3,$4,$5)`,
		p.ID, p.DriverID, p.Status, route, p.CreatedAt)
	return err
}

func (t *pgTx) UpdatePoolStatus(ctx context.Context, id string, status models.PoolStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE ride_pools SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (t *pgTx) UpdatePoolRoute(ctx context.Context, id string, route []models.Coord) error {
	b, err := json.Marshal(route)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE ride_pools SET route=$1 WHERE id=$2`, b, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (t *pgTx) ActivePassengers(ctx context.Context, poolID string) ([]*models.PoolPassenger, error) {
	return queryActivePassengers(ctx, t.tx, poolID)
}

func (t *pgTx) PassengerByRequest(ctx context.Context, requestID string) (*models.PoolPassenger, error) {
	return queryPassengerByRequest(ctx, t.tx, requestID)
}

func (t *pgTx) CountPoolPassengers(ctx context.Context, poolID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pool_passengers WHERE pool_id=$1`, poolID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertPassenger(ctx context.Context, p *models.PoolPassenger) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO pool_passengers(id, pool_id, request_id, fare, pickup_order, drop_order, status)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.PoolID, p.RequestID, p.Fare, p.PickupOrder, p.DropOrder, p.Status)
	return err
}

func (t *pgTx) UpdatePassengerStatus(ctx context.Context, id string, status models.PassengerStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE pool_passengers SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (t *pgTx) CountPendingRequests(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ride_requests WHERE status=$1`, models.RequestPending).Scan(&n)
	return n, err
}

func (t *pgTx) CountAvailableDrivers(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM drivers WHERE status=$1`, models.DriverAvailable).Scan(&n)
	return n, err
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
