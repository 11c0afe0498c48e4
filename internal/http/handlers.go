package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krishop90/smart-airport-pooling/internal/dispatch"
	"github.com/krishop90/smart-airport-pooling/internal/ingest"
	"github.com/krishop90/smart-airport-pooling/internal/models"
	"github.com/krishop90/smart-airport-pooling/internal/observability"
	"github.com/krishop90/smart-airport-pooling/internal/pool"
	"github.com/krishop90/smart-airport-pooling/internal/queue"
	"github.com/krishop90/smart-airport-pooling/internal/storage"
)

// Server is the ingestion facade: it accepts users, drivers, ride
// requests and cancellations, and hands match work to the queue. The
// matching itself happens in the worker process.
type Server struct {
	Store  storage.Store
	Queue  queue.Queue
	Pools  *pool.Manager
	Kafka  *ingest.KafkaProducer // optional
	WSReg  *dispatch.WSRegistry
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(store storage.Store, q queue.Queue, pools *pool.Manager, kafka *ingest.KafkaProducer, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{
		Store:  store,
		Queue:  q,
		Pools:  pools,
		Kafka:  kafka,
		WSReg:  wsreg,
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	s.mux.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	s.mux.HandleFunc("/drivers", s.handleCreateDriver).Methods("POST")
	s.mux.HandleFunc("/drivers/{id}/location", s.handleDriverLocation).Methods("PUT")
	s.mux.HandleFunc("/rides/request", s.handleRideRequest).Methods("POST")
	s.mux.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/rides/{id}", s.handleRideStatus).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Name == "" || in.Phone == "" {
		http.Error(w, "name and phone are required", http.StatusBadRequest)
		return
	}
	u := &models.User{Name: in.Name, Phone: in.Phone}
	if err := s.Store.CreateUser(r.Context(), u); err != nil {
		s.internalError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.Store.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.notFoundOr500(w, "user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateDriver(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name    string  `json:"name"`
		Phone   string  `json:"phone"`
		Seats   int     `json:"seats"`
		Luggage int     `json:"luggage"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Seats <= 0 {
		in.Seats = 4
	}
	if in.Luggage <= 0 {
		in.Luggage = 2
	}
	d := &models.Driver{
		Name:            in.Name,
		Phone:           in.Phone,
		Loc:             models.Coord{Lat: in.Lat, Lng: in.Lng},
		TotalSeats:      in.Seats,
		LuggageCapacity: in.Luggage,
		Status:          models.DriverAvailable,
	}
	if err := s.Store.CreateDriver(r.Context(), d); err != nil {
		s.internalError(w, "create driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Lat    float64             `json:"lat"`
		Lng    float64             `json:"lng"`
		Status models.DriverStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Status != "" && !in.Status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	loc := models.Coord{Lat: in.Lat, Lng: in.Lng}
	if err := s.Store.UpdateDriverLocation(r.Context(), id, loc, in.Status); err != nil {
		s.notFoundOr500(w, "driver", err)
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(models.DriverLocationUpdate{DriverID: id, Loc: loc, Status: in.Status}); err != nil {
			s.logger.Warn("kafka publish failed", "driver_id", id, "error", err)
		}
	}
	d, err := s.Store.GetDriver(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, "driver", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   string        `json:"user_id"`
		Pickup   *models.Coord `json:"pickup"`
		Drop     *models.Coord `json:"drop"`
		Seats    int           `json:"seats"`
		Luggage  int           `json:"luggage"`
		DetourKm float64       `json:"detour_km"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.UserID == "" || in.Pickup == nil || in.Drop == nil {
		http.Error(w, "user_id, pickup and drop are required", http.StatusBadRequest)
		return
	}
	if in.Seats <= 0 {
		in.Seats = 1
	}
	if in.DetourKm <= 0 {
		in.DetourKm = 3
	}
	req := &models.RideRequest{
		UserID:   in.UserID,
		Pickup:   *in.Pickup,
		Drop:     *in.Drop,
		Seats:    in.Seats,
		Luggage:  in.Luggage,
		DetourKm: in.DetourKm,
		Status:   models.RequestPending,
	}
	if err := s.Store.CreateRequest(r.Context(), req); err != nil {
		s.internalError(w, "create request", err)
		return
	}
	if err := s.Queue.Enqueue(r.Context(), models.MatchJob{RequestID: req.ID}); err != nil {
		s.internalError(w, "enqueue match job", err)
		return
	}
	observability.JobsEnqueued.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "ride requested",
		"request_id": req.ID,
		"status":     req.Status,
	})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Pools.Cancel(r.Context(), id); err != nil {
		s.notFoundOr500(w, "ride request", err)
		return
	}
	observability.Cancellations.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"message": "ride cancelled", "request_id": id})
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := s.Store.GetRequest(r.Context(), id)
	if err != nil {
		s.notFoundOr500(w, "ride request", err)
		return
	}
	out := map[string]any{
		"id":     req.ID,
		"status": req.Status,
	}
	if pp, err := s.Store.PassengerByRequest(r.Context(), id); err == nil {
		out["pool_id"] = pp.PoolID
		out["fare"] = pp.Fare
		out["pickup_order"] = pp.PickupOrder
		if d := s.driverForPool(r, pp.PoolID); d != nil {
			out["driver"] = d
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) driverForPool(r *http.Request, poolID string) *models.Driver {
	var driver *models.Driver
	err := s.Store.WithTx(r.Context(), func(ctx context.Context, tx storage.Tx) error {
		pl, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pl.DriverID == "" {
			return nil
		}
		driver, err = tx.GetDriver(ctx, pl.DriverID)
		return err
	})
	if err != nil {
		return nil
	}
	return driver
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func (s *Server) notFoundOr500(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	s.internalError(w, what, err)
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
