package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/krishop90/smart-airport-pooling/internal/models"
)

// Notifier pushes a pool assignment to a driver.
type Notifier interface {
	Assign(driverID string, a models.PoolAssignment) error
}

// PushDispatcher tries the driver's websocket session first and falls
// back to POSTing the assignment to a driver-app backend endpoint.
type PushDispatcher struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushDispatcher(endpoint string, ws *WSRegistry) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushDispatcher) Assign(driverID string, a models.PoolAssignment) error {
	if p.WS != nil {
		if err := p.WS.Assign(driverID, a); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(map[string]any{"driver_id": driverID, "assignment": a})
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
