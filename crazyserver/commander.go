package crazyserver

import (
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/mikehamer/crazyclient/crazyflie"
)

// Commander is the live setpoint written by PUT /commander and read by the
// session's dispatch loop. With a Timeout, a setpoint that was not refreshed
// in time is replaced by zero thrust.
type Commander struct {
	Timeout time.Duration

	mu       sync.Mutex
	setpoint crazyflie.Setpoint
	updated  time.Time
	stale    bool
	now      func() time.Time
}

var _ crazyflie.Commander = (*Commander)(nil)

func NewCommander(timeout time.Duration) *Commander {
	return &Commander{Timeout: timeout, now: time.Now}
}

func (c *Commander) Set(sp crazyflie.Setpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setpoint = sp
	c.updated = c.now()
}

func (c *Commander) PrepareData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = c.Timeout > 0 && c.now().Sub(c.updated) > c.Timeout
}

func (c *Commander) Setpoint() crazyflie.Setpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale {
		return crazyflie.Setpoint{}
	}
	return c.setpoint
}

type commanderRequest struct {
	Roll   *float32 `json:"roll"`
	Pitch  *float32 `json:"pitch"`
	Yaw    *float32 `json:"yaw"`
	Thrust *float32 `json:"thrust"`
}

func (s *Server) commanderSet(w http.ResponseWriter, r *http.Request) {
	var req commanderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Bad request!")
		return
	}
	if req.Roll == nil || req.Pitch == nil || req.Yaw == nil || req.Thrust == nil {
		respondError(w, r, http.StatusBadRequest, "roll, pitch, yaw and thrust are required")
		return
	}
	if *req.Thrust < 0 || *req.Thrust > math.MaxUint16 {
		respondError(w, r, http.StatusBadRequest, "thrust must be within 0..65535")
		return
	}

	s.commander.Set(crazyflie.Setpoint{
		Roll:   *req.Roll,
		Pitch:  *req.Pitch,
		Yaw:    *req.Yaw,
		Thrust: *req.Thrust,
	})

	respondJSON(w, http.StatusOK, struct{}{})
}
