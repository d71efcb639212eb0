package crazyflie

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crtp"
)

// DefaultPeriod is the commander rate, 20 Hz. The firmware watchdog treats a
// gap of fresh setpoints as a reason to cut the motors.
const DefaultPeriod = 50 * time.Millisecond

// Setpoint is one sample of the four control axes. Thrust is in the
// commander's 0..65535 range.
type Setpoint struct {
	Roll   float32
	Pitch  float32
	Yaw    float32
	Thrust float32
}

// Commander supplies setpoints to the dispatch loop. PrepareData is called
// once per tick, right before Setpoint.
type Commander interface {
	PrepareData()
	Setpoint() Setpoint
}

// DispatchStats counts ticks of the commander loop.
type DispatchStats struct {
	Ticks   uint64 `json:"ticks"`
	Sent    uint64 `json:"sent"`
	Skipped uint64 `json:"skipped"`
	Running bool   `json:"running"`
}

type commanderHolder struct {
	Commander
}

// dispatchLoop sends one commander frame per period while running. Start and
// Stop are serialized; at most one ticker goroutine exists.
type dispatchLoop struct {
	period time.Duration
	send   func([]byte)
	onSend func()
	log    *zap.Logger

	commander atomic.Value // commanderHolder

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// active mirrors cancel != nil and is readable without mu, so a send
	// callback may ask for stats while a stop waits on it.
	active *atomic.Bool

	ticks   *atomic.Uint64
	sent    *atomic.Uint64
	skipped *atomic.Uint64
}

func newDispatchLoop(period time.Duration, send func([]byte), onSend func(), log *zap.Logger) *dispatchLoop {
	if period <= 0 {
		period = DefaultPeriod
	}
	d := &dispatchLoop{
		period:  period,
		send:    send,
		onSend:  onSend,
		log:     log,
		active:  atomic.NewBool(false),
		ticks:   atomic.NewUint64(0),
		sent:    atomic.NewUint64(0),
		skipped: atomic.NewUint64(0),
	}
	d.commander.Store(commanderHolder{})
	return d
}

func (d *dispatchLoop) setCommander(c Commander) {
	d.commander.Store(commanderHolder{c})
}

// start replaces any running ticker with a fresh one.
func (d *dispatchLoop) start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.active.Store(true)
	go d.run(ctx, d.done)
	d.log.Debug("dispatch loop started", zap.Duration("period", d.period))
}

func (d *dispatchLoop) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *dispatchLoop) stopLocked() {
	if d.cancel == nil {
		return
	}
	d.active.Store(false)
	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil
	d.log.Debug("dispatch loop stopped")
}

func (d *dispatchLoop) running() bool {
	return d.active.Load()
}

func (d *dispatchLoop) stats() DispatchStats {
	return DispatchStats{
		Ticks:   d.ticks.Load(),
		Sent:    d.sent.Load(),
		Skipped: d.skipped.Load(),
		Running: d.running(),
	}
}

func (d *dispatchLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a tick racing a stop must not go out
			if ctx.Err() != nil {
				return
			}
			d.tick()
		}
	}
}

func (d *dispatchLoop) tick() {
	d.ticks.Inc()

	commander := d.commander.Load().(commanderHolder).Commander
	if commander == nil {
		d.skipped.Inc()
		return
	}

	commander.PrepareData()
	sp := commander.Setpoint()

	packet := crtp.NewCommanderPacket(sp.Roll, sp.Pitch, sp.Yaw, clampThrust(sp.Thrust))
	d.send(packet.Bytes())
	d.sent.Inc()

	if d.onSend != nil {
		d.onSend()
	}
}

func clampThrust(thrust float32) uint16 {
	switch {
	case math.IsNaN(float64(thrust)) || thrust <= 0:
		return 0
	case thrust >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(thrust)
	}
}
