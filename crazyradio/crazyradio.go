// Package crazyradio talks to a Crazyflie through a Crazyradio PA dongle.
package crazyradio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/link"
)

type outgoing struct {
	data     []byte
	callback func(error)
}

// worker owns the dongle while connected.
type worker struct {
	dongle   *Dongle
	standard *queue.Queue
	priority *queue.Queue
	stop     chan struct{}
	done     chan struct{}
}

// Link implements link.Link over a Crazyradio. Outgoing packets are queued and
// sent by a single worker goroutine, which pings the Crazyflie whenever the
// queues are empty so it can answer in the acknowledgement.
type Link struct {
	open func(index int) (device, error)
	log  *zap.Logger

	attempt *atomic.Uint64
	sent    *atomic.Uint64
	lost    *atomic.Uint64

	mu        sync.Mutex
	onState   func(string)
	onPacket  func([]byte)
	lastError string
	worker    *worker
}

var (
	_ link.Link           = (*Link)(nil)
	_ link.PrioritySender = (*Link)(nil)
)

func New(logger *zap.Logger) *Link {
	return newLink(openUSB, logger)
}

func newLink(open func(int) (device, error), logger *zap.Logger) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{
		open:    open,
		log:     logger.Named("crazyradio"),
		attempt: atomic.NewUint64(0),
		sent:    atomic.NewUint64(0),
		lost:    atomic.NewUint64(0),
	}
}

func (l *Link) OnStateUpdated(handler func(state string)) {
	l.mu.Lock()
	l.onState = handler
	l.mu.Unlock()
}

func (l *Link) OnPacket(handler func(data []byte)) {
	l.mu.Lock()
	l.onPacket = handler
	l.mu.Unlock()
}

func (l *Link) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastError
}

// Connect opens the dongle, configures it and pings the Crazyflie until it
// acknowledges or params.Timeout passes.
func (l *Link) Connect(params link.Params, callback func(connected bool)) {
	l.teardown()
	attempt := l.attempt.Inc()

	l.mu.Lock()
	l.lastError = ""
	l.mu.Unlock()

	go func() {
		connected := l.connect(params, attempt)
		if callback != nil {
			callback(connected)
		}
	}()
}

func (l *Link) connect(params link.Params, attempt uint64) bool {
	if params.Timeout <= 0 {
		params.Timeout = link.DefaultTimeout
	}

	l.report("scanning")
	dev, err := l.open(params.Dongle)
	if errors.Is(err, ErrorDeviceNotFound) {
		return l.fail(attempt, link.ErrorRadioNotFound)
	}
	if err != nil {
		return l.fail(attempt, err.Error())
	}

	dongle := newDongle(dev)
	if err := dongle.Configure(params); err != nil {
		dongle.Close()
		return l.fail(attempt, err.Error())
	}

	l.report("connecting")
	l.log.Info("pinging",
		zap.Uint8("channel", params.Channel),
		zap.Stringer("datarate", params.Datarate),
		zap.String("address", fmt.Sprintf("%010X", params.Address)))

	if !l.ping(dongle, params.Timeout, attempt) {
		dongle.Close()
		return l.fail(attempt, link.ErrorTimeout)
	}

	w := &worker{
		dongle:   dongle,
		standard: queue.New(32),
		priority: queue.New(8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	l.mu.Lock()
	if l.attempt.Load() != attempt {
		l.mu.Unlock()
		dongle.Close()
		return false
	}
	l.worker = w
	l.mu.Unlock()

	go l.work(w, attempt)
	l.report("connected")
	return true
}

func (l *Link) ping(d *Dongle, timeout time.Duration, attempt uint64) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if l.attempt.Load() != attempt {
			return false
		}
		ack, payload, err := d.SendPacket(pingPacket)
		if err == nil && ack {
			l.deliver(payload)
			return true
		}
		time.Sleep(pingInterval)
	}
	return false
}

func (l *Link) fail(attempt uint64, reason string) bool {
	if l.attempt.Load() != attempt {
		return false
	}
	l.mu.Lock()
	l.lastError = reason
	l.mu.Unlock()

	l.log.Warn("connect failed", zap.String("reason", reason))
	l.report("idle")
	return false
}

func (l *Link) Disconnect() {
	l.attempt.Inc()
	l.teardown()
	l.report("idle")
}

// SendPacket queues a frame. The callback runs once the dongle saw an
// acknowledgement, or the frame was given up on.
func (l *Link) SendPacket(data []byte, callback func(err error)) {
	l.enqueue(data, callback, false)
}

// SendPriority queues a frame ahead of everything sent with SendPacket.
func (l *Link) SendPriority(data []byte, callback func(err error)) {
	l.enqueue(data, callback, true)
}

func (l *Link) enqueue(data []byte, callback func(error), priority bool) {
	l.mu.Lock()
	w := l.worker
	l.mu.Unlock()

	if w == nil {
		if callback != nil {
			callback(ErrorNotConnected)
		}
		return
	}
	if len(data) > 32 {
		if callback != nil {
			callback(ErrorPacketTooLarge)
		}
		return
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	q := w.standard
	if priority {
		q = w.priority
	}
	if err := q.Put(outgoing{data: frame, callback: callback}); err != nil && callback != nil {
		callback(ErrorNotConnected)
	}
}

// Stats reports how many packets were acknowledged and how many were dropped
// after retries.
func (l *Link) Stats() (sent, lost uint64) {
	return l.sent.Load(), l.lost.Load()
}

func (l *Link) teardown() {
	l.mu.Lock()
	w := l.worker
	l.worker = nil
	l.mu.Unlock()
	if w == nil {
		return
	}

	close(w.stop)
	<-w.done

	for _, q := range []*queue.Queue{w.priority, w.standard} {
		for _, item := range q.Dispose() {
			if out := item.(outgoing); out.callback != nil {
				out.callback(ErrorNotConnected)
			}
		}
	}
	if err := w.dongle.Close(); err != nil {
		l.log.Debug("close dongle", zap.Error(err))
	}
}

func (l *Link) work(w *worker, attempt uint64) {
	defer close(w.done)

	var (
		pending *outgoing
		tries   int
		missing int
	)

	for {
		select {
		case <-w.stop:
			if pending != nil && pending.callback != nil {
				pending.callback(ErrorNotConnected)
			}
			return
		default:
		}

		if pending == nil {
			pending = next(w)
			tries = 0
		}

		packet := pingPacket
		if pending != nil {
			packet = pending.data
		}

		ack, payload, err := w.dongle.SendPacket(packet)
		if err != nil {
			l.log.Debug("transfer failed", zap.Error(err))
		}

		if !ack {
			missing++
			if missing >= lostAfter {
				l.log.Warn("link lost", zap.Int("missing", missing))
				if pending != nil && pending.callback != nil {
					pending.callback(ErrorNoAck)
				}
				go l.drop(attempt)
				return
			}
			if pending != nil {
				tries++
				if tries >= sendRetries {
					l.lost.Inc()
					if pending.callback != nil {
						pending.callback(ErrorNoAck)
					}
					pending = nil
				}
			}
			continue
		}

		missing = 0
		if pending != nil {
			l.sent.Inc()
			if pending.callback != nil {
				pending.callback(nil)
			}
			pending = nil
		}
		l.deliver(payload)
	}
}

// next returns the next queued packet, waiting up to a ping interval for
// one to arrive. nil means ping.
func next(w *worker) *outgoing {
	if w.priority.Len() > 0 {
		if items, err := w.priority.Get(1); err == nil && len(items) == 1 {
			out := items[0].(outgoing)
			return &out
		}
	}
	items, err := w.standard.Poll(1, pingInterval)
	if err != nil || len(items) == 0 {
		return nil
	}
	out := items[0].(outgoing)
	return &out
}

// drop ends a connection the worker found dead.
func (l *Link) drop(attempt uint64) {
	if l.attempt.Load() != attempt {
		return
	}
	l.mu.Lock()
	l.lastError = link.ErrorTimeout
	l.mu.Unlock()

	l.Disconnect()
}

func (l *Link) deliver(payload []byte) {
	if len(payload) == 0 {
		return
	}
	l.mu.Lock()
	handler := l.onPacket
	l.mu.Unlock()
	if handler != nil {
		frame := make([]byte, len(payload))
		copy(frame, payload)
		handler(frame)
	}
}

func (l *Link) report(state string) {
	l.mu.Lock()
	handler := l.onState
	l.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}
