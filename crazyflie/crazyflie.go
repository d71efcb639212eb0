// Package crazyflie drives one Crazyflie over an injected link: connection
// lifecycle, the periodic commander stream and the parameter and log tables.
package crazyflie

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/link"
	"github.com/mikehamer/crazyclient/toc"
)

// Notifier receives session events. Every method except DidSend is called
// from the session goroutine, in event order. DidSend is called from the
// dispatch goroutine after each commander frame.
type Notifier interface {
	DidSend()
	DidUpdateState(state State)
	DidFail(failure Failure)
}

// TocNotifier may be implemented by a Notifier to receive every table the
// session fetches on its own.
type TocNotifier interface {
	DidLoadToc(t *toc.Toc)
}

// ConsoleNotifier may be implemented by a Notifier to receive firmware
// console lines.
type ConsoleNotifier interface {
	DidPrint(line string)
}

type Config struct {
	Logger *zap.Logger

	// Link is passed to the transport on every Connect.
	Link link.Params

	// Period of the commander stream, DefaultPeriod if zero.
	Period time.Duration

	Toc         toc.Config
	FetchLogToc bool

	// ParamTimeout bounds each attempt of ReadParam and WriteParam,
	// DefaultParamTimeout if zero.
	ParamTimeout time.Duration
}

type Stats struct {
	State         string        `json:"state"`
	Dispatch      DispatchStats `json:"dispatch"`
	FramesIn      uint64        `json:"frames_in"`
	FramesDropped uint64        `json:"frames_dropped"`
	SendErrors    uint64        `json:"send_errors"`
}

type Crazyflie struct {
	link     link.Link
	notifier Notifier
	cfg      Config
	log      *zap.Logger

	machine *StateMachine
	loop    *dispatchLoop
	toc     *toc.Requester
	params  *paramWaiters
	console console

	mailbox   *queue.Queue
	done      chan struct{}
	closeOnce sync.Once

	// owned by the session goroutine
	generation uint64
	pending    func(bool)
	tocCancel  context.CancelFunc

	framesIn      *atomic.Uint64
	framesDropped *atomic.Uint64
	sendErrors    *atomic.Uint64
}

type connectEvent struct {
	callback func(bool)
}

type connectResultEvent struct {
	generation uint64
	connected  bool
}

type disconnectEvent struct{}

type stateEvent struct {
	name string
}

type packetEvent struct {
	data []byte
}

type tocEvent struct {
	generation uint64
	table      *toc.Toc
}

type closeEvent struct{}

// New binds a session to l and starts its goroutine. The session registers
// itself as the link's state and packet handler.
func New(l link.Link, notifier Notifier, cfg Config) *Crazyflie {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	cf := &Crazyflie{
		link:          l,
		notifier:      notifier,
		cfg:           cfg,
		log:           logger.Named("crazyflie"),
		mailbox:       queue.New(64),
		done:          make(chan struct{}),
		framesIn:      atomic.NewUint64(0),
		framesDropped: atomic.NewUint64(0),
		sendErrors:    atomic.NewUint64(0),
	}

	cf.machine = NewStateMachine(cf.stateChanged)
	cf.loop = newDispatchLoop(cfg.Period, cf.sendCommander, notifier.DidSend, cf.log)

	tocConfig := cfg.Toc
	if tocConfig.Logger == nil {
		tocConfig.Logger = logger
	}
	cf.toc = toc.NewRequester(cf.sendToc, tocConfig)
	cf.params = newParamWaiters(cfg.Toc.V2)

	cf.console = console{log: cf.log.Named("console")}
	if cn, ok := notifier.(ConsoleNotifier); ok {
		cf.console.lines = cn.DidPrint
	}

	l.OnStateUpdated(func(state string) {
		cf.post(stateEvent{name: state})
	})
	l.OnPacket(func(data []byte) {
		frame := make([]byte, len(data))
		copy(frame, data)
		cf.post(packetEvent{data: frame})
	})

	go cf.run()
	return cf
}

// SetCommander binds the setpoint source read by the dispatch loop. A nil
// commander makes every tick a no-op.
func (cf *Crazyflie) SetCommander(c Commander) {
	cf.loop.setCommander(c)
}

// Connect starts a connection attempt and returns immediately. A session that
// is not idle is disconnected first. The callback, if any, runs on the session
// goroutine with the outcome; an attempt superseded by Disconnect reports
// false.
func (cf *Crazyflie) Connect(callback func(connected bool)) {
	if err := cf.post(connectEvent{callback: callback}); err != nil && callback != nil {
		callback(false)
	}
}

// Disconnect tears the connection down. Safe in any state.
func (cf *Crazyflie) Disconnect() {
	cf.post(disconnectEvent{})
}

func (cf *Crazyflie) State() State {
	return cf.machine.Current()
}

// Toc returns the table fetched for port on the current connection.
func (cf *Crazyflie) Toc(port crtp.Port) (*toc.Toc, bool) {
	return cf.toc.Table(port)
}

// RequestToc fetches a table again, blocking until it completes or ctx ends.
func (cf *Crazyflie) RequestToc(ctx context.Context, port crtp.Port) (*toc.Toc, error) {
	if cf.State() != StateConnected {
		return nil, ErrorNotConnected
	}
	return cf.toc.Request(ctx, port)
}

func (cf *Crazyflie) Stats() Stats {
	return Stats{
		State:         cf.State().String(),
		Dispatch:      cf.loop.stats(),
		FramesIn:      cf.framesIn.Load(),
		FramesDropped: cf.framesDropped.Load(),
		SendErrors:    cf.sendErrors.Load(),
	}
}

// Close disconnects and stops the session goroutine. It must not be called
// from a Notifier or connect callback.
func (cf *Crazyflie) Close() {
	cf.closeOnce.Do(func() {
		if err := cf.post(closeEvent{}); err != nil {
			return
		}
		<-cf.done
	})
}

func (cf *Crazyflie) post(event interface{}) error {
	err := cf.mailbox.Put(event)
	if err != nil {
		cf.log.Debug("session closed, event dropped", zap.Error(err))
		return ErrorClosed
	}
	return nil
}

func (cf *Crazyflie) run() {
	defer close(cf.done)

	for {
		items, err := cf.mailbox.Get(16)
		if err != nil {
			return
		}
		for _, item := range items {
			if !cf.handle(item) {
				cf.mailbox.Dispose()
				return
			}
		}
	}
}

func (cf *Crazyflie) handle(event interface{}) bool {
	switch ev := event.(type) {
	case connectEvent:
		cf.handleConnect(ev.callback)
	case connectResultEvent:
		cf.handleConnectResult(ev)
	case disconnectEvent:
		cf.disconnect()
	case stateEvent:
		cf.handleState(ev.name)
	case packetEvent:
		cf.handlePacket(ev.data)
	case tocEvent:
		if ev.generation == cf.generation {
			if tn, ok := cf.notifier.(TocNotifier); ok {
				tn.DidLoadToc(ev.table)
			}
		}
	case closeEvent:
		cf.disconnect()
		return false
	}
	return true
}

func (cf *Crazyflie) handleConnect(callback func(bool)) {
	if cf.pending != nil || cf.machine.Current() != StateIdle {
		cf.log.Info("reconnecting", zap.Stringer("state", cf.machine.Current()))
		cf.disconnect()
	}

	cf.generation++
	generation := cf.generation
	cf.pending = callback
	if cf.pending == nil {
		cf.pending = func(bool) {}
	}

	cf.log.Info("connecting", zap.String("scheme", cf.cfg.Link.Scheme), zap.String("name", cf.cfg.Link.Name))
	cf.link.Connect(cf.cfg.Link, func(connected bool) {
		cf.post(connectResultEvent{generation: generation, connected: connected})
	})
}

func (cf *Crazyflie) handleConnectResult(ev connectResultEvent) {
	if ev.generation != cf.generation || cf.pending == nil {
		cf.log.Debug("stale connect result dropped", zap.Bool("connected", ev.connected))
		return
	}
	callback := cf.pending
	cf.pending = nil

	if !ev.connected {
		failure := FailureFromTransport(cf.link.LastError())
		cf.log.Warn("connect failed", zap.String("title", failure.Title), zap.String("detail", failure.Detail))

		cf.machine.Reset()
		cf.notifier.DidFail(failure)
		callback(false)
		return
	}

	// transports usually reported "connected" already
	cf.machine.Apply(StateConnected)
	callback(true)
}

func (cf *Crazyflie) handleState(name string) {
	if _, ok := ParseState(name); !ok {
		cf.log.Debug("unknown transport state", zap.String("state", name))
		return
	}
	cf.machine.HandleTransportState(name)
}

func (cf *Crazyflie) handlePacket(data []byte) {
	cf.framesIn.Inc()

	port, channel, err := crtp.DecodeHeader(data)
	if err != nil {
		cf.drop(data, err)
		return
	}

	switch {
	case port == crtp.PortParam && (channel == paramReadChannel || channel == paramWriteChannel):
		if err := cf.params.deliver(data); err != nil {
			cf.drop(data, err)
		}
	case port == crtp.PortParam || port == crtp.PortLog:
		if err := cf.toc.Handle(data); err != nil {
			cf.drop(data, err)
		}
	case port == crtp.PortConsole:
		cf.console.handle(data)
	case port == crtp.PortLink:
		// empty acks and pings
	default:
		cf.log.Debug("unhandled frame", zap.Stringer("port", port), zap.Int("size", len(data)))
	}
}

func (cf *Crazyflie) drop(data []byte, err error) {
	cf.framesDropped.Inc()
	cf.log.Debug("frame dropped", zap.Binary("frame", data), zap.Error(err))
}

// disconnect must run on the session goroutine.
func (cf *Crazyflie) disconnect() {
	cf.generation++
	if cf.pending != nil {
		callback := cf.pending
		cf.pending = nil
		defer callback(false)
	}

	cf.link.Disconnect()
	cf.loop.stop()
	cf.stopTocs()
	cf.console.reset()
	cf.machine.Reset()
}

func (cf *Crazyflie) fetchTocs() {
	ports := []crtp.Port{crtp.PortParam}
	if cf.cfg.FetchLogToc {
		ports = append(ports, crtp.PortLog)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cf.tocCancel = cancel
	generation := cf.generation

	go func() {
		for _, port := range ports {
			if ctx.Err() != nil {
				return
			}
			t, err := cf.toc.Request(ctx, port)
			if errors.Is(err, toc.ErrorTocCanceled) {
				return
			}
			if err != nil {
				cf.log.Warn("toc fetch failed", zap.Stringer("port", port), zap.Error(err))
				continue
			}
			cf.post(tocEvent{generation: generation, table: t})
		}
	}()
}

func (cf *Crazyflie) stopTocs() {
	if cf.tocCancel != nil {
		cf.tocCancel()
		cf.tocCancel = nil
	}
	cf.toc.Reset()
}

// stateChanged runs on the session goroutine for every transition. The
// dispatch loop and the table fetches live exactly as long as the connected
// state, whichever path enters or leaves it.
func (cf *Crazyflie) stateChanged(from, to State) {
	cf.log.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))

	switch {
	case to == StateConnected:
		cf.loop.start()
		cf.fetchTocs()
	case from == StateConnected:
		cf.loop.stop()
		cf.stopTocs()
	}

	cf.notifier.DidUpdateState(to)
}

func (cf *Crazyflie) sendCommander(frame []byte) {
	if p, ok := cf.link.(link.PrioritySender); ok {
		p.SendPriority(frame, cf.sent)
		return
	}
	cf.link.SendPacket(frame, cf.sent)
}

func (cf *Crazyflie) sendToc(frame []byte) error {
	cf.link.SendPacket(frame, cf.sent)
	return nil
}

func (cf *Crazyflie) sent(err error) {
	if err != nil {
		cf.sendErrors.Inc()
		cf.log.Debug("send failed", zap.Error(err))
	}
}

type nopNotifier struct{}

func (nopNotifier) DidSend()             {}
func (nopNotifier) DidUpdateState(State) {}
func (nopNotifier) DidFail(Failure)      {}
