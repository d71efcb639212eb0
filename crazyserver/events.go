package crazyserver

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/toc"
)

type outMessage struct {
	Source string      `json:"source"`
	Data   interface{} `json:"data"`
}

type socket struct {
	name string
	out  chan outMessage
}

// Events fans session notifications out to websocket clients. It implements
// crazyflie.Notifier and never blocks the caller: a client that cannot keep
// up loses messages.
type Events struct {
	log *zap.Logger

	mu      sync.Mutex
	sockets map[string]*socket
	nextID  uint

	sends   *atomic.Uint64
	dropped *atomic.Uint64
	failure *atomic.Value // *crazyflie.Failure, nil once connected
}

var (
	_ crazyflie.Notifier        = (*Events)(nil)
	_ crazyflie.TocNotifier     = (*Events)(nil)
	_ crazyflie.ConsoleNotifier = (*Events)(nil)
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func NewEvents(logger *zap.Logger) *Events {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Events{
		log:     logger.Named("events"),
		sockets: make(map[string]*socket),
		sends:   atomic.NewUint64(0),
		dropped: atomic.NewUint64(0),
		failure: &atomic.Value{},
	}
}

func (e *Events) DidSend() {
	e.sends.Inc()
}

func (e *Events) DidUpdateState(state crazyflie.State) {
	if state == crazyflie.StateConnected {
		e.failure.Store((*crazyflie.Failure)(nil))
	}
	e.broadcast("state", map[string]string{"state": state.String()})
}

func (e *Events) DidFail(failure crazyflie.Failure) {
	e.failure.Store(&failure)
	e.broadcast("failure", failure)
}

func (e *Events) DidLoadToc(t *toc.Toc) {
	e.broadcast("toc", map[string]interface{}{
		"port":    t.Port.String(),
		"crc":     t.CRC,
		"entries": t.Len(),
	})
}

func (e *Events) DidPrint(line string) {
	e.broadcast("console", map[string]string{"line": line})
}

// LastFailure returns the most recent connect failure, if any.
func (e *Events) LastFailure() (crazyflie.Failure, bool) {
	f, _ := e.failure.Load().(*crazyflie.Failure)
	if f == nil {
		return crazyflie.Failure{}, false
	}
	return *f, true
}

func (e *Events) Clients() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sockets)
}

func (e *Events) broadcast(source string, data interface{}) {
	message := outMessage{Source: source, Data: data}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sk := range e.sockets {
		select {
		case sk.out <- message:
		default:
			e.dropped.Inc()
		}
	}
}

func (e *Events) add() *socket {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	sk := &socket{
		name: fmt.Sprintf("websocket%d", e.nextID),
		out:  make(chan outMessage, 32),
	}
	e.sockets[sk.name] = sk
	return sk
}

func (e *Events) remove(sk *socket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sockets[sk.name]; ok {
		delete(e.sockets, sk.name)
		close(sk.out)
	}
}

// serveWebsocket streams events to one client until either side hangs up.
func (e *Events) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	sk := e.add()
	e.log.Info("client connected", zap.String("socket", sk.name), zap.String("remote", r.RemoteAddr))

	// out routine
	go func() {
		defer conn.Close()
		for message := range sk.out {
			if err := conn.WriteJSON(message); err != nil {
				e.log.Debug("write failed, disconnecting", zap.String("socket", sk.name), zap.Error(err))
				e.remove(sk)
				for range sk.out {
				}
				return
			}
		}
	}()

	// in routine, only there to notice the close
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				e.log.Info("client disconnected", zap.String("socket", sk.name))
				e.remove(sk)
				return
			}
		}
	}()
}
