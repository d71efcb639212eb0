package toc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crtp"
)

const (
	DefaultTimeout = 500 * time.Millisecond
	DefaultRetries = 2
)

// Cache stores complete tables keyed by the CRC the firmware announces.
type Cache interface {
	Load(port crtp.Port, crc uint32) ([]Entry, error)
	Save(port crtp.Port, crc uint32, entries []Entry) error
}

type Config struct {
	// Timeout is the quiet window after which missing entries are requested
	// again, or the request fails once Retries is exhausted.
	Timeout time.Duration
	Retries int
	// V2 selects the 16-bit TOC commands of newer firmware.
	V2     bool
	Cache  Cache
	Logger *zap.Logger
}

// Requester fetches the parameter and log tables. Responses are fed to Handle
// by whoever owns the inbound side of the link.
type Requester struct {
	send func([]byte) error
	cfg  Config
	log  *zap.Logger

	mu      sync.Mutex
	fetches map[crtp.Port]*fetch
	tables  map[crtp.Port]*Toc
}

type fetch struct {
	count    int // -1 until the info response arrived
	crc      uint32
	entries  map[uint16]Entry
	progress chan struct{}
	canceled chan struct{}
}

func NewRequester(send func([]byte) error, cfg Config) *Requester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Requester{
		send:    send,
		cfg:     cfg,
		log:     logger.Named("toc"),
		fetches: make(map[crtp.Port]*fetch),
		tables:  make(map[crtp.Port]*Toc),
	}
}

// Request fetches the whole table for port and blocks until it is complete.
func (r *Requester) Request(ctx context.Context, port crtp.Port) (*Toc, error) {
	if port != crtp.PortParam && port != crtp.PortLog {
		return nil, ErrorUnsupportedPort
	}

	f := &fetch{
		count:    -1,
		entries:  make(map[uint16]Entry),
		progress: make(chan struct{}, 1),
		canceled: make(chan struct{}),
	}

	r.mu.Lock()
	if _, busy := r.fetches[port]; busy {
		r.mu.Unlock()
		return nil, ErrorTocBusy
	}
	r.fetches[port] = f
	r.mu.Unlock()
	defer r.forget(port, f)

	r.transmit(&RequestGetInfo{Table: port, V2: r.cfg.V2})

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	attempts := 0
	itemsRequested := false

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrorTocCanceled, ctx.Err())

		case <-f.canceled:
			return nil, ErrorTocCanceled

		case <-f.progress:
			count, crc, have := r.progressOf(f)
			if count < 0 {
				continue
			}

			if !itemsRequested {
				itemsRequested = true
				if entries := r.loadCached(port, crc, count); entries != nil {
					return r.complete(port, f, crc, entries)
				}
				r.requestMissing(port, f)
			}

			if have == count {
				t, err := r.complete(port, f, crc, r.entriesOf(f))
				if err != nil {
					return nil, err
				}
				r.saveCached(t)
				return t, nil
			}

			attempts = 0
			resetTimer(timer, r.cfg.Timeout)

		case <-timer.C:
			if attempts >= r.cfg.Retries {
				count, _, have := r.progressOf(f)
				r.log.Warn("toc request timed out",
					zap.Stringer("port", port),
					zap.Int("count", count),
					zap.Int("received", have))
				return nil, ErrorTocTimeout
			}
			attempts++

			if count, _, _ := r.progressOf(f); count < 0 {
				r.transmit(&RequestGetInfo{Table: port, V2: r.cfg.V2})
			} else {
				r.requestMissing(port, f)
			}
			timer.Reset(r.cfg.Timeout)
		}
	}
}

// Handle ingests one inbound frame. Frames for other ports or channels, and
// frames nobody is waiting for, are ignored.
func (r *Requester) Handle(frame []byte) error {
	port, channel, err := crtp.DecodeHeader(frame)
	if err != nil {
		return err
	}
	if channel != tocChannel || (port != crtp.PortParam && port != crtp.PortLog) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.fetches[port]
	if !ok {
		return nil
	}
	if len(frame) < 2 {
		return ErrorTruncatedPayload
	}

	switch {
	case isInfo(frame[1]):
		info := &ResponseGetInfo{}
		if err := info.LoadFromBytes(frame); err != nil {
			return err
		}
		if f.count >= 0 {
			return nil // retransmitted
		}
		f.count = info.Count
		f.crc = info.CRC
		for id := range f.entries {
			if int(id) >= f.count {
				delete(f.entries, id)
			}
		}

	case isItem(frame[1]):
		item := &ResponseGetItem{Table: port}
		if err := item.LoadFromBytes(frame); err != nil {
			return err
		}
		id := item.Entry.ID
		if f.count >= 0 && int(id) >= f.count {
			return nil
		}
		if _, seen := f.entries[id]; seen {
			return nil
		}
		f.entries[id] = item.Entry

	default:
		return nil
	}

	select {
	case f.progress <- struct{}{}:
	default:
	}
	return nil
}

// Table returns the last complete table fetched for port.
func (r *Requester) Table(port crtp.Port) (*Toc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[port]
	return t, ok
}

// Reset cancels running requests and drops every table.
func (r *Requester) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for port, f := range r.fetches {
		close(f.canceled)
		delete(r.fetches, port)
	}
	r.tables = make(map[crtp.Port]*Toc)
}

func (r *Requester) forget(port crtp.Port, f *fetch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetches[port] == f {
		delete(r.fetches, port)
	}
}

func (r *Requester) progressOf(f *fetch) (int, uint32, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f.count, f.crc, len(f.entries)
}

func (r *Requester) entriesOf(f *fetch) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		entries = append(entries, e)
	}
	return entries
}

func (r *Requester) requestMissing(port crtp.Port, f *fetch) {
	r.mu.Lock()
	var missing []uint16
	for id := 0; id < f.count; id++ {
		if _, ok := f.entries[uint16(id)]; !ok {
			missing = append(missing, uint16(id))
		}
	}
	r.mu.Unlock()

	for _, id := range missing {
		r.transmit(&RequestGetItem{Table: port, ID: id, V2: r.cfg.V2})
	}
}

func (r *Requester) complete(port crtp.Port, f *fetch, crc uint32, entries []Entry) (*Toc, error) {
	t := newToc(port, crc, entries)

	r.mu.Lock()
	// a Reset while we were finishing wins
	select {
	case <-f.canceled:
		r.mu.Unlock()
		return nil, ErrorTocCanceled
	default:
		r.tables[port] = t
	}
	r.mu.Unlock()

	r.log.Info("loaded toc",
		zap.Stringer("port", port),
		zap.Int("size", t.Len()),
		zap.String("crc", fmt.Sprintf("%08X", crc)))
	return t, nil
}

func (r *Requester) transmit(request crtp.RequestPacket) {
	if err := r.send(crtp.Frame(request)); err != nil {
		r.log.Debug("toc request not sent", zap.Error(err))
	}
}

func (r *Requester) loadCached(port crtp.Port, crc uint32, count int) []Entry {
	if r.cfg.Cache == nil {
		return nil
	}
	entries, err := r.cfg.Cache.Load(port, crc)
	if err != nil || len(entries) != count {
		return nil
	}
	return entries
}

func (r *Requester) saveCached(t *Toc) {
	if r.cfg.Cache == nil {
		return
	}
	if err := r.cfg.Cache.Save(t.Port, t.CRC, t.Entries); err != nil {
		r.log.Warn("error while caching", zap.Error(err))
	}
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
