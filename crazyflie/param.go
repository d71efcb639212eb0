package crazyflie

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/crtp"
	"github.com/mikehamer/crazyclient/toc"
)

const (
	// DefaultParamTimeout is how long one attempt waits for the firmware.
	DefaultParamTimeout = 100 * time.Millisecond
	paramAttempts       = 3
)

type paramKey struct {
	channel crtp.Channel
	id      uint16
}

// paramWaiters matches value responses to the callers blocked on them.
type paramWaiters struct {
	v2 bool

	mu      sync.Mutex
	waiting map[paramKey][]chan []byte
}

func newParamWaiters(v2 bool) *paramWaiters {
	return &paramWaiters{v2: v2, waiting: make(map[paramKey][]chan []byte)}
}

func (w *paramWaiters) wait(key paramKey) chan []byte {
	ch := make(chan []byte, 1)
	w.mu.Lock()
	w.waiting[key] = append(w.waiting[key], ch)
	w.mu.Unlock()
	return ch
}

func (w *paramWaiters) forget(key paramKey, ch chan []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := w.waiting[key]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.waiting, key)
		return
	}
	w.waiting[key] = list
}

// deliver hands a value frame to everyone waiting for it. Unsolicited
// responses are ignored.
func (w *paramWaiters) deliver(frame []byte) error {
	resp := &paramResponse{}
	if err := resp.LoadFromBytes(frame, w.v2); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.waiting[paramKey{resp.Channel, resp.ID}] {
		select {
		case ch <- resp.Data:
		default:
		}
	}
	return nil
}

// ReadParam fetches the current value of a parameter by its "group.name".
// The parameter table must have been loaded on this connection.
func (cf *Crazyflie) ReadParam(ctx context.Context, name string) (interface{}, error) {
	entry, err := cf.paramEntry(name)
	if err != nil {
		return nil, err
	}

	request := &paramRequestRead{ID: entry.ID, V2: cf.cfg.Toc.V2}
	data, err := cf.awaitParam(ctx, request, paramKey{paramReadChannel, entry.ID})
	if err != nil {
		return nil, err
	}
	return toc.Decode(entry.Type, data)
}

// WriteParam sets a parameter, converting value to the parameter's type.
// It returns once the firmware has acknowledged the write.
func (cf *Crazyflie) WriteParam(ctx context.Context, name string, value float64) error {
	entry, err := cf.paramEntry(name)
	if err != nil {
		return err
	}
	if entry.ReadOnly {
		return ErrorParamReadOnly
	}

	data, err := toc.Encode(entry.Type, value)
	if err != nil {
		return err
	}

	request := &paramRequestWrite{ID: entry.ID, V2: cf.cfg.Toc.V2, Data: data}
	if _, err := cf.awaitParam(ctx, request, paramKey{paramWriteChannel, entry.ID}); err != nil {
		return err
	}

	cf.log.Info("param written", zap.String("name", name), zap.Float64("value", value))
	return nil
}

func (cf *Crazyflie) paramEntry(name string) (toc.Entry, error) {
	if cf.State() != StateConnected {
		return toc.Entry{}, ErrorNotConnected
	}
	table, ok := cf.toc.Table(crtp.PortParam)
	if !ok {
		return toc.Entry{}, ErrorTocNotLoaded
	}
	entry, ok := table.Find(name)
	if !ok {
		return toc.Entry{}, ErrorParamNotFound
	}
	return entry, nil
}

func (cf *Crazyflie) awaitParam(ctx context.Context, request crtp.RequestPacket, key paramKey) ([]byte, error) {
	ch := cf.params.wait(key)
	defer cf.params.forget(key, ch)

	frame := crtp.Frame(request)
	timeout := cf.cfg.ParamTimeout
	if timeout <= 0 {
		timeout = DefaultParamTimeout
	}

	for attempt := 0; attempt < paramAttempts; attempt++ {
		cf.link.SendPacket(frame, cf.sent)

		timer := time.NewTimer(timeout)
		select {
		case data := <-ch:
			timer.Stop()
			return data, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			cf.log.Debug("param request timed out", zap.Uint16("id", key.id), zap.Int("attempt", attempt+1))
		}
	}
	return nil, ErrorNoResponse
}
