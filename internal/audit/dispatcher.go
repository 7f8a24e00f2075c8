package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"backoffice/authcore/internal/audit/domain"
)

// writeTimeout bounds one sink write. Request cancellation never aborts a queued write.
const writeTimeout = 5 * time.Second

// Dispatcher forwards access events to a sink on a background goroutine. When the buffer is
// full the event is dropped and counted; callers are never blocked.
type Dispatcher struct {
	sink      Sink
	log       zerolog.Logger
	ch        chan *domain.AccessEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher with the given buffer size.
func NewDispatcher(sink Sink, bufferSize int, log zerolog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	d := &Dispatcher{
		sink: sink,
		log:  log,
		ch:   make(chan *domain.AccessEvent, bufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(e *domain.AccessEvent) {
	if d.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, e); err != nil {
		d.log.Warn().Err(err).Str("kind", string(e.Kind)).Str("event_id", e.ID).Msg("audit: failed to write access event")
	}
}

// Enqueue hands the event to the background writer without blocking.
func (d *Dispatcher) Enqueue(e *domain.AccessEvent) {
	if d == nil || e == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- e:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("kind", string(e.Kind)).Msg("audit: buffer full, access event dropped")
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
