package periph

import (
	"sync"
	"time"

	"github.com/robotalks/shellport/pkg/pump"
)

// rxQueue models the receive side of a peripheral: bytes arriving while no
// span is armed wait in a bounded FIFO, an armed span completes "to idle"
// with whatever is available.
type rxQueue struct {
	lock     sync.Mutex
	mode     Mode
	depth    int
	delay    time.Duration
	complete func(pump.Completion)
	span     []byte
	sched    bool
	fifo     []byte
	overruns int
	closed   bool
}

func (q *rxQueue) setup(mode Mode, depth int, delay time.Duration) {
	q.lock.Lock()
	q.mode, q.depth, q.delay = mode, depth, delay
	q.lock.Unlock()
}

func (q *rxQueue) bind(complete func(pump.Completion)) {
	q.lock.Lock()
	q.complete = complete
	q.lock.Unlock()
}

func (q *rxQueue) arm(span []byte) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.complete == nil {
		return ErrNotBound
	}
	if q.span != nil {
		return ErrBusy
	}
	q.span = q.mode.RXSpan(span)
	if len(q.fifo) > 0 {
		q.scheduleLocked(0)
	}
	return nil
}

func (q *rxQueue) push(p []byte) {
	if len(p) == 0 {
		return
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return
	}
	depth := q.depth
	if depth <= 0 {
		depth = DefaultFIFODepth
	}
	room := depth - len(q.fifo)
	if q.span != nil {
		// the armed span drains the FIFO as fast as bytes arrive.
		room += len(q.span)
	}
	if room < 0 {
		room = 0
	}
	if len(p) > room {
		q.overruns += len(p) - room
		p = p[:room]
	}
	q.fifo = append(q.fifo, p...)
	if q.span != nil && len(p) > 0 {
		q.scheduleLocked(q.delay * time.Duration(len(p)))
	}
}

func (q *rxQueue) scheduleLocked(after time.Duration) {
	if q.sched {
		return
	}
	q.sched = true
	time.AfterFunc(after, q.deliver)
}

func (q *rxQueue) deliver() {
	q.lock.Lock()
	q.sched = false
	if q.span == nil || q.closed {
		q.lock.Unlock()
		return
	}
	n := copy(q.span, q.fifo)
	q.fifo = q.fifo[:copy(q.fifo, q.fifo[n:])]
	q.span = nil
	complete := q.complete
	q.lock.Unlock()
	complete(pump.Known(n))
}

func (q *rxQueue) overrunCount() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.overruns
}

func (q *rxQueue) close() {
	q.lock.Lock()
	q.closed = true
	q.lock.Unlock()
}
