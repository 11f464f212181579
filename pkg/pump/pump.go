// Package pump drives one outstanding contiguous peripheral transfer at a
// time per direction over a ring.Buffer.
//
// A transfer is armed by Trigger, which hands the peripheral a span of the
// buffer storage, and completed by End, called from the completion context
// (an interrupt handler, or a driver goroutine on a host). Between the two
// the buffer is busy and a second Trigger is a no-op.
package pump

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/critical"
	"github.com/robotalks/shellport/pkg/ring"
)

// Direction is the transfer direction.
type Direction int

const (
	// TX drains the buffer into the peripheral.
	TX Direction = iota
	// RX fills the buffer from the peripheral.
	RX
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == RX {
		return "rx"
	}
	return "tx"
}

// Submitter hands a span to the peripheral. It must return immediately;
// completion is reported separately through Pump.End.
type Submitter func(span []byte) error

// Stats are cumulative counters of a Pump.
type Stats struct {
	Transfers    uint64
	Bytes        uint64
	SubmitErrors uint64
}

// Pump is the per-direction transfer state machine.
type Pump struct {
	stats Stats // first for 64-bit atomic alignment

	// Continuous re-arms the next transfer from End without waiting
	// for the next poll.
	Continuous bool

	dir    Direction
	buf    *ring.Buffer
	sec    critical.Section
	submit Submitter
	armed  int32
}

// New creates a Pump over buf. sec must be the section used by every other
// party mutating buf.
func New(dir Direction, buf *ring.Buffer, sec critical.Section, submit Submitter) *Pump {
	ring.Assert(buf != nil, "pump: nil buffer")
	ring.Assert(submit != nil, "pump: nil submitter")
	if sec == nil {
		sec = critical.Nop{}
	}
	return &Pump{dir: dir, buf: buf, sec: sec, submit: submit}
}

// Direction returns the direction.
func (p *Pump) Direction() Direction {
	return p.dir
}

// Trigger arms a transfer if none is outstanding and there is something to
// move: used bytes for TX, free space for RX. It returns whether a transfer
// was handed to the peripheral. It is safe to call at any rate from any
// context.
func (p *Pump) Trigger() bool {
	p.sec.Enter()
	if p.buf.IsBusy() || p.idle() {
		p.sec.Exit()
		return false
	}
	p.buf.MarkBusy()
	var span ring.Span
	if p.dir == TX {
		span = p.buf.LinearReadSetup()
	} else {
		span = p.buf.LinearWriteSetup()
	}
	atomic.StoreInt32(&p.armed, 1)
	p.sec.Exit()

	// outside the section: the driver call may be slow or take locks.
	if err := p.submit(span.Data); err != nil {
		atomic.AddUint64(&p.stats.SubmitErrors, 1)
		glog.Warningf("%s submit %d bytes failed: %v", p.dir, span.Len(), err)
	} else if glog.V(4) {
		glog.Infof("%s armed %d bytes", p.dir, span.Len())
	}
	return true
}

func (p *Pump) idle() bool {
	if p.dir == TX {
		return p.buf.Used() == 0
	}
	return p.buf.Free() == 0
}

// End completes the outstanding transfer with the size reported by the
// peripheral, or the size granted by Trigger for UseLastGranted. It must be
// called exactly once per armed transfer.
func (p *Pump) End(c Completion) {
	p.sec.Enter()
	if !p.buf.IsBusy() {
		p.sec.Exit()
		ring.Assert(false, "pump: "+p.dir.String()+" completion without outstanding transfer")
		return
	}
	granted := p.buf.LastLinearSize()
	n := c.Size(granted)
	if n < 0 || n > granted {
		p.sec.Exit()
		ring.Assert(false, fmt.Sprintf("pump: %s completion of %d bytes exceeds grant of %d", p.dir, n, granted))
		return
	}
	if p.dir == TX {
		p.buf.LinearReadDone(n)
	} else {
		p.buf.LinearWriteDone(n)
	}
	p.buf.MarkIdle()
	atomic.StoreInt32(&p.armed, 0)
	p.sec.Exit()

	atomic.AddUint64(&p.stats.Transfers, 1)
	atomic.AddUint64(&p.stats.Bytes, uint64(n))
	if glog.V(4) {
		glog.Infof("%s done %d bytes", p.dir, n)
	}

	if p.Continuous {
		p.Trigger()
	}
}

// Available returns the number of used bytes in the buffer.
func (p *Pump) Available() (n int) {
	p.sec.Enter()
	n = p.buf.Used()
	p.sec.Exit()
	return
}

// Busy reports whether a transfer is outstanding.
func (p *Pump) Busy() bool {
	return atomic.LoadInt32(&p.armed) != 0
}

// Stats returns a snapshot of the counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Transfers:    atomic.LoadUint64(&p.stats.Transfers),
		Bytes:        atomic.LoadUint64(&p.stats.Bytes),
		SubmitErrors: atomic.LoadUint64(&p.stats.SubmitErrors),
	}
}
