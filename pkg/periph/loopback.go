package periph

import (
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/pump"
)

// DefaultFIFODepth is the receive FIFO of the simulated peripheral.
const DefaultFIFODepth = 32

// Loopback simulates an asynchronous UART with DMA or per-byte interrupts.
//
// Transmitted spans complete after ByteDelay per byte and are copied to
// Sink. Incoming bytes are injected with Inject; while no receive span is
// armed they wait in a hardware FIFO of FIFODepth bytes and anything beyond
// that is lost as an overrun. Fields must be set before Bind.
type Loopback struct {
	Mode      Mode
	ByteDelay time.Duration
	FIFODepth int
	// Echo feeds every transmitted byte back into the receiver.
	Echo bool
	Sink io.Writer

	rx        rxQueue
	lock      sync.Mutex
	completer Completer
	txArmed   bool
	closed    bool
}

// NewLoopback creates a DMA-mode Loopback without delay.
func NewLoopback() *Loopback {
	return &Loopback{Mode: ModeDMA, FIFODepth: DefaultFIFODepth}
}

// Bind implements Driver.
func (l *Loopback) Bind(c Completer) {
	l.lock.Lock()
	l.completer = c
	l.lock.Unlock()
	l.rx.setup(l.Mode, l.FIFODepth, l.ByteDelay)
	l.rx.bind(c.OnRXComplete)
}

// Transmit implements Driver.
func (l *Loopback) Transmit(span []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.completer == nil {
		return ErrNotBound
	}
	if l.txArmed {
		return ErrBusy
	}
	l.txArmed = true
	time.AfterFunc(l.ByteDelay*time.Duration(len(span)), func() {
		l.completeTX(span)
	})
	return nil
}

func (l *Loopback) completeTX(span []byte) {
	if sink := l.Sink; sink != nil {
		if _, err := sink.Write(span); err != nil {
			glog.Warningf("loopback sink: %v", err)
		}
	}
	if l.Echo {
		l.rx.push(span)
	}
	l.lock.Lock()
	l.txArmed = false
	c := l.completer
	l.lock.Unlock()
	c.OnTXComplete(pump.UseLastGranted)
}

// Receive implements Driver.
func (l *Loopback) Receive(span []byte) error {
	return l.rx.arm(span)
}

// Inject delivers bytes to the receiver as if they arrived on the wire.
func (l *Loopback) Inject(p []byte) {
	l.rx.push(p)
}

// Overruns returns the number of received bytes lost because neither the
// FIFO nor an armed span had room.
func (l *Loopback) Overruns() int {
	return l.rx.overrunCount()
}

// Close implements io.Closer. Armed transfers never complete afterwards.
func (l *Loopback) Close() error {
	l.lock.Lock()
	l.closed = true
	l.lock.Unlock()
	l.rx.close()
	return nil
}
