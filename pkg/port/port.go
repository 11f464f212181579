// Package port adapts a pair of ring buffers and transfer pumps to a byte
// stream, the way a command shell reads its input and writes its output
// over an asynchronous serial peripheral.
package port

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/critical"
	"github.com/robotalks/shellport/pkg/framework"
	"github.com/robotalks/shellport/pkg/periph"
	"github.com/robotalks/shellport/pkg/pump"
	"github.com/robotalks/shellport/pkg/ring"
)

// Stats is a snapshot of the Port counters.
type Stats struct {
	TX           pump.Stats
	RX           pump.Stats
	TXPending    int
	RXPending    int
	Drops        uint64
	DroppedBytes uint64
}

// Port owns the RX and TX directions between a byte-stream user and a
// peripheral driver. All storage is allocated once by New.
type Port struct {
	drops        uint64
	droppedBytes uint64

	// OverflowHook is called with the payload of a dropped write.
	OverflowHook func(p []byte)
	// Locker serializes logical writers of the blocking write policy.
	Locker sync.Locker

	conf  Config
	sec   critical.Section
	drv   periph.Driver
	rx    *ring.Guarded
	tx    *ring.Guarded
	rxPmp *pump.Pump
	txPmp *pump.Pump
	wake  func()
}

// New creates a Port over drv and binds itself as the driver completer.
func New(conf *Config, drv periph.Driver) (*Port, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	sec, err := critical.New(conf.Section)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	p := &Port{conf: *conf, sec: sec, drv: drv}
	p.rx = ring.NewGuarded(make([]byte, conf.RXCapacity), sec)
	p.tx = ring.NewGuarded(make([]byte, conf.TXCapacity), sec)
	p.rxPmp = pump.New(pump.RX, p.rx.Buffer, sec, drv.Receive)
	p.rxPmp.Continuous = conf.RXContinuous
	p.txPmp = pump.New(pump.TX, p.tx.Buffer, sec, drv.Transmit)
	p.txPmp.Continuous = conf.TXContinuous
	drv.Bind(p)
	return p, nil
}

// Config returns the config the Port was created with.
func (p *Port) Config() Config {
	return p.conf
}

// Driver returns the peripheral driver.
func (p *Port) Driver() periph.Driver {
	return p.drv
}

// CanBlock reports whether writes use the blocking policy.
func (p *Port) CanBlock() bool {
	return p.conf.Block
}

// PollTX arms a TX transfer if output is pending.
func (p *Port) PollTX() bool {
	return p.txPmp.Trigger()
}

// PollRX arms an RX transfer if there is room for input.
func (p *Port) PollRX() bool {
	return p.rxPmp.Trigger()
}

// OnTXComplete implements periph.Completer.
func (p *Port) OnTXComplete(c pump.Completion) {
	p.txPmp.End(c)
}

// OnRXComplete implements periph.Completer.
func (p *Port) OnRXComplete(c pump.Completion) {
	p.rxPmp.End(c)
	if p.wake != nil {
		p.wake()
	}
}

// Write implements io.Writer with the configured policy, see WriteContext.
func (p *Port) Write(data []byte) (int, error) {
	return p.WriteContext(context.Background(), data)
}

// WriteString writes s.
func (p *Port) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// WriteContext queues data for transmission.
//
// Without blocking, data is queued whole or dropped whole: on drop the
// OverflowHook is called and ErrOverflow returned with 0 bytes written.
// With blocking, it keeps queuing what fits and polling TX until all data
// is queued, ctx is done or WriteTimeout expires.
func (p *Port) WriteContext(ctx context.Context, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if !p.conf.Block {
		return p.writeOrDrop(data)
	}
	defer p.lockWriter()()

	var deadline <-chan time.Time
	if p.conf.WriteTimeout > 0 {
		timer := time.NewTimer(p.conf.WriteTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	var ticker *time.Ticker
	written := 0
	for {
		written += p.tx.Write(data[written:])
		p.PollTX()
		if written == len(data) {
			return written, nil
		}
		if ticker == nil {
			ticker = time.NewTicker(p.conf.WaitInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-deadline:
			return written, ErrWriteTimeout
		case <-ticker.C:
		}
	}
}

// lockWriter takes Locker if set and returns the matching unlock.
func (p *Port) lockWriter() func() {
	if p.Locker == nil {
		return func() {}
	}
	p.Locker.Lock()
	return p.Locker.Unlock
}

func (p *Port) writeOrDrop(data []byte) (int, error) {
	p.sec.Enter()
	fits := p.tx.Buffer.Free() >= len(data)
	if fits {
		p.tx.Buffer.Write(data)
	}
	p.sec.Exit()
	if !fits {
		atomic.AddUint64(&p.drops, 1)
		atomic.AddUint64(&p.droppedBytes, uint64(len(data)))
		if hook := p.OverflowHook; hook != nil {
			hook(data)
		} else if glog.V(2) {
			glog.Infof("tx overflow: dropped %d bytes", len(data))
		}
		return 0, ErrOverflow
	}
	p.PollTX()
	return len(data), nil
}

// Printf formats into the TX buffer byte by byte. Bytes that do not fit
// are silently dropped. It returns the number of bytes queued.
func (p *Port) Printf(format string, args ...interface{}) int {
	msg := fmt.Sprintf(format, args...)
	defer p.lockWriter()()
	n := 0
	for i := 0; i < len(msg); i++ {
		if !p.tx.PutByte(msg[i]) {
			break
		}
		n++
	}
	if n > 0 {
		p.PollTX()
	}
	return n
}

// Read implements io.Reader without blocking: it returns what is
// available, possibly 0 bytes with a nil error.
func (p *Port) Read(data []byte) (int, error) {
	n := p.rx.Read(data)
	if n > 0 {
		p.PollRX()
	}
	return n, nil
}

// ReadByte returns the next received byte, or io.EOF when none is
// available yet.
func (p *Port) ReadByte() (byte, error) {
	c, ok := p.rx.GetByte()
	if !ok {
		return 0, io.EOF
	}
	p.PollRX()
	return c, nil
}

// TXPending returns the number of bytes waiting for transmission,
// including the transfer in flight.
func (p *Port) TXPending() int {
	return p.tx.Used()
}

// RXPending returns the number of received bytes not read yet.
func (p *Port) RXPending() int {
	return p.rx.Used()
}

// Reset discards received input and, when no transmission is in flight,
// pending output.
func (p *Port) Reset() {
	p.rx.Discard(p.rx.Cap())
	p.sec.Enter()
	if !p.tx.Buffer.IsBusy() {
		p.tx.Buffer.Reset()
	}
	p.sec.Exit()
	p.PollRX()
}

// Stats returns a snapshot of the counters.
func (p *Port) Stats() Stats {
	return Stats{
		TX:           p.txPmp.Stats(),
		RX:           p.rxPmp.Stats(),
		TXPending:    p.TXPending(),
		RXPending:    p.RXPending(),
		Drops:        atomic.LoadUint64(&p.drops),
		DroppedBytes: atomic.LoadUint64(&p.droppedBytes),
	}
}

// Run implements framework.Runnable and polls both directions until ctx
// is done. Use either Run or AddToLoop, not both.
func (p *Port) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.conf.PollInterval)
	defer ticker.Stop()
	for {
		p.PollRX()
		p.PollTX()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AddToLoop implements framework.LoopAdder: RX is polled before input is
// processed and TX after, and a loop iteration is triggered on every RX
// completion. It must be called before the driver starts.
func (p *Port) AddToLoop(l *framework.Loop) {
	p.wake = l.TriggerNext
	l.AddController(framework.PrLvReceive, framework.ControlFunc(func(framework.ControlContext) error {
		p.PollRX()
		return nil
	}))
	l.AddController(framework.PrLvTransmit, framework.ControlFunc(func(framework.ControlContext) error {
		p.PollTX()
		return nil
	}))
	if r, ok := p.drv.(framework.Runnable); ok {
		l.AddRunnable(framework.NamedRun("driver", r))
	}
}

// Close closes the driver if it is an io.Closer.
func (p *Port) Close() error {
	if c, ok := p.drv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
