package periph

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/pump"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// DefaultBridgeFIFODepth is the receive backlog of a Bridge.
const DefaultBridgeFIFODepth = 4096

// Bridge turns a packet transport into a Driver. Each TX span is written
// as one packet and completes when the write returns. Received packets are
// queued and complete the armed RX span with the number of bytes copied.
//
// Bridge must be started with Run.
type Bridge struct {
	Mode      Mode
	FIFODepth int

	rw        PacketReadWriter
	rx        rxQueue
	txCh      chan []byte
	completer Completer
	lock      sync.Mutex
}

// NewBridge creates a Bridge over rw.
func NewBridge(rw PacketReadWriter) *Bridge {
	return &Bridge{
		FIFODepth: DefaultBridgeFIFODepth,
		rw:        rw,
		txCh:      make(chan []byte, 1),
	}
}

// Bind implements Driver.
func (b *Bridge) Bind(c Completer) {
	b.lock.Lock()
	b.completer = c
	b.lock.Unlock()
	b.rx.setup(b.Mode, b.FIFODepth, 0)
	b.rx.bind(c.OnRXComplete)
}

// Transmit implements Driver.
func (b *Bridge) Transmit(span []byte) error {
	b.lock.Lock()
	bound := b.completer != nil
	b.lock.Unlock()
	if !bound {
		return ErrNotBound
	}
	select {
	case b.txCh <- span:
		return nil
	default:
		return ErrBusy
	}
}

// Receive implements Driver.
func (b *Bridge) Receive(span []byte) error {
	return b.rx.arm(span)
}

// Overruns returns the number of received bytes dropped because the
// backlog was full.
func (b *Bridge) Overruns() int {
	return b.rx.overrunCount()
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.readLoop()
	}()
	defer b.rx.close()
	for {
		select {
		case <-ctx.Done():
			b.close()
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case span := <-b.txCh:
			if err := b.rw.WritePacket(span); err != nil {
				glog.Warningf("bridge write %d bytes: %v", len(span), err)
			}
			b.lock.Lock()
			c := b.completer
			b.lock.Unlock()
			c.OnTXComplete(pump.UseLastGranted)
		}
	}
}

func (b *Bridge) readLoop() error {
	for {
		pkt, err := b.rw.ReadPacket()
		if err != nil {
			return err
		}
		if glog.V(4) {
			glog.Infof("bridge received %d bytes", len(pkt))
		}
		b.rx.push(pkt)
	}
}

func (b *Bridge) close() error {
	if closer, ok := b.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close implements io.Closer.
func (b *Bridge) Close() error {
	b.rx.close()
	return b.close()
}
