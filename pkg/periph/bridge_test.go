package periph

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type chanPackets struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newChanPackets() *chanPackets {
	return &chanPackets{
		in:     make(chan []byte, 4),
		out:    make(chan []byte, 4),
		closed: make(chan struct{}),
	}
}

func (c *chanPackets) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-c.in:
		return pkt, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanPackets) WritePacket(pkt []byte) error {
	c.out <- append([]byte(nil), pkt...)
	return nil
}

func (c *chanPackets) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func startBridge(t *testing.T) (*Bridge, *chanPackets, *completions, func()) {
	rw := newChanPackets()
	b := NewBridge(rw)
	c := &completions{}
	b.Bind(c)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return b, rw, c, func() {
		cancel()
		require.Equal(t, context.Canceled, <-done)
	}
}

func TestBridgeTransmit(t *testing.T) {
	b, rw, c, stop := startBridge(t)
	defer stop()

	require.NoError(t, b.Transmit([]byte("hello")))
	select {
	case pkt := <-rw.out:
		require.Equal(t, "hello", string(pkt))
	case <-time.After(time.Second):
		t.Fatal("packet not written")
	}
	waitCounts(t, c, 1, 0)
}

func TestBridgeReceive(t *testing.T) {
	b, rw, c, stop := startBridge(t)
	defer stop()

	rw.in <- []byte("abcdef")
	span := make([]byte, 4)
	// the packet may still be in flight, arming first or later is the same.
	require.NoError(t, b.Receive(span))
	waitCounts(t, c, 0, 1)
	n := c.lastRX().Size(4)
	got := append([]byte(nil), span[:n]...)

	for len(got) < 6 {
		_, rxCount := c.counts()
		require.NoError(t, b.Receive(span))
		waitCounts(t, c, 0, rxCount+1)
		n = c.lastRX().Size(4)
		got = append(got, span[:n]...)
	}
	require.Equal(t, "abcdef", string(got))
}

func TestBridgeNotBound(t *testing.T) {
	b := NewBridge(newChanPackets())
	require.Equal(t, ErrNotBound, b.Transmit([]byte("x")))
	require.Equal(t, ErrNotBound, b.Receive(make([]byte, 1)))
}

func TestBridgeStopsOnReadError(t *testing.T) {
	rw := newChanPackets()
	b := NewBridge(rw)
	b.Bind(&completions{})
	rw.Close()
	require.Equal(t, io.EOF, b.Run(context.Background()))
}
