package periph

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/shellport/pkg/pump"
)

type completions struct {
	lock sync.Mutex
	tx   []pump.Completion
	rx   []pump.Completion
}

func (c *completions) OnTXComplete(v pump.Completion) {
	c.lock.Lock()
	c.tx = append(c.tx, v)
	c.lock.Unlock()
}

func (c *completions) OnRXComplete(v pump.Completion) {
	c.lock.Lock()
	c.rx = append(c.rx, v)
	c.lock.Unlock()
}

func (c *completions) counts() (int, int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.tx), len(c.rx)
}

func (c *completions) lastRX() pump.Completion {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rx[len(c.rx)-1]
}

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func waitCounts(t *testing.T, c *completions, tx, rx int) {
	require.Eventually(t, func() bool {
		a, b := c.counts()
		return a == tx && b == rx
	}, time.Second, time.Millisecond)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		mode Mode
		err  bool
	}{
		{"", ModeDMA, false},
		{"dma", ModeDMA, false},
		{"it", ModeIT, false},
		{"irq", ModeDMA, true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			m, err := ParseMode(test.in)
			if test.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.mode, m)
			require.Equal(t, m.String(), map[Mode]string{ModeDMA: "dma", ModeIT: "it"}[m])
		})
	}
	require.Len(t, ModeIT.RXSpan(make([]byte, 8)), 1)
	require.Len(t, ModeDMA.RXSpan(make([]byte, 8)), 8)
	require.Len(t, ModeIT.RXSpan(nil), 0)
}

func TestLoopbackNotBound(t *testing.T) {
	l := NewLoopback()
	require.Equal(t, ErrNotBound, l.Transmit([]byte("x")))
	require.Equal(t, ErrNotBound, l.Receive(make([]byte, 1)))
}

func TestLoopbackTransmit(t *testing.T) {
	l := NewLoopback()
	sink := &syncBuffer{}
	l.Sink = sink
	c := &completions{}
	l.Bind(c)

	require.NoError(t, l.Transmit([]byte("hello")))
	waitCounts(t, c, 1, 0)
	require.Equal(t, "hello", sink.String())
	require.False(t, c.tx[0].IsKnown())
}

func TestLoopbackTransmitBusy(t *testing.T) {
	l := NewLoopback()
	l.ByteDelay = 10 * time.Millisecond
	c := &completions{}
	l.Bind(c)
	require.NoError(t, l.Transmit([]byte("ab")))
	require.Equal(t, ErrBusy, l.Transmit([]byte("c")))
	waitCounts(t, c, 1, 0)
	require.NoError(t, l.Transmit([]byte("c")))
	waitCounts(t, c, 2, 0)
}

func TestLoopbackReceiveDMA(t *testing.T) {
	l := NewLoopback()
	c := &completions{}
	l.Bind(c)

	span := make([]byte, 8)
	require.NoError(t, l.Receive(span))
	require.Equal(t, ErrBusy, l.Receive(make([]byte, 8)))
	l.Inject([]byte("hi"))
	waitCounts(t, c, 0, 1)
	require.Equal(t, 2, c.lastRX().Size(8))
	require.Equal(t, "hi", string(span[:2]))
}

func TestLoopbackReceiveIT(t *testing.T) {
	l := NewLoopback()
	l.Mode = ModeIT
	c := &completions{}
	l.Bind(c)

	l.Inject([]byte("ab"))
	var got []byte
	for i := 1; i <= 2; i++ {
		span := make([]byte, 8)
		require.NoError(t, l.Receive(span))
		waitCounts(t, c, 0, i)
		n := c.lastRX().Size(8)
		require.Equal(t, 1, n)
		got = append(got, span[:n]...)
	}
	require.Equal(t, "ab", string(got))
}

func TestLoopbackFIFOOverrun(t *testing.T) {
	l := NewLoopback()
	l.FIFODepth = 4
	c := &completions{}
	l.Bind(c)

	l.Inject([]byte("abcdef"))
	require.Equal(t, 2, l.Overruns())

	span := make([]byte, 8)
	require.NoError(t, l.Receive(span))
	waitCounts(t, c, 0, 1)
	require.Equal(t, "abcd", string(span[:c.lastRX().Size(8)]))
}

func TestLoopbackEcho(t *testing.T) {
	l := NewLoopback()
	l.Echo = true
	c := &completions{}
	l.Bind(c)

	require.NoError(t, l.Transmit([]byte("ping")))
	waitCounts(t, c, 1, 0)
	span := make([]byte, 8)
	require.NoError(t, l.Receive(span))
	waitCounts(t, c, 1, 1)
	require.Equal(t, "ping", string(span[:c.lastRX().Size(8)]))
}

func TestLoopbackClosed(t *testing.T) {
	l := NewLoopback()
	l.Bind(&completions{})
	require.NoError(t, l.Close())
	require.Equal(t, ErrClosed, l.Transmit([]byte("x")))
	require.Equal(t, ErrClosed, l.Receive(make([]byte, 1)))
}
