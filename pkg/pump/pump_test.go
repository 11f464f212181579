package pump

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/shellport/pkg/critical"
	"github.com/robotalks/shellport/pkg/ring"
)

type recorder struct {
	lock  sync.Mutex
	spans [][]byte
	err   error
}

func (r *recorder) submit(span []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.spans = append(r.spans, span)
	return r.err
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.spans)
}

func (r *recorder) last() []byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.spans[len(r.spans)-1]
}

func newTestPump(dir Direction, size int) (*Pump, *ring.Buffer, *recorder) {
	buf := ring.New(make([]byte, size))
	rec := &recorder{}
	return New(dir, buf, &critical.Checker{}, rec.submit), buf, rec
}

func TestCompletion(t *testing.T) {
	require.Equal(t, 3, Known(3).Size(7))
	require.Equal(t, 0, Known(0).Size(7))
	require.Equal(t, 7, UseLastGranted.Size(7))
	require.True(t, Known(0).IsKnown())
	require.False(t, UseLastGranted.IsKnown())
}

func TestTriggerNothingToMove(t *testing.T) {
	tx, _, txRec := newTestPump(TX, 8)
	require.False(t, tx.Trigger())
	require.Zero(t, txRec.count())

	rx, rxBuf, rxRec := newTestPump(RX, 4)
	rxBuf.Write([]byte{1, 2, 3, 4})
	require.False(t, rx.Trigger())
	require.Zero(t, rxRec.count())
}

func TestTriggerWhileBusyIsNoop(t *testing.T) {
	p, buf, rec := newTestPump(TX, 8)
	buf.Write([]byte("abc"))
	require.True(t, p.Trigger())
	require.True(t, p.Busy())
	require.True(t, buf.IsBusy())

	buf.Write([]byte("def"))
	require.False(t, p.Trigger())
	require.False(t, p.Trigger())
	require.Equal(t, 1, rec.count(), "double submit")
	require.Equal(t, "abc", string(rec.last()))
}

func TestTXDrainsAcrossWrap(t *testing.T) {
	p, buf, rec := newTestPump(TX, 8)
	buf.Write(make([]byte, 6))
	buf.Read(make([]byte, 6))
	buf.Write([]byte("hello"))

	require.True(t, p.Trigger())
	require.Equal(t, "he", string(rec.last()))
	p.End(UseLastGranted)
	require.False(t, p.Busy())
	require.Equal(t, 3, p.Available())

	require.True(t, p.Trigger())
	require.Equal(t, "llo", string(rec.last()))
	p.End(Known(3))
	require.Zero(t, p.Available())
	require.Equal(t, Stats{Transfers: 2, Bytes: 5}, p.Stats())
}

func TestTXPartialCompletion(t *testing.T) {
	p, buf, rec := newTestPump(TX, 8)
	buf.Write([]byte("abcdef"))
	p.Trigger()
	p.End(Known(2))
	require.Equal(t, 4, p.Available())
	p.Trigger()
	require.Equal(t, "cdef", string(rec.last()))
}

func TestRXFillsSpan(t *testing.T) {
	p, buf, rec := newTestPump(RX, 8)
	require.True(t, p.Trigger())
	span := rec.last()
	require.Len(t, span, 8)
	require.Zero(t, buf.Used(), "armed region must not be counted")

	copy(span, "ok\r\n")
	p.End(Known(4))
	require.Equal(t, 4, p.Available())

	out := make([]byte, 8)
	n := buf.Read(out)
	require.Equal(t, "ok\r\n", string(out[:n]))
}

func TestContinuousRearms(t *testing.T) {
	p, buf, rec := newTestPump(TX, 8)
	p.Continuous = true
	buf.Write(make([]byte, 7))
	buf.Read(make([]byte, 7))
	buf.Write([]byte("wrap"))

	p.Trigger()
	require.Equal(t, "w", string(rec.last()))
	p.End(UseLastGranted)
	require.Equal(t, 2, rec.count(), "continuous mode must re-arm")
	require.Equal(t, "rap", string(rec.last()))
	p.End(UseLastGranted)
	require.Equal(t, 2, rec.count(), "nothing left to re-arm")
	require.False(t, p.Busy())
}

func TestNonContinuousWaitsForPoll(t *testing.T) {
	p, buf, rec := newTestPump(RX, 4)
	p.Trigger()
	copy(rec.last(), "abcd")
	p.End(UseLastGranted)
	require.Equal(t, 1, rec.count())

	// full: polling does nothing until the consumer makes room.
	require.False(t, p.Trigger())
	buf.Read(make([]byte, 2))
	require.True(t, p.Trigger())
	require.Len(t, rec.last(), 2)
}

func TestSubmitErrorIsFireAndForget(t *testing.T) {
	p, buf, rec := newTestPump(TX, 8)
	rec.err = errors.New("hal busy")
	buf.Write([]byte("x"))
	require.True(t, p.Trigger())
	require.True(t, p.Busy(), "failure is not inspected")
	require.Equal(t, uint64(1), p.Stats().SubmitErrors)
}

func TestEndWithoutTransferAsserts(t *testing.T) {
	var msg string
	ring.SetAssertHandler(func(m string) { msg = m })
	defer ring.SetAssertHandler(nil)
	p, _, _ := newTestPump(RX, 4)
	p.End(Known(1))
	require.Equal(t, "pump: rx completion without outstanding transfer", msg)
}

func TestCompletionBeyondGrantAsserts(t *testing.T) {
	var msg string
	ring.SetAssertHandler(func(m string) { msg = m })
	defer ring.SetAssertHandler(nil)
	p, buf, rec := newTestPump(RX, 8)
	buf.Write([]byte{1, 2, 3, 4, 5, 6, 7})
	buf.Read(make([]byte, 5))
	// free space wraps: only the byte before the end is granted.
	require.True(t, p.Trigger())
	require.Len(t, rec.last(), 1)
	require.Equal(t, 6, buf.Free())

	p.End(Known(3))
	require.Equal(t, "pump: rx completion of 3 bytes exceeds grant of 1", msg)
	require.True(t, p.Busy())
	require.Equal(t, 2, buf.Used())

	rec.last()[0] = 0xaa
	p.End(UseLastGranted)
	out := make([]byte, 8)
	n := buf.Read(out)
	require.Equal(t, []byte{6, 7, 0xaa}, out[:n])
}

func TestCompletionFromAnotherGoroutine(t *testing.T) {
	buf := ring.New(make([]byte, 16))
	sec := &critical.Mutex{}
	var (
		p    *Pump
		lock sync.Mutex
		sent []byte
	)
	p = New(TX, buf, sec, func(span []byte) error {
		go func() {
			time.Sleep(time.Millisecond)
			lock.Lock()
			sent = append(sent, span...)
			lock.Unlock()
			p.End(UseLastGranted)
		}()
		return nil
	})
	p.Continuous = true

	var want []byte
	for i := 0; i < 64; i++ {
		c := byte('a' + i%26)
		for {
			sec.Enter()
			ok := buf.PutByte(c)
			sec.Exit()
			if ok {
				break
			}
			p.Trigger()
			time.Sleep(100 * time.Microsecond)
		}
		want = append(want, c)
		p.Trigger()
	}
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(sent) == len(want)
	}, time.Second, time.Millisecond)
	require.Equal(t, want, sent)
}
