package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/shellport/pkg/critical"
)

func TestGuardedProducerConsumer(t *testing.T) {
	g := NewGuarded(make([]byte, 32), &critical.Mutex{})
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if g.PutByte(byte(i)) {
				i++
			}
		}
	}()

	got := make([]byte, 0, total)
	buf := make([]byte, 7)
	for len(got) < total {
		n := g.Read(buf)
		got = append(got, buf[:n]...)
	}
	wg.Wait()
	for i, c := range got {
		require.Equal(t, byte(i), c, "byte %d out of order", i)
	}
}

func TestGuardedBasics(t *testing.T) {
	g := NewGuarded(make([]byte, 4), &critical.Checker{})
	require.Equal(t, 3, g.Write([]byte("abc")))
	c, ok := g.GetByte()
	require.True(t, ok)
	require.Equal(t, byte('a'), c)
	require.Equal(t, 2, g.Used())
	require.Equal(t, 2, g.Free())
	g.Reset()
	require.Zero(t, g.Used())
}
