package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/shellport/pkg/periph"
	"github.com/robotalks/shellport/pkg/periph/mqtt"
	"github.com/robotalks/shellport/pkg/periph/websocket"
)

func TestOpenLoopback(t *testing.T) {
	conf := NewConfig()
	conf.URL = "loopback://?echo=true&mode=it&byte-delay=2ms&fifo=8"
	drv, err := conf.Open()
	require.NoError(t, err)
	l, ok := drv.(*periph.Loopback)
	require.True(t, ok)
	require.True(t, l.Echo)
	require.Equal(t, periph.ModeIT, l.Mode)
	require.Equal(t, 2*time.Millisecond, l.ByteDelay)
	require.Equal(t, 8, l.FIFODepth)
}

func TestOpenByScheme(t *testing.T) {
	conf := &Config{URL: "ws://127.0.0.1:0/tty"}
	drv, err := conf.Open()
	require.NoError(t, err)
	ws, ok := drv.(*websocket.Server)
	require.True(t, ok)
	require.Equal(t, "/tty", ws.Path)

	conf.URL = "mqtt://localhost:1883/shellport/?device-id=board"
	drv, err = conf.Open()
	require.NoError(t, err)
	_, ok = drv.(*mqtt.Driver)
	require.True(t, ok)
}

func TestOpenErrors(t *testing.T) {
	tests := []string{
		"loopback://?echo=maybe",
		"loopback://?mode=poll",
		"loopback://?byte-delay=fast",
		"serial:///dev/ttyS0?baud=0",
		"::bad",
	}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			_, err := (&Config{URL: u}).Open()
			require.Error(t, err)
		})
	}
	_, err := (&Config{URL: "can://bus0"}).Open()
	require.True(t, errors.Is(err, ErrUnknownTransport))
}
