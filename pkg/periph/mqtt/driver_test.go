package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/shellport/pkg/periph"
)

func TestClientOptionsFromURL(t *testing.T) {
	tests := []struct {
		url    string
		broker string
		prefix string
		client string
		user   string
	}{
		{"mqtt://localhost:1883/shellport/", "tcp://localhost:1883", "shellport/", "", ""},
		{"mqtt://localhost:1883/a/b", "tcp://localhost:1883", "a/b/", "", ""},
		{"ssl://u:p@broker:8883?client-id=me", "ssl://broker:8883", "", "me", "u"},
	}
	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			opts, prefix, err := ClientOptionsFromURL(test.url)
			require.NoError(t, err)
			require.Len(t, opts.Servers, 1)
			require.Equal(t, test.broker, opts.Servers[0].String())
			require.Equal(t, test.prefix, prefix)
			require.Equal(t, test.client, opts.ClientID)
			require.Equal(t, test.user, opts.Username)
		})
	}
}

func TestPayloadEnvelope(t *testing.T) {
	payload, err := EncodePayload([]byte("ls\r\n"))
	require.NoError(t, err)
	require.NotEqual(t, "ls\r\n", string(payload))
	data, err := DecodePayload(payload)
	require.NoError(t, err)
	require.Equal(t, "ls\r\n", string(data))

	_, err = DecodePayload([]byte{0xff, 0xff})
	require.Error(t, err)
}

func TestReadWriterDeliversDecodedPackets(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://localhost:1883/dev/")
	require.NoError(t, err)
	rw := NewReadWriter(NewQueue(opts, prefix), "board1")
	require.Equal(t, "board1/rx", rw.SubTopic)
	require.Equal(t, "board1/tx", rw.PubTopic)

	payload, err := EncodePayload([]byte("help"))
	require.NoError(t, err)
	rw.handleMsg(rw.SubTopic, payload)
	rw.handleMsg(rw.SubTopic, []byte{0xff, 0xff})
	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "help", string(pkt))

	require.NoError(t, rw.Close())
	_, err = rw.ReadPacket()
	require.Error(t, err)
}

func TestNewWithDeviceID(t *testing.T) {
	d, err := New("mqtt://localhost:1883/shellport?device-id=dev7&mode=it")
	require.NoError(t, err)
	require.Equal(t, "dev7", d.DeviceID)
	require.Equal(t, periph.ModeIT, d.Mode)
	require.Equal(t, "shellport/", d.Queue.TopicPrefix)

	_, err = New("mqtt://localhost:1883/?device-id=x&mode=bogus")
	require.Error(t, err)
}
