// Package mqtt bridges the serial byte stream over an MQTT broker.
//
// Output bytes are published to <prefix><device-id>/tx and input bytes are
// taken from <prefix><device-id>/rx, each payload wrapped in a protobuf
// BytesValue.
package mqtt

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"

	"github.com/robotalks/shellport/pkg/periph"
)

// Topic suffixes relative to the device.
const (
	TopicTX = "tx"
	TopicRX = "rx"
)

// EncodePayload wraps bytes in the wire envelope.
func EncodePayload(data []byte) ([]byte, error) {
	return proto.Marshal(&wrappers.BytesValue{Value: data})
}

// DecodePayload unwraps the wire envelope.
func DecodePayload(payload []byte) ([]byte, error) {
	var msg wrappers.BytesValue
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return msg.Value, nil
}

// ReadWriter implements periph.PacketReadWriter over a Queue.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewReadWriter creates the ReadWriter for device id: it publishes
// id/tx and subscribes id/rx.
func NewReadWriter(q *Queue, id string) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		SubTopic: id + "/" + TopicRX,
		PubTopic: id + "/" + TopicTX,
		packetCh: make(chan []byte, 16),
		closeCh:  make(chan struct{}),
	}
}

// ReadPacket implements periph.PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements periph.PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	payload, err := EncodePayload(pkt)
	if err != nil {
		return err
	}
	token := p.Queue.Pub(p.PubTopic, payload)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	data, err := DecodePayload(payload)
	if err != nil {
		glog.Warningf("mqtt: invalid payload on %s: %v", p.SubTopic, err)
		return
	}
	select {
	case p.packetCh <- data:
	case <-p.closeCh:
	}
}

// Driver is a periph.Driver bridging over MQTT.
type Driver struct {
	*periph.Bridge
	Queue    *Queue
	DeviceID string

	rw *ReadWriter
}

// DefaultDeviceID is the host machine id.
func DefaultDeviceID() (string, error) {
	return machineid.ID()
}

// New creates a Driver from a broker URL. The query parameter device-id
// overrides the machine id.
func New(brokerURL string) (*Driver, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(brokerURL)
	id := u.Query().Get("device-id")
	if id == "" {
		if id, err = DefaultDeviceID(); err != nil {
			return nil, fmt.Errorf("mqtt: machine id: %w", err)
		}
	}
	q := NewQueue(opts, prefix)
	rw := NewReadWriter(q, id)
	d := &Driver{Bridge: periph.NewBridge(rw), Queue: q, DeviceID: id, rw: rw}
	if mode := u.Query().Get("mode"); mode != "" {
		if d.Mode, err = periph.ParseMode(mode); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Run implements framework.Runnable: it connects, subscribes and runs the
// bridge until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	token := d.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	defer d.Queue.Close()
	token = d.Queue.Sub(d.rw.SubTopic, d.rw.handleMsg)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	glog.Infof("mqtt bridge %s%s", d.Queue.TopicPrefix, d.DeviceID)
	return d.Bridge.Run(ctx)
}
