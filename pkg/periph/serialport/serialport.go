// Package serialport drives a host serial port (a USB UART, a PTY) with
// the periph.Driver contract.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/robotalks/shellport/pkg/periph"
)

// Defaults of Config.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 10 * time.Millisecond
	readChunk          = 256
)

// Config holds configuration for opening a serial port.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Mode        periph.Mode
}

// ConfigFromURL parses serial:///dev/ttyUSB0?baud=115200&mode=it.
func ConfigFromURL(u *url.URL) (Config, error) {
	conf := Config{Port: u.Path, BaudRate: DefaultBaudRate, ReadTimeout: DefaultReadTimeout}
	if conf.Port == "" {
		conf.Port = u.Opaque
	}
	q := u.Query()
	if val := q.Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return conf, fmt.Errorf("invalid baud rate %q", val)
		}
		conf.BaudRate = baud
	}
	if val := q.Get("read-timeout"); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return conf, fmt.Errorf("invalid read timeout %q: %w", val, err)
		}
		conf.ReadTimeout = timeout
	}
	mode, err := periph.ParseMode(q.Get("mode"))
	if err != nil {
		return conf, err
	}
	conf.Mode = mode
	return conf, nil
}

// Stream implements periph.PacketReadWriter over a byte stream. Each read
// returns what arrived within the read timeout, which is how an idle line
// ends a DMA reception.
type Stream struct {
	rwc    io.ReadWriteCloser
	buf    []byte
	closed int32
}

// NewStream wraps rwc.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{rwc: rwc, buf: make([]byte, readChunk)}
}

// ReadPacket implements periph.PacketReader.
func (s *Stream) ReadPacket() ([]byte, error) {
	for {
		n, err := s.rwc.Read(s.buf)
		if atomic.LoadInt32(&s.closed) != 0 {
			return nil, io.EOF
		}
		if n > 0 {
			return append([]byte(nil), s.buf[:n]...), nil
		}
		if err != nil {
			return nil, err
		}
		// read timeout without data
	}
}

// WritePacket implements periph.PacketWriter.
func (s *Stream) WritePacket(pkt []byte) error {
	_, err := s.rwc.Write(pkt)
	return err
}

// Close implements io.Closer.
func (s *Stream) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.rwc.Close()
}

// Driver is a serial port periph.Driver.
type Driver struct {
	*periph.Bridge
	Name string
}

// NewDriver creates a Driver over an already opened stream.
func NewDriver(name string, rwc io.ReadWriteCloser, mode periph.Mode) *Driver {
	d := &Driver{Bridge: periph.NewBridge(NewStream(rwc)), Name: name}
	d.Mode = mode
	return d
}

// Open opens the serial port, 8N1.
func Open(conf Config) (*Driver, error) {
	if conf.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	if conf.BaudRate == 0 {
		conf.BaudRate = DefaultBaudRate
	}
	if conf.ReadTimeout == 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}
	port, err := serial.Open(conf.Port, &serial.Mode{
		BaudRate: conf.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", conf.Port, err)
	}
	if err := port.SetReadTimeout(conf.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return NewDriver(conf.Port, port, conf.Mode), nil
}

// Ports lists the serial ports of the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
