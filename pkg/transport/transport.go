// Package transport opens the peripheral driver named by a URL.
package transport

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/shellport/pkg/periph"
	"github.com/robotalks/shellport/pkg/periph/mqtt"
	"github.com/robotalks/shellport/pkg/periph/serialport"
	"github.com/robotalks/shellport/pkg/periph/websocket"
)

// ErrUnknownTransport indicates the URL scheme has no driver.
var ErrUnknownTransport = errors.New("unknown transport")

// Config selects the transport.
type Config struct {
	// URL of the transport, one of
	//   loopback://?echo=true&mode=it&byte-delay=1ms
	//   serial:///dev/ttyUSB0?baud=115200
	//   mqtt://host:1883/prefix/?device-id=xxx
	//   ws://:8080/shell
	URL string
}

var defaultConfig = Config{
	URL: "loopback://",
}

func init() {
	if val := os.Getenv("SHELLPORT_TRANSPORT"); val != "" {
		defaultConfig.URL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "transport", defaultConfig.URL, "Transport URL: loopback://, serial://, mqtt:// or ws://.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Open creates the driver.
func (c *Config) Open() (periph.Driver, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport URL: %w", err)
	}
	var drv periph.Driver
	switch u.Scheme {
	case "loopback":
		drv, err = openLoopback(u)
	case "serial":
		drv, err = openSerial(u)
	case "mqtt", "ssl":
		drv, err = openMQTT(c.URL)
	case "ws":
		drv = websocket.New(u.Host, u.Path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownTransport, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return drv, nil
}

func openSerial(u *url.URL) (periph.Driver, error) {
	conf, err := serialport.ConfigFromURL(u)
	if err != nil {
		return nil, err
	}
	d, err := serialport.Open(conf)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openMQTT(brokerURL string) (periph.Driver, error) {
	d, err := mqtt.New(brokerURL)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openLoopback(u *url.URL) (periph.Driver, error) {
	l := periph.NewLoopback()
	q := u.Query()
	var err error
	if l.Mode, err = periph.ParseMode(q.Get("mode")); err != nil {
		return nil, err
	}
	if val := q.Get("echo"); val != "" {
		if l.Echo, err = strconv.ParseBool(val); err != nil {
			return nil, fmt.Errorf("invalid echo %q: %w", val, err)
		}
	}
	if val := q.Get("byte-delay"); val != "" {
		if l.ByteDelay, err = time.ParseDuration(val); err != nil {
			return nil, fmt.Errorf("invalid byte delay %q: %w", val, err)
		}
	}
	if val := q.Get("fifo"); val != "" {
		if l.FIFODepth, err = strconv.Atoi(val); err != nil {
			return nil, fmt.Errorf("invalid fifo depth %q: %w", val, err)
		}
	}
	return l, nil
}
