package port

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/shellport/pkg/critical"
)

// Config defines the buffering and write policy of a Port.
type Config struct {
	RXCapacity int
	TXCapacity int

	// RXContinuous/TXContinuous re-arm the next transfer directly from
	// the completion instead of waiting for the next poll.
	RXContinuous bool
	TXContinuous bool

	// Block selects the blocking write policy. Otherwise writes that do
	// not fit are dropped whole.
	Block bool
	// WaitInterval is the pause between retries of a blocking write.
	WaitInterval time.Duration
	// WriteTimeout bounds a blocking write, 0 waits forever.
	WriteTimeout time.Duration

	// PollInterval is the period of Run polling both pumps.
	PollInterval time.Duration

	// Section is the critical section kind, see critical.New.
	Section string
}

// Default sizes of the ring buffers.
const (
	DefaultRXCapacity = 512
	DefaultTXCapacity = 512
)

var defaultConfig = Config{
	RXCapacity:   DefaultRXCapacity,
	TXCapacity:   DefaultTXCapacity,
	RXContinuous: true,
	TXContinuous: true,
	WaitInterval: time.Millisecond,
	PollInterval: time.Millisecond,
	Section:      critical.KindMutex,
}

func init() {
	if val := os.Getenv("SHELLPORT_RX_SIZE"); val != "" {
		envInt(&defaultConfig.RXCapacity, "SHELLPORT_RX_SIZE", val)
	}
	if val := os.Getenv("SHELLPORT_TX_SIZE"); val != "" {
		envInt(&defaultConfig.TXCapacity, "SHELLPORT_TX_SIZE", val)
	}
	if val := os.Getenv("SHELLPORT_BLOCK"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			defaultConfig.Block = b
		} else {
			glog.Warningf("ignore SHELLPORT_BLOCK=%q: %v", val, err)
		}
	}
}

func envInt(v *int, name, val string) {
	n, err := strconv.Atoi(val)
	if err != nil {
		glog.Warningf("ignore %s=%q: %v", name, val, err)
		return
	}
	*v = n
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.RXCapacity, "rx-size", defaultConfig.RXCapacity, "RX ring buffer size in bytes.")
	flag.IntVar(&defaultConfig.TXCapacity, "tx-size", defaultConfig.TXCapacity, "TX ring buffer size in bytes.")
	flag.BoolVar(&defaultConfig.RXContinuous, "rx-continuous", defaultConfig.RXContinuous, "Re-arm RX from completion.")
	flag.BoolVar(&defaultConfig.TXContinuous, "tx-continuous", defaultConfig.TXContinuous, "Re-arm TX from completion.")
	flag.BoolVar(&defaultConfig.Block, "block", defaultConfig.Block, "Block writers until output fits instead of dropping.")
	flag.DurationVar(&defaultConfig.WaitInterval, "wait-interval", defaultConfig.WaitInterval, "Retry interval of blocking writes.")
	flag.DurationVar(&defaultConfig.WriteTimeout, "write-timeout", defaultConfig.WriteTimeout, "Timeout of blocking writes, 0 for none.")
	flag.DurationVar(&defaultConfig.PollInterval, "poll-interval", defaultConfig.PollInterval, "Pump polling interval.")
	flag.StringVar(&defaultConfig.Section, "section", defaultConfig.Section, "Critical section: mutex, spin, checker or none.")
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

// Validate checks the config.
func (c *Config) Validate() error {
	if c.RXCapacity <= 0 {
		return fmt.Errorf("%w: rx capacity %d", ErrInvalidConfig, c.RXCapacity)
	}
	if c.TXCapacity <= 0 {
		return fmt.Errorf("%w: tx capacity %d", ErrInvalidConfig, c.TXCapacity)
	}
	if c.Block && c.WaitInterval <= 0 {
		return fmt.Errorf("%w: wait interval %v", ErrInvalidConfig, c.WaitInterval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval %v", ErrInvalidConfig, c.PollInterval)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: write timeout %v", ErrInvalidConfig, c.WriteTimeout)
	}
	return nil
}
