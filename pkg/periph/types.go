// Package periph defines the contract between the transfer pumps and a
// serial peripheral driver, and provides a simulated peripheral.
package periph

import (
	"errors"
	"fmt"

	"github.com/robotalks/shellport/pkg/pump"
)

// Completer receives transfer completions. It is implemented by port.Port.
type Completer interface {
	OnTXComplete(pump.Completion)
	OnRXComplete(pump.Completion)
}

// Driver is a peripheral that accepts one contiguous span per transfer and
// reports completion asynchronously.
//
// Transmit and Receive must return without waiting for the transfer. The
// span aliases ring buffer storage and belongs to the driver until the
// matching completion is delivered.
type Driver interface {
	Bind(Completer)
	Transmit(span []byte) error
	Receive(span []byte) error
}

// Mode is how a driver moves data.
type Mode int

const (
	// ModeDMA transfers whole spans. RX completes "to idle" with the number
	// of bytes received, TX completes with the granted size.
	ModeDMA Mode = iota
	// ModeIT is interrupt-per-byte reception: RX requests and completes
	// exactly one byte. TX still completes with the granted size.
	ModeIT
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeDMA:
		return "dma"
	case ModeIT:
		return "it"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "dma":
		return ModeDMA, nil
	case "it":
		return ModeIT, nil
	default:
		return ModeDMA, fmt.Errorf("invalid mode %q", s)
	}
}

// RXSpan trims a receive span to what the mode requests from hardware.
func (m Mode) RXSpan(span []byte) []byte {
	if m == ModeIT && len(span) > 1 {
		return span[:1]
	}
	return span
}

var (
	// ErrNotBound indicates a transfer was submitted before Bind.
	ErrNotBound = errors.New("driver not bound")
	// ErrBusy indicates a second transfer was submitted while one is armed.
	ErrBusy = errors.New("transfer already armed")
	// ErrClosed indicates the driver is closed.
	ErrClosed = errors.New("driver closed")
)
