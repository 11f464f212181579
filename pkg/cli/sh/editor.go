package sh

import "io"

// MaxLineLength bounds the line buffer of a LineEditor.
const MaxLineLength = 512

// Control bytes handled by LineEditor.
const (
	keyBell      = 0x07
	keyBackspace = 0x08
	keyLF        = '\n'
	keyCR        = '\r'
	keyEscape    = 0x1b
	keyDelete    = 0x7f
)

// escape sequence states
const (
	escNone = iota
	escStart
	escCSI
	escSS3
)

// LineEditor assembles lines from a byte stream typed on a serial
// terminal: printable bytes are echoed, backspace and DEL erase, and CR,
// LF or CRLF end the line. Bytes beyond the line limit ring the bell.
// Escape sequences sent by cursor and function keys are swallowed.
type LineEditor struct {
	Echo io.Writer
	Max  int

	buf    []byte
	lastCR bool
	esc    int
}

// NewLineEditor creates a LineEditor echoing to w.
func NewLineEditor(w io.Writer) *LineEditor {
	return &LineEditor{Echo: w, Max: MaxLineLength}
}

// Feed processes one input byte. It returns the line when c completes one.
func (e *LineEditor) Feed(c byte) (string, bool) {
	if e.swallow(c) {
		e.lastCR = false
		return "", false
	}
	wasCR := e.lastCR
	e.lastCR = c == keyCR
	switch {
	case c == keyLF && wasCR:
		return "", false
	case c == keyCR || c == keyLF:
		line := string(e.buf)
		e.buf = e.buf[:0]
		e.echo([]byte("\r\n"))
		return line, true
	case c == keyBackspace || c == keyDelete:
		if len(e.buf) > 0 {
			e.buf = e.buf[:len(e.buf)-1]
			e.echo([]byte("\b \b"))
		}
	case c >= 0x20 && c < keyDelete:
		max := e.Max
		if max <= 0 {
			max = MaxLineLength
		}
		if len(e.buf) >= max {
			e.echo([]byte{keyBell})
			return "", false
		}
		e.buf = append(e.buf, c)
		e.echo([]byte{c})
	}
	return "", false
}

// swallow tracks ESC [ params final and ESC O x, reporting whether c
// belongs to such a sequence.
func (e *LineEditor) swallow(c byte) bool {
	if c < 0x20 && c != keyEscape {
		// a control byte aborts the sequence and is handled as usual.
		e.esc = escNone
		return false
	}
	switch e.esc {
	case escStart:
		switch c {
		case '[':
			e.esc = escCSI
		case 'O':
			e.esc = escSS3
		default:
			e.esc = escNone
		}
		return true
	case escCSI:
		// parameter and intermediate bytes are 0x20-0x3f.
		if c > 0x3f {
			e.esc = escNone
		}
		return true
	case escSS3:
		e.esc = escNone
		return true
	}
	if c == keyEscape {
		e.esc = escStart
		return true
	}
	return false
}

// Pending returns the partial line.
func (e *LineEditor) Pending() string {
	return string(e.buf)
}

// Clear drops the partial line.
func (e *LineEditor) Clear() {
	e.buf = e.buf[:0]
	e.lastCR = false
	e.esc = escNone
}

func (e *LineEditor) echo(p []byte) {
	if e.Echo != nil {
		e.Echo.Write(p)
	}
}
