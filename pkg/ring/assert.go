package ring

import "sync"

// AssertionError is raised by the default assertion handler when a
// precondition is violated.
type AssertionError struct {
	Msg string
}

// Error implements error.
func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Msg
}

// AssertHandler is called with a message when a precondition is violated.
// Precondition violations are programmer errors; the handler is not
// expected to return.
type AssertHandler func(msg string)

var (
	assertLock    sync.RWMutex
	assertHandler AssertHandler = defaultAssert
)

func defaultAssert(msg string) {
	panic(&AssertionError{Msg: msg})
}

// SetAssertHandler replaces the assertion handler. nil restores the
// default which panics with *AssertionError.
func SetAssertHandler(h AssertHandler) {
	if h == nil {
		h = defaultAssert
	}
	assertLock.Lock()
	assertHandler = h
	assertLock.Unlock()
}

// Assert reports msg through the assertion handler if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		assertLock.RLock()
		h := assertHandler
		assertLock.RUnlock()
		h(msg)
	}
}
