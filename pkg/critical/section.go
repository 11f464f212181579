// Package critical provides the exclusion strategies used around ring
// buffer state shared between mainline code and completion callbacks.
//
// On a microcontroller this is interrupt masking. On a host the
// completion context is a driver goroutine, so the equivalent is a lock.
package critical

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Section is entered around every read-modify-write of shared state.
// Implementations need not be reentrant.
type Section interface {
	Enter()
	Exit()
}

// ErrUnknownSection indicates an unsupported section kind.
var ErrUnknownSection = errors.New("unknown critical section kind")

// Kinds accepted by New.
const (
	KindMutex   = "mutex"
	KindSpin    = "spin"
	KindChecker = "checker"
	KindNone    = "none"
)

// New creates a Section by kind name.
func New(kind string) (Section, error) {
	switch kind {
	case KindMutex, "":
		return &Mutex{}, nil
	case KindSpin:
		return &Spin{}, nil
	case KindChecker:
		return &Checker{}, nil
	case KindNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, kind)
	}
}

// Mutex is a Section backed by sync.Mutex.
type Mutex struct {
	mu sync.Mutex
}

// Enter implements Section.
func (m *Mutex) Enter() { m.mu.Lock() }

// Exit implements Section.
func (m *Mutex) Exit() { m.mu.Unlock() }

// Spin is a busy-waiting Section for very short critical regions.
type Spin struct {
	state int32
}

// Enter implements Section.
func (s *Spin) Enter() {
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		runtime.Gosched()
	}
}

// Exit implements Section.
func (s *Spin) Exit() {
	atomic.StoreInt32(&s.state, 0)
}

// Checker provides no exclusion. It panics when a section is entered while
// another one is active, which exposes callers that fail to serialize.
type Checker struct {
	state int32
}

// Enter implements Section.
func (c *Checker) Enter() {
	if !atomic.CompareAndSwapInt32(&c.state, 0, 1) {
		panic("critical: overlapping section on single-thread checker")
	}
}

// Exit implements Section.
func (c *Checker) Exit() {
	if !atomic.CompareAndSwapInt32(&c.state, 1, 0) {
		panic("critical: exit without enter")
	}
}

// Nop provides no exclusion at all.
type Nop struct{}

// Enter implements Section.
func (Nop) Enter() {}

// Exit implements Section.
func (Nop) Exit() {}

// Do runs fn inside s.
func Do(s Section, fn func()) {
	s.Enter()
	defer s.Exit()
	fn()
}
