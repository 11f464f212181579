package ring

// Buffer is a fixed-capacity circular byte buffer with byte-wise, bulk and
// linear (single contiguous span) access.
//
// Buffer is NOT safe for concurrent use. Callers must serialize every
// mutating call, typically through Guarded or a critical.Section held
// around the call. A single producer touching only the tail side and a
// single consumer touching only the head side still share count and busy.
type Buffer struct {
	storage    []byte
	head       int
	tail       int
	count      int
	lastLinear int
	busy       bool
}

// Span is a contiguous region of the buffer storage handed to a peripheral.
// Data aliases the storage; it is valid until the matching Linear*Done.
type Span struct {
	Data []byte
}

// Len returns the size of the span.
func (s Span) Len() int {
	return len(s.Data)
}

// New creates a Buffer backed by storage.
func New(storage []byte) *Buffer {
	b := &Buffer{}
	b.Init(storage)
	return b
}

// Init binds storage, clears the busy flag and empties the buffer.
// The storage is referenced, never copied.
func (b *Buffer) Init(storage []byte) {
	Assert(storage != nil, "ring: nil storage")
	Assert(len(storage) > 0, "ring: zero capacity")
	b.storage = storage
	b.busy = false
	b.lastLinear = 0
	b.Reset()
}

// Reset empties the buffer. Busy flag and storage contents are untouched.
func (b *Buffer) Reset() {
	b.head, b.tail, b.count = 0, 0, 0
}

// Cap returns the capacity.
func (b *Buffer) Cap() int {
	return len(b.storage)
}

// Used returns the number of bytes held.
func (b *Buffer) Used() int {
	return b.count
}

// Free returns the number of bytes that can still be written.
func (b *Buffer) Free() int {
	return len(b.storage) - b.count
}

// LastLinearSize returns the size granted by the latest linear setup.
func (b *Buffer) LastLinearSize() int {
	return b.lastLinear
}

// Write copies as much of p as fits and returns the number of bytes
// written. Bytes beyond the free space are dropped.
func (b *Buffer) Write(p []byte) int {
	n := len(p)
	if free := b.Free(); n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	first := copy(b.storage[b.tail:], p[:n])
	if first < n {
		copy(b.storage, p[first:n])
	}
	b.tail = b.advance(b.tail, n)
	b.count += n
	return n
}

// Read moves up to len(p) bytes out of the buffer and returns the number
// of bytes read.
func (b *Buffer) Read(p []byte) int {
	n := len(p)
	if n > b.count {
		n = b.count
	}
	if n == 0 {
		return 0
	}
	first := copy(p[:n], b.storage[b.head:])
	if first < n {
		copy(p[first:n], b.storage)
	}
	b.head = b.advance(b.head, n)
	b.count -= n
	return n
}

// Discard drops up to n bytes from the read side without copying them.
func (b *Buffer) Discard(n int) int {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return 0
	}
	b.head = b.advance(b.head, n)
	b.count -= n
	return n
}

// PutByte appends a single byte. It returns false if the buffer is full.
func (b *Buffer) PutByte(c byte) bool {
	if b.count == len(b.storage) {
		return false
	}
	b.storage[b.tail] = c
	if b.tail++; b.tail == len(b.storage) {
		b.tail = 0
	}
	b.count++
	return true
}

// GetByte removes a single byte. It returns false if the buffer is empty.
func (b *Buffer) GetByte() (byte, bool) {
	if b.count == 0 {
		return 0, false
	}
	c := b.storage[b.head]
	if b.head++; b.head == len(b.storage) {
		b.head = 0
	}
	b.count--
	return c, true
}

// LinearWriteSetup returns the largest contiguous free region starting at
// the write cursor. Nothing is committed until LinearWriteDone.
func (b *Buffer) LinearWriteSetup() Span {
	n := b.Free()
	if end := len(b.storage) - b.tail; n > end {
		n = end
	}
	b.lastLinear = n
	return Span{Data: b.storage[b.tail : b.tail+n]}
}

// LinearReadSetup returns the largest contiguous used region starting at
// the read cursor. Nothing is released until LinearReadDone.
func (b *Buffer) LinearReadSetup() Span {
	n := b.count
	if end := len(b.storage) - b.head; n > end {
		n = end
	}
	b.lastLinear = n
	return Span{Data: b.storage[b.head : b.head+n]}
}

// LinearWriteDone commits n bytes filled in place after LinearWriteSetup.
// n must not exceed the granted size.
func (b *Buffer) LinearWriteDone(n int) int {
	Assert(n <= b.lastLinear, "ring: linear write commit exceeds grant")
	Assert(n >= 0 && n <= b.Free(), "ring: linear write commit exceeds free space")
	b.tail = b.advance(b.tail, n)
	b.count += n
	return n
}

// LinearReadDone releases n bytes consumed in place after LinearReadSetup.
// n must not exceed the granted size.
func (b *Buffer) LinearReadDone(n int) int {
	Assert(n <= b.lastLinear, "ring: linear read commit exceeds grant")
	Assert(n >= 0 && n <= b.count, "ring: linear read commit exceeds used space")
	b.head = b.advance(b.head, n)
	b.count -= n
	return n
}

// MarkBusy flags that a peripheral owns a region of the storage.
func (b *Buffer) MarkBusy() { b.busy = true }

// MarkIdle clears the busy flag.
func (b *Buffer) MarkIdle() { b.busy = false }

// IsBusy reports whether a peripheral transfer is outstanding.
func (b *Buffer) IsBusy() bool { return b.busy }

// advance moves a cursor by n (n <= capacity) and wraps it.
func (b *Buffer) advance(pos, n int) int {
	if pos += n; pos >= len(b.storage) {
		pos -= len(b.storage)
	}
	return pos
}
