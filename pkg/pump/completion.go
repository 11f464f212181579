package pump

// Completion is the size a peripheral reports when a transfer finishes:
// either a known byte count or "use what was granted" for peripherals whose
// completion callback carries no count.
type Completion struct {
	n     int
	known bool
}

// UseLastGranted completes with the size granted when the transfer was armed.
var UseLastGranted = Completion{}

// Known completes with exactly n bytes. n must not exceed the granted size.
func Known(n int) Completion {
	return Completion{n: n, known: true}
}

// IsKnown reports whether the completion carries a byte count.
func (c Completion) IsKnown() bool {
	return c.known
}

// Size resolves the completed size against the last granted size.
func (c Completion) Size(lastGranted int) int {
	if c.known {
		return c.n
	}
	return lastGranted
}
