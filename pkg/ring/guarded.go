package ring

import "github.com/robotalks/shellport/pkg/critical"

// Guarded pairs a Buffer with the critical section protecting it.
// Every method runs entirely inside the section.
type Guarded struct {
	Buffer  *Buffer
	Section critical.Section
}

// NewGuarded creates a Guarded over a new Buffer.
func NewGuarded(storage []byte, sec critical.Section) *Guarded {
	return &Guarded{Buffer: New(storage), Section: sec}
}

// Write is Buffer.Write under exclusion.
func (g *Guarded) Write(p []byte) (n int) {
	g.Section.Enter()
	n = g.Buffer.Write(p)
	g.Section.Exit()
	return
}

// Read is Buffer.Read under exclusion.
func (g *Guarded) Read(p []byte) (n int) {
	g.Section.Enter()
	n = g.Buffer.Read(p)
	g.Section.Exit()
	return
}

// Discard is Buffer.Discard under exclusion.
func (g *Guarded) Discard(n int) (d int) {
	g.Section.Enter()
	d = g.Buffer.Discard(n)
	g.Section.Exit()
	return
}

// PutByte is Buffer.PutByte under exclusion.
func (g *Guarded) PutByte(c byte) (ok bool) {
	g.Section.Enter()
	ok = g.Buffer.PutByte(c)
	g.Section.Exit()
	return
}

// GetByte is Buffer.GetByte under exclusion.
func (g *Guarded) GetByte() (c byte, ok bool) {
	g.Section.Enter()
	c, ok = g.Buffer.GetByte()
	g.Section.Exit()
	return
}

// Used is Buffer.Used under exclusion.
func (g *Guarded) Used() (n int) {
	g.Section.Enter()
	n = g.Buffer.Used()
	g.Section.Exit()
	return
}

// Free is Buffer.Free under exclusion.
func (g *Guarded) Free() (n int) {
	g.Section.Enter()
	n = g.Buffer.Free()
	g.Section.Exit()
	return
}

// Cap returns the capacity. It never changes, no exclusion needed.
func (g *Guarded) Cap() int {
	return g.Buffer.Cap()
}

// Reset is Buffer.Reset under exclusion.
func (g *Guarded) Reset() {
	g.Section.Enter()
	g.Buffer.Reset()
	g.Section.Exit()
}
