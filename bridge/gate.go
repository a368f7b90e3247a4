package bridge

import "sync/atomic"

// Gate is the readiness signal separating the authenticating and
// forwarding phases. Forwarding handlers consult it before touching
// the upstream; it opens only after an authenticated upstream session
// is established.
type Gate struct {
	connected atomic.Bool
}

// NewGate returns a closed Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Open marks the upstream connection as ready.
func (g *Gate) Open() {
	g.connected.Store(true)
}

// Close marks the upstream connection as gone.
func (g *Gate) Close() {
	g.connected.Store(false)
}

// IsOpen reports whether forwarding is allowed.
func (g *Gate) IsOpen() bool {
	return g.connected.Load()
}
