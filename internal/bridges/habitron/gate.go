package habitron

import "sync"

// ChangeGate suppresses redundant status decodes.
//
// The router returns a CRC it computed itself alongside every status block.
// When that CRC equals the one seen on the previous poll, nothing on the bus
// changed and the block does not need decoding or dispatching.
//
// The stored checksum starts at a zero sentinel, which a real CRC will
// essentially never equal; the gate does not rely on that alone. An explicit
// force flag guarantees the first poll after construction or Reset is always
// treated as changed, so a fresh start or reconnect never skips the initial
// decode.
//
// Thread Safety: all methods are safe for concurrent use, though the poll
// loop is the only intended writer.
type ChangeGate struct {
	mu    sync.Mutex
	crc   uint16
	force bool
}

// NewChangeGate creates a gate that passes its first block unconditionally.
func NewChangeGate() *ChangeGate {
	return &ChangeGate{force: true}
}

// Filter compares the router-computed CRC against the last seen value.
//
// Parameters:
//   - resp: Status response from the transport
//
// Returns:
//   - []byte: The payload, when it needs decoding
//   - bool: false when the block is unchanged and decode should be skipped
func (g *ChangeGate) Filter(resp Response) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.force && resp.CRC == g.crc {
		return nil, false
	}
	g.force = false
	g.crc = resp.CRC
	return resp.Payload, true
}

// Reset clears the stored checksum and forces the next Filter call to pass.
// Call after a reconnect or when module state may have been rebuilt.
func (g *ChangeGate) Reset() {
	g.mu.Lock()
	g.crc = 0
	g.force = true
	g.mu.Unlock()
}

// LastCRC returns the checksum of the most recent passed block.
func (g *ChangeGate) LastCRC() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.crc
}
