// Package habitron implements the Habitron protocol bridge.
//
// This package provides connectivity to Habitron building automation
// installations via the router's SmartIP/SmartHub interface. It translates
// between the bridge's internal representation and the Habitron binary
// wire protocol.
//
// # Architecture
//
// The bridge operates as a translator between two buses:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│    Consumers    │   MQTT   │ Habitron Bridge │   TCP :7777
//	│ (HA, dashboards)│◄────────►│   (this pkg)    │◄──────────► Router
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Poll the router for compact status on a fixed interval
//   - Skip redundant decodes via the hardware-supplied CRC gate
//   - Decode status records into typed module state
//   - Translate MQTT commands to Habitron command frames
//   - Discover SmartIP/SmartHub devices via UDP broadcast
//   - Publish health status and metrics
//
// # Wire Format
//
// Every command frame carries a fixed preamble, a length byte, the command
// payload (router address, module address, argument bytes at template
// positions), a 16-bit CRC and a terminator byte. Binary responses are
// length-prefixed; responses shorter than the binary header are plain
// textual acknowledgements ("OK"). See frame.go for the exact layout.
//
// # Concurrency
//
// The router's controller does not handle interleaved sessions. The Client
// opens one TCP connection per request and serializes all requests through
// a single-flight mutex, so callers may invoke it from multiple goroutines.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines
// unless their documentation says otherwise.
package habitron
