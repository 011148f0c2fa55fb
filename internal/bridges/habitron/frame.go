package habitron

import (
	"fmt"
	"io"
)

// Frame layout constants.
//
// A command frame is:
//
//	Byte 0-22:  preamble (magic byte, length slot, channel tag bytes)
//	Byte 23..:  command payload (router, module, argument bytes)
//	Last 3:     CRC high, CRC low, terminator 0x3F
//
// The length slot at byte 1 carries the total frame length including the
// three trailer bytes. The CRC is computed over everything before the
// trailer.
const (
	// frameLengthIdx is the offset of the length byte inside the preamble.
	frameLengthIdx = 1

	// frameTrailerLen counts the CRC pair plus the terminator.
	frameTrailerLen = 3

	// frameTerminator closes every command frame.
	frameTerminator = 0x3F

	// responseHeaderLen is the size of the binary response header. Anything
	// shorter is a plain textual acknowledgement such as "OK".
	responseHeaderLen = 30

	// Response length field offsets within the header.
	respLenLowIdx  = 28
	respLenHighIdx = 29

	// maxFrameLen is the largest encodable frame; the length slot is one byte.
	maxFrameLen = 0xFF
)

// framePreamble identifies the logical channel on the router. Byte 1 is the
// length slot, patched by wrapFrame.
var framePreamble = []byte{
	0xA8, 0x00, 0x00, 0x0B,
	'S', 'm', 'a', 'r', 't', 'C', 'o', 'n', 'f', 'i', 'g', 0x05,
	'm', 'i', 'c', 'h', 'l', 'S', 0x05,
}

// wrapFrame builds a complete wire frame around a command payload: preamble,
// patched length byte, payload, CRC-16 and terminator.
//
// Parameters:
//   - payload: Encoded command bytes (see Catalog and Encode)
//
// Returns:
//   - []byte: Frame ready to send
//   - error: ErrEncoding if the frame would exceed the one-byte length slot
func wrapFrame(payload []byte) ([]byte, error) {
	frameLen := len(framePreamble) + len(payload) + frameTrailerLen
	if frameLen > maxFrameLen {
		return nil, fmt.Errorf("%w: frame length %d exceeds %d", ErrEncoding, frameLen, maxFrameLen)
	}

	frame := make([]byte, 0, frameLen)
	frame = append(frame, framePreamble...)
	frame = append(frame, payload...)
	frame[frameLengthIdx] = byte(frameLen)

	crc := crc16(frame)
	frame = append(frame, byte(crc>>8), byte(crc&0xFF), frameTerminator)
	return frame, nil
}

// verifyFrame recomputes the CRC of a wrapped frame and checks it against
// the embedded value. Used by tests and diagnostic tooling.
func verifyFrame(frame []byte) bool {
	if len(frame) < len(framePreamble)+frameTrailerLen {
		return false
	}
	if frame[len(frame)-1] != frameTerminator {
		return false
	}
	if int(frame[frameLengthIdx]) != len(frame) {
		return false
	}
	body := frame[:len(frame)-frameTrailerLen]
	want := uint16(frame[len(frame)-3])<<8 | uint16(frame[len(frame)-2])
	return crc16(body) == want
}

// Response represents a parsed router answer.
type Response struct {
	// Payload holds the response body. For textual acknowledgements this is
	// the raw bytes received (typically "OK").
	Payload []byte

	// CRC is the checksum the router computed over the payload. Zero for
	// textual acknowledgements.
	CRC uint16

	// Textual is true when the router answered with a bare acknowledgement
	// instead of a binary frame.
	Textual bool
}

// readResponse parses a router response from r.
//
// The router speaks a dual-mode response format: actuator commands are
// acknowledged with a short textual reply, status reads answer with a binary
// frame whose total payload length sits at bytes 28/29 of the initial read.
// An initial read shorter than the binary header is therefore treated as a
// textual acknowledgement, not an error.
//
// The binary body can span several socket reads; readResponse accumulates
// until payload length plus the three trailer bytes (CRC low, CRC high,
// terminator) have arrived.
//
// Parameters:
//   - r: Stream positioned after the command frame was written
//
// Returns:
//   - Response: Parsed payload plus the router-computed CRC
//   - error: ErrShortResponse (wrapping ErrFraming) if the stream ends early
func readResponse(r io.Reader) (Response, error) {
	header := make([]byte, responseHeaderLen)
	n, err := r.Read(header)
	if err != nil && n == 0 {
		return Response{}, fmt.Errorf("%w: reading header: %w", ErrFraming, err)
	}
	if n < responseHeaderLen {
		// Textual acknowledgement ("OK", "Error ...").
		return Response{Payload: header[:n], Textual: true}, nil
	}

	respLen := int(header[respLenLowIdx]) | int(header[respLenHighIdx])<<8
	body := make([]byte, respLen+frameTrailerLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Response{}, fmt.Errorf("%w: declared %d bytes: %w", ErrShortResponse, respLen, err)
	}

	crc := uint16(body[respLen+1])<<8 | uint16(body[respLen])
	return Response{Payload: body[:respLen], CRC: crc}, nil
}
