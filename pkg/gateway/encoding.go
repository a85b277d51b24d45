// encoding.go implements the small message-encoding hop a Gateway wraps
// around raw payloads before handing them to the transport. A full
// handshake envelope belongs to the concrete transport living outside
// this module; this is just enough framing to drive the Gateway's send
// path.
package gateway

import "encoding/binary"

// frameMagic/frameVersion identify this module's minimal framing record.
const (
	frameMagic   = 0x4c33 // "L3"
	frameVersion = 1
)

const frameHeaderLen = 7 // 2 (magic) + 1 (version) + 4 (length)

// encodeFrame prepends the framing record to payload.

func encodeFrame(payload []byte) []byte {
	out := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint16(out[0:2], frameMagic)
	out[2] = frameVersion
	binary.BigEndian.PutUint32(out[3:7], uint32(len(payload)))
	copy(out[frameHeaderLen:], payload)
	return out
}

// decodeFrame strips the framing record added by encodeFrame.
func decodeFrame(framed []byte) ([]byte, bool) {
	if len(framed) < frameHeaderLen {
		return nil, false
	}
	if binary.BigEndian.Uint16(framed[0:2]) != frameMagic {
		return nil, false
	}
	n := binary.BigEndian.Uint32(framed[3:7])
	if int(n) != len(framed)-frameHeaderLen {
		return nil, false
	}
	return framed[frameHeaderLen:], true
}
