package xlat

import (
	"encoding/binary"

	"github.com/go-xlat/xlat64/internal/checksum"
)

// translateTCP rewrites a TCP header and fixes up its checksum in place.
// Only the source and destination ports ever change (rebound by NAT64, or
// copied unchanged by SIIT); the rest of the TCP header and payload are
// copied verbatim. buf is the full output L4 buffer (header + payload),
// already copied from the input.
func translateTCP(buf []byte, v6Pseudo, v4Pseudo []byte, srcPort, dstPort uint16, mode checksum.Mode) error {
	if len(buf) < 20 {
		return ErrTruncatedPacket
	}
	oldHdr := make([]byte, 20)
	copy(oldHdr, buf[:20])

	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)

	switch mode {
	case checksum.ModePartial:
		old := binary.BigEndian.Uint16(buf[16:18])
		newSum := checksum.Update6to4Partial(old, v6Pseudo, v4Pseudo)
		binary.BigEndian.PutUint16(buf[16:18], newSum)
	default:
		old := binary.BigEndian.Uint16(buf[16:18])
		binary.BigEndian.PutUint16(buf[16:18], 0)
		newHdr := make([]byte, 20)
		copy(newHdr, buf[:20])
		oldHdr[16], oldHdr[17] = 0, 0
		newSum := checksum.Update6to4(old, v6Pseudo, v4Pseudo, oldHdr, newHdr)
		binary.BigEndian.PutUint16(buf[16:18], newSum)
	}
	return nil
}
