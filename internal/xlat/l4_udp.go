package xlat

import (
	"encoding/binary"

	"github.com/go-xlat/xlat64/internal/checksum"
)

// translateUDP rewrites a UDP header and fixes up its checksum in place,
// applying the UDP zero-fold special case: a folded checksum of 0x0000
// must be written as 0xFFFF.
func translateUDP(buf []byte, v6Pseudo, v4Pseudo []byte, srcPort, dstPort uint16, mode checksum.Mode) error {
	if len(buf) < 8 {
		return ErrTruncatedPacket
	}
	oldHdr := make([]byte, 8)
	copy(oldHdr, buf[:8])

	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)

	switch mode {
	case checksum.ModePartial:
		old := binary.BigEndian.Uint16(buf[6:8])
		newSum := checksum.Update6to4Partial(old, v6Pseudo, v4Pseudo)
		binary.BigEndian.PutUint16(buf[6:8], newSum)
	default:
		old := binary.BigEndian.Uint16(buf[6:8])
		if old == 0 {
			// No incoming checksum: leave unset, per RFC 768 §"checksum is
			// optional" / RFC 7915 the recomputed value only applies when
			// one was present.
			return nil
		}
		binary.BigEndian.PutUint16(buf[6:8], 0)
		newHdr := make([]byte, 8)
		copy(newHdr, buf[:8])
		oldHdr[6], oldHdr[7] = 0, 0
		newSum := checksum.Update6to4(old, v6Pseudo, v4Pseudo, oldHdr, newHdr)
		binary.BigEndian.PutUint16(buf[6:8], checksum.FoldUDP(newSum))
	}
	return nil
}
