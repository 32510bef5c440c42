package xlat

import (
	"encoding/binary"
)

// ipv4HeaderLen is the fixed (no-options) IPv4 header length this pipeline
// always emits.
const ipv4HeaderLen = 20

// defaultOuterTTL is not read by any code path: the outer TTL is always the
// IPv6 Hop Limit decremented by one.
const defaultOuterTTL = 64

// outerDropCheck implements the skeleton's pre-write drop conditions that
// apply to the outer packet only: Hop-Limit <= 1 and nonzero Segments-Left.
func outerDropCheck(p *Packet) Verdict {
	if p.Header.HopLimit <= 1 {
		return DropICMP(ErrHopLimitExhausted, 0, 0)
	}
	if p.Ext.HasNonzeroSegmentsLeft() {
		ptr := uint32(p.Ext.Routing.SegmentsLeftOffset())
		return DropICMP(ErrSegmentsLeftNonzero, 0, ptr)
	}
	return Continue(nil)
}

// buildOuterIPv4Header writes the 20-byte fixed IPv4 header for the outer
// packet into buf[0:20]. totalLen is the full IPv4 datagram length
// (header + L4). id is the IPv4 Identification: the low 16 bits of the
// IPv6 Fragment header's Identification if present, else a freshly
// allocated value. df/mf/fragOffset carry the outer fragmentation state
// derived from the IPv6 Fragment header, if any.
func buildOuterIPv4Header(buf []byte, p *Packet, flow Flow, totalLen uint16, id uint16, df, mf bool, fragOffset uint16) {
	buf[0] = 0x45 // version 4, IHL 5 (no options)
	buf[1] = flow.TOS
	binary.BigEndian.PutUint16(buf[2:4], totalLen)
	binary.BigEndian.PutUint16(buf[4:6], id)

	var flagsFrag uint16
	if df {
		flagsFrag |= 0x4000
	}
	if mf {
		flagsFrag |= 0x2000
	}
	flagsFrag |= fragOffset & 0x1fff
	binary.BigEndian.PutUint16(buf[6:8], flagsFrag)

	buf[8] = outerTTL(p)
	buf[9] = flow.Proto
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum, filled by caller

	src4 := flow.Src4.As4()
	dst4 := flow.Dst4.As4()
	copy(buf[12:16], src4[:])
	copy(buf[16:20], dst4[:])
}

// outerTTL derives the outer IPv4 TTL: the IPv6 Hop Limit decremented by
// one, since the skeleton's drop check already rejected Hop-Limit <= 1.
func outerTTL(p *Packet) uint8 {
	return p.Header.HopLimit - 1
}
