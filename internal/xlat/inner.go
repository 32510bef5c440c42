package xlat

import "encoding/binary"

// buildInnerIPv4Header writes the 20-byte fixed IPv4 header for an
// ICMP-embedded inner datagram into buf[0:20]. Unlike the outer header, the
// inner TTL is copied verbatim from the inner IPv6 Hop Limit (the inner
// datagram never actually traverses this hop, so it is not decremented),
// and there is no MTU gate or fragmentation: inner datagrams are quoted,
// truncated to fit the 576-byte ICMP budget, never fragmented.
func buildInnerIPv4Header(buf []byte, inner *Packet, flow Flow, totalLen uint16, id uint16) {
	buf[0] = 0x45
	buf[1] = flow.TOS
	binary.BigEndian.PutUint16(buf[2:4], totalLen)
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], 0x4000) // DF set, no fragmentation of a quoted inner datagram
	buf[8] = inner.Header.HopLimit
	buf[9] = flow.Proto
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum, filled by caller

	src4 := flow.InnerSrc4.As4()
	dst4 := flow.InnerDst4.As4()
	copy(buf[12:16], src4[:])
	copy(buf[16:20], dst4[:])
}
