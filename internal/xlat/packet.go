package xlat

import (
	"github.com/go-xlat/xlat64/internal/checksum"
)

// Packet is a parsed IPv6 packet flowing through the 6-to-4 pipeline. The
// fixed header and extension-header chain are decoded into struct fields;
// L4 holds the upper-layer header and payload untouched until a translator
// rewrites it. Outer carries a back-pointer to the packet an inner ICMP
// payload was extracted from; translateInner sets it on the inner Packet
// it parses.
type Packet struct {
	Header IPv6Header
	Ext    ExtHeaderInfo

	// L4Proto is Ext.FinalProto narrowed to uint8 for convenience at call
	// sites that already expect a protocol byte.
	L4Proto uint8
	// L4 is the upper-layer header and payload, i.e. buf[Ext.UpperLayerOffset:].
	L4 []byte

	ChecksumMode checksum.Mode

	TupleIn  Tuple
	TupleOut *Tuple

	Mark uint32

	// Outer is non-nil when this Packet represents the inner datagram
	// embedded in an ICMPv6 error carried by Outer.
	Outer   *Packet
	IsInner bool
}

// ParsePacket decodes buf, an IPv6 packet (or an inner datagram fragment
// embedded in an ICMPv6 error, when isInner is true), into a Packet.
func ParsePacket(buf []byte, mode checksum.Mode, isInner bool) (*Packet, error) {
	hdr, err := ParseIPv6Header(buf)
	if err != nil {
		return nil, err
	}
	if hdr.HopLimit == 0 && !isInner {
		return nil, ErrHopLimitExhausted
	}
	ext, err := WalkExtensionHeaders(buf, hdr.NextHeader)
	if err != nil {
		return nil, err
	}
	if ext.UpperLayerOffset > len(buf) {
		return nil, ErrTruncatedPacket
	}
	p := &Packet{
		Header:       hdr,
		Ext:          ext,
		L4Proto:      uint8(ext.FinalProto),
		L4:           buf[ext.UpperLayerOffset:],
		ChecksumMode: mode,
		IsInner:      isInner,
	}
	return p, nil
}
