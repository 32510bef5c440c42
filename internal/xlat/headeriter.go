package xlat

import (
	"encoding/binary"
	"net/netip"
)

// IPv6 extension header type numbers this iterator understands.
const (
	nextHeaderHopByHop    = 0
	nextHeaderRouting     = 43
	nextHeaderFragment    = 44
	nextHeaderDestOptions = 60
	nextHeaderNoNext      = 59
)

const ipv6FixedHeaderLen = 40

// IPv6Header is the fixed 40-byte IPv6 header.
type IPv6Header struct {
	TrafficClass uint8
	FlowLabel    uint32
	PayloadLen   uint16
	NextHeader   uint8
	HopLimit     uint8
	Src          netip.Addr
	Dst          netip.Addr
}

// ParseIPv6Header parses the fixed 40-byte IPv6 header from the start of buf.
func ParseIPv6Header(buf []byte) (IPv6Header, error) {
	if len(buf) < ipv6FixedHeaderLen {
		return IPv6Header{}, ErrTruncatedPacket
	}
	verClassFlow := binary.BigEndian.Uint32(buf[0:4])
	if verClassFlow>>28 != 6 {
		return IPv6Header{}, ErrMalformedExtensionChain
	}
	h := IPv6Header{
		TrafficClass: uint8((verClassFlow >> 20) & 0xff),
		FlowLabel:    verClassFlow & 0xfffff,
		PayloadLen:   binary.BigEndian.Uint16(buf[4:6]),
		NextHeader:   buf[6],
		HopLimit:     buf[7],
	}
	srcBytes := [16]byte{}
	copy(srcBytes[:], buf[8:24])
	dstBytes := [16]byte{}
	copy(dstBytes[:], buf[24:40])
	h.Src = netip.AddrFrom16(srcBytes)
	h.Dst = netip.AddrFrom16(dstBytes)
	return h, nil
}

// FragmentHeaderInfo describes an IPv6 Fragment extension header.
type FragmentHeaderInfo struct {
	Offset         int // byte offset of the header within the packet
	Identification uint32
	FragOffset     uint16 // in 8-octet units
	MoreFragments  bool
}

// RoutingHeaderInfo describes an IPv6 Routing extension header.
type RoutingHeaderInfo struct {
	Offset        int // byte offset of the header within the packet
	SegmentsLeft  uint8
}

// SegmentsLeftOffset returns the byte offset of the Segments-Left field
// relative to the start of the IPv6 packet, used as the ICMPv4
// Parameter-Problem pointer when has_nonzero_segments_left is true.
func (r RoutingHeaderInfo) SegmentsLeftOffset() int {
	return r.Offset + 3
}

// ExtHeaderInfo is the result of walking the IPv6 extension header chain.
type ExtHeaderInfo struct {
	// FinalProto is the upper-layer protocol number after the chain,
	// i.e. what becomes the IPv4 Protocol field (with ICMPv6 -> ICMP
	// substituted by the caller).
	FinalProto int
	// UpperLayerOffset is the byte offset where the upper-layer header
	// (TCP/UDP/ICMPv6) begins.
	UpperLayerOffset int
	Fragment         *FragmentHeaderInfo
	Routing          *RoutingHeaderInfo
}

// HasNonzeroSegmentsLeft reports whether a Routing header is present with
// Segments-Left > 0.
func (e ExtHeaderInfo) HasNonzeroSegmentsLeft() bool {
	return e.Routing != nil && e.Routing.SegmentsLeft > 0
}

// WalkExtensionHeaders walks buf's IPv6 extension-header chain starting
// right after the fixed header, recording the Fragment and Routing headers
// if present, and returning the final upper-layer protocol and its offset.
func WalkExtensionHeaders(buf []byte, fixedNextHeader uint8) (ExtHeaderInfo, error) {
	info := ExtHeaderInfo{}
	offset := ipv6FixedHeaderLen
	next := fixedNextHeader

	for {
		switch next {
		case nextHeaderHopByHop, nextHeaderDestOptions:
			if offset+2 > len(buf) {
				return info, ErrTruncatedPacket
			}
			hdrLen := (int(buf[offset+1]) + 1) * 8
			if offset+hdrLen > len(buf) {
				return info, ErrTruncatedPacket
			}
			next = buf[offset]
			offset += hdrLen

		case nextHeaderRouting:
			if offset+4 > len(buf) {
				return info, ErrTruncatedPacket
			}
			hdrLen := (int(buf[offset+1]) + 1) * 8
			if offset+hdrLen > len(buf) {
				return info, ErrTruncatedPacket
			}
			info.Routing = &RoutingHeaderInfo{
				Offset:       offset,
				SegmentsLeft: buf[offset+3],
			}
			next = buf[offset]
			offset += hdrLen

		case nextHeaderFragment:
			const fragHdrLen = 8
			if offset+fragHdrLen > len(buf) {
				return info, ErrTruncatedPacket
			}
			fragOffFlags := binary.BigEndian.Uint16(buf[offset+2 : offset+4])
			info.Fragment = &FragmentHeaderInfo{
				Offset:         offset,
				FragOffset:     fragOffFlags >> 3,
				MoreFragments:  fragOffFlags&0x1 != 0,
				Identification: binary.BigEndian.Uint32(buf[offset+4 : offset+8]),
			}
			next = buf[offset]
			offset += fragHdrLen

		case nextHeaderNoNext:
			info.FinalProto = int(nextHeaderNoNext)
			info.UpperLayerOffset = offset
			return info, nil

		default:
			info.FinalProto = int(next)
			info.UpperLayerOffset = offset
			return info, nil
		}
	}
}
