package xlat

import (
	"encoding/binary"

	"github.com/go-xlat/xlat64/internal/checksum"
)

// icmpErrorTrimLimit is the maximum total length of a translated ICMPv4
// error datagram (RFC 792 practice, carried over from RFC 7915 §4.7).
const icmpErrorTrimLimit = 576

// icmpExtMaxPktLen is the RFC 4884 max_pkt_len for ICMP extension areas.
// No code in this package reads it: extension areas are not parsed or
// adjusted (see trimICMPExtensionAware).
const icmpExtMaxPktLen = 576

// icmpExtShiftUnit is the unit (in octets) of the RFC 4884 extension
// descriptor's length field. No code in this package reads it.
const icmpExtShiftUnit = 8

// translateICMP rewrites an ICMPv6 header into an ICMPv4 header in place at
// the start of buf, mapping type/code via MapICMP6to4 and, for
// Parameter-Problem, remapping the pointer via ParamProblemPointerMap. For
// Echo it rebinds/copies the Identifier and copies the Sequence. For
// errors, it recursively translates the embedded inner IPv6 datagram
// (buf[8:]) via translateInner, trims the result to icmpErrorTrimLimit, and
// recomputes the ICMPv4 checksum from scratch (ICMPv4 carries no
// pseudo-header).
//
// innerTranslator is called only when buf carries an embedded datagram
// (i.e. not Echo Request/Reply); it returns the translated inner IPv4
// bytes or a Verdict terminating the whole translation. mtu4 is the
// already-computed (via ComputeMTU4) outgoing MTU to advertise when the
// incoming message is Packet-Too-Big; it is ignored otherwise.
func translateICMP(buf []byte, flow Flow, mtu4 uint32, innerTranslator func(quoted []byte) ([]byte, Verdict)) ([]byte, Verdict) {
	if len(buf) < 8 {
		return nil, Drop(ErrTruncatedPacket)
	}
	inType := int(buf[0])
	inCode := int(buf[1])

	outType, outCode, ok := MapICMP6to4(inType, inCode)
	if !ok {
		return nil, Untranslatable(ErrUnsupportedICMPTypeCode)
	}

	switch inType {
	case icmp6TypeEchoRequest, icmp6TypeEchoReply:
		out := make([]byte, 8)
		out[0] = byte(outType)
		out[1] = byte(outCode)
		binary.BigEndian.PutUint16(out[4:6], flow.ICMPIdentifier())
		binary.BigEndian.PutUint16(out[6:8], binary.BigEndian.Uint16(buf[6:8])) // sequence
		binary.BigEndian.PutUint16(out[2:4], 0)
		cks := checksum.ComputeICMPChecksum(out)
		binary.BigEndian.PutUint16(out[2:4], cks)
		return out, Continue(nil)

	case icmp6TypeParamProblem:
		v6Pointer := binary.BigEndian.Uint32(buf[4:8])
		v4Pointer, mapOK := ParamProblemPointerMap(v6Pointer)
		if !mapOK {
			return nil, Drop(ErrUnsupportedParamProblemPointer)
		}
		return buildICMPError(outType, outCode, uint32(v4Pointer)<<24, buf[8:], innerTranslator)

	case icmp6TypePacketTooBig:
		return buildICMPError(outType, outCode, mtu4, buf[8:], innerTranslator)

	default:
		return buildICMPError(outType, outCode, 0, buf[8:], innerTranslator)
	}
}

// buildICMPError assembles a translated ICMPv4 error datagram: an 8-byte
// header (type, code, checksum, a 4-byte "unused"/pointer/MTU word) plus
// the recursively-translated inner IPv4 datagram, trimmed to
// icmpErrorTrimLimit and checksummed from scratch.
func buildICMPError(outType, outCode int, unused uint32, quoted []byte, innerTranslator func([]byte) ([]byte, Verdict)) ([]byte, Verdict) {
	innerOut, v := innerTranslator(quoted)
	if v.Kind != KindContinue {
		return nil, v
	}

	out := make([]byte, 8+len(innerOut))
	out[0] = byte(outType)
	out[1] = byte(outCode)
	binary.BigEndian.PutUint16(out[2:4], 0)
	binary.BigEndian.PutUint32(out[4:8], unused)
	copy(out[8:], innerOut)

	if ipv4HeaderLen+len(out) > icmpErrorTrimLimit {
		out = trimICMPExtensionAware(out)
	}

	cks := checksum.ComputeICMPChecksum(out)
	binary.BigEndian.PutUint16(out[2:4], cks)
	return out, Continue(nil)
}

// trimICMPExtensionAware truncates the ICMPv4 message out so that, with
// the 20-byte outer IPv4 header, the datagram is at most icmpErrorTrimLimit
// bytes. It is a plain truncation: an RFC 4884 extension area is not
// detected, and neither it nor its length descriptor is adjusted or
// removed; it is cut along with the rest of the quoted bytes.
func trimICMPExtensionAware(out []byte) []byte {
	limit := icmpErrorTrimLimit - ipv4HeaderLen
	if len(out) <= limit {
		return out
	}
	return out[:limit]
}
