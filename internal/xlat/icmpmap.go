package xlat

// ICMPv6 and ICMPv4 type numbers referenced by the translation table.
const (
	icmp6TypeEchoRequest     = 128
	icmp6TypeEchoReply       = 129
	icmp6TypeDestUnreach     = 1
	icmp6TypePacketTooBig    = 2
	icmp6TypeTimeExceeded    = 3
	icmp6TypeParamProblem    = 4

	icmp4TypeEchoRequest  = 8
	icmp4TypeEchoReply    = 0
	icmp4TypeDestUnreach  = 3
	icmp4TypeTimeExceeded = 11
	icmp4TypeParamProblem = 12
)

// icmpMapping is one row of the ICMPv6->ICMPv4 type/code translation table.
type icmpMapping struct {
	inType, inCode   int // -1 matches any code
	outType, outCode int
}

// untranslatableCode marks a mapping whose row exists only to document that
// the combination has no IPv4 equivalent.
const untranslatableCode = -1

var icmp6to4Table = []icmpMapping{
	{icmp6TypeEchoRequest, -1, icmp4TypeEchoRequest, 0},
	{icmp6TypeEchoReply, -1, icmp4TypeEchoReply, 0},

	// Destination Unreachable
	{icmp6TypeDestUnreach, 0, icmp4TypeDestUnreach, 1}, // no route -> host unreachable
	{icmp6TypeDestUnreach, 2, icmp4TypeDestUnreach, 1}, // no neighbour -> host unreachable
	{icmp6TypeDestUnreach, 3, icmp4TypeDestUnreach, 1}, // addr unreachable -> host unreachable
	{icmp6TypeDestUnreach, 1, icmp4TypeDestUnreach, 10}, // admin prohibited -> host anon prohibited
	{icmp6TypeDestUnreach, 4, icmp4TypeDestUnreach, 3}, // port unreachable

	// Packet Too Big (type-only match) -> Destination Unreachable, Frag-Needed
	{icmp6TypePacketTooBig, -1, icmp4TypeDestUnreach, 4},

	// Time Exceeded, code preserved 1:1
	{icmp6TypeTimeExceeded, 0, icmp4TypeTimeExceeded, 0},
	{icmp6TypeTimeExceeded, 1, icmp4TypeTimeExceeded, 1},

	// Parameter Problem
	{icmp6TypeParamProblem, 0, icmp4TypeParamProblem, 0}, // erroneous field, pointer remapped by caller
	{icmp6TypeParamProblem, 1, icmp4TypeDestUnreach, 2},  // unrecognized next header -> protocol unreachable
}

// MapICMP6to4 looks up the ICMPv4 type/code for an ICMPv6 type/code pair.
// ok is false when no row matches: per spec, everything not explicitly
// listed is untranslatable.
func MapICMP6to4(inType, inCode int) (outType, outCode int, ok bool) {
	for _, row := range icmp6to4Table {
		if row.inType != inType {
			continue
		}
		if row.inCode != -1 && row.inCode != inCode {
			continue
		}
		return row.outType, row.outCode, true
	}
	return 0, 0, false
}

// ParamProblemPointerMap maps an ICMPv6 Parameter Problem pointer (byte
// offset into the original IPv6 header) to the corresponding ICMPv4
// Parameter Problem pointer (byte offset into the translated IPv4 header).
// ok is false when the IPv6 field in question has no IPv4 counterpart.
func ParamProblemPointerMap(v6Pointer uint32) (v4Pointer uint8, ok bool) {
	switch {
	case v6Pointer == 0:
		return 0, true
	case v6Pointer == 1:
		return 1, true
	case v6Pointer == 2 || v6Pointer == 3:
		return 0, false
	case v6Pointer == 4 || v6Pointer == 5:
		return 2, true
	case v6Pointer == 6:
		return 9, true
	case v6Pointer == 7:
		return 8, true
	case v6Pointer >= 8 && v6Pointer <= 23:
		return 12, true
	case v6Pointer >= 24:
		return 16, true
	}
	return 0, false
}

// ComputeMTU4 derives the IPv4-side MTU to advertise in a translated Packet
// Too Big / Fragmentation Needed message: the smallest of the original
// ICMPv6 MTU field (minus the 20-byte header size delta), the IPv4 route
// MTU, and the ingress device's own MTU (likewise adjusted).
func ComputeMTU4(inICMPMTU, routeMTU, inDevMTU uint32) uint32 {
	const headerSizeDelta = 20
	m := routeMTU
	if v := saturatingSub(inICMPMTU, headerSizeDelta); v < m {
		m = v
	}
	if v := saturatingSub(inDevMTU, headerSizeDelta); v < m {
		m = v
	}
	return m
}

func saturatingSub(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}
