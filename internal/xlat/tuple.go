package xlat

import "github.com/go-xlat/xlat64/internal/addr"

// Transport6 and Transport4 alias the address package's transport-address
// types so callers of this package need not import addr directly for the
// common case.
type (
	Transport6 = addr.Transport6
	Transport4 = addr.Transport4
)

// L4 protocol numbers used throughout the pipeline.
const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoICMPv6 = 58
)

// Tuple is the 5-tuple identifying a flow: L3 protocol, L4 protocol,
// source, and destination. Source/destination ports double as ICMP
// identifiers for ICMP/ICMPv6 tuples.
type Tuple struct {
	L3Proto uint8 // 4 or 6
	L4Proto uint8
	Src     Transport6
	Dst     Transport6
	// Src4/Dst4 are populated instead of Src/Dst when L3Proto == 4.
	Src4 Transport4
	Dst4 Transport4
}
