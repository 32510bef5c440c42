package xlat

// Kind is the outcome of a translation step or of the whole Translate6to4
// call.
type Kind int

const (
	// KindContinue means translation produced a well-formed output packet.
	KindContinue Kind = iota
	// KindDrop means the packet is discarded silently (statistics still
	// incremented).
	KindDrop
	// KindDropICMP means the packet is discarded and the caller must emit
	// an ICMPv6 error back to the source.
	KindDropICMP
	// KindUntranslatable means the packet cannot be translated but should
	// be surfaced to the host stack (e.g. addressed to the node itself).
	KindUntranslatable
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindDrop:
		return "drop"
	case KindDropICMP:
		return "drop_icmp"
	case KindUntranslatable:
		return "untranslatable"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of Translate6to4 or of any internal step that can
// terminate the pipeline early.
type Verdict struct {
	Kind Kind
	// Reason is set for Drop, DropICMP, and Untranslatable.
	Reason error
	// ICMPCode is set for DropICMP: the ICMPv6 code to emit.
	ICMPCode uint8
	// MTUOrPointer is set for DropICMP: the MTU (Packet-Too-Big) or the
	// Parameter-Problem pointer offset, per ICMPCode.
	MTUOrPointer uint32
	// PacketOut is the translated IPv4 datagram, set only for KindContinue.
	PacketOut []byte
}

// Continue builds a KindContinue verdict carrying the translated packet.
func Continue(packetOut []byte) Verdict {
	return Verdict{Kind: KindContinue, PacketOut: packetOut}
}

// Drop builds a KindDrop verdict.
func Drop(reason error) Verdict {
	return Verdict{Kind: KindDrop, Reason: reason}
}

// DropICMP builds a KindDropICMP verdict.
func DropICMP(reason error, code uint8, mtuOrPointer uint32) Verdict {
	return Verdict{Kind: KindDropICMP, Reason: reason, ICMPCode: code, MTUOrPointer: mtuOrPointer}
}

// Untranslatable builds a KindUntranslatable verdict.
func Untranslatable(reason error) Verdict {
	return Verdict{Kind: KindUntranslatable, Reason: reason}
}
