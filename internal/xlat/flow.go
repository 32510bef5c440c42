package xlat

import (
	"net/netip"

	"github.com/go-xlat/xlat64/internal/addr"
)

// Flow is the ephemeral per-translation scratch computed once up front and
// consulted by every later pipeline step: the IPv4 source/destination
// (outer, and inner when translating an ICMP error), TOS, protocol, L4
// endpoints or ICMP type/code, and a mark carried through from the inbound
// packet.
type Flow struct {
	Src4 netip.Addr
	Dst4 netip.Addr

	// InnerSrc4/InnerDst4 are populated only when packetIn is an ICMP error
	// carrying an embedded datagram: the inner packet's roles are swapped
	// relative to the outer ICMP error (inner source becomes inner
	// destination and vice-versa) before the same address rule is applied.
	InnerSrc4 netip.Addr
	InnerDst4 netip.Addr
	HasInner  bool

	TOS   uint8
	Proto uint8
	Mark  uint32

	// SrcPort/DstPort are the outgoing L4 ports for TCP/UDP, or both set to
	// the ICMP identifier for ICMP/ICMPv6 flows.
	SrcPort uint16
	DstPort uint16
}

// ICMPIdentifier derives the outgoing ICMPv4 Identifier for an Echo
// Request/Reply: the rebound NAT64 icmp4_id (carried as SrcPort on the BIB
// entry) for NAT64, or the copied ICMPv6 Identifier for SIIT.
func (f Flow) ICMPIdentifier() uint16 { return f.SrcPort }

// SynthesizeFlow derives the outgoing Flow for p against inst. For NAT64 it
// resolves the BIB entry for the incoming tuple and falls back to the
// instance's pool6 RFC 6052 rule for the remote endpoint; for SIIT it
// consults the EAM table first and falls back to the same pool6 rule.
func SynthesizeFlow(inst *Instance, p *Packet) (Flow, Verdict) {
	var f Flow

	f.Mark = p.Mark
	f.Proto = p.L4Proto
	if f.Proto == ProtoICMPv6 {
		f.Proto = ProtoICMP
	}

	if inst.Global.ResetTOS {
		f.TOS = inst.Global.NewTOS
	} else {
		f.TOS = p.Header.TrafficClass
	}

	var pool6 addr.Prefix6
	switch inst.Mode {
	case ModeNAT64:
		pool6 = inst.NAT64.Pool6
	case ModeSIIT:
		pool6 = inst.SIIT.Pool6
	}

	switch inst.Mode {
	case ModeNAT64:
		entry, ok := inst.NAT64.BIB.Find(p.TupleIn)
		if !ok {
			return f, Drop(ErrBIBEntryNotFound)
		}
		dst4, ok := addr.ExtractRFC6052(pool6, p.Header.Dst)
		if !ok {
			return f, Drop(ErrNoAddressMapping)
		}
		f.Src4 = entry.V4.Addr
		f.Dst4 = dst4
		f.SrcPort = entry.V4.Port
		f.DstPort = p.TupleIn.Dst.Port

	case ModeSIIT:
		src4, ok := translate6WithEAM(inst.SIIT, p.Header.Src)
		if !ok {
			masked, maskOK := maskUntranslatableICMPSource(inst, p)
			if !maskOK {
				return f, Drop(ErrNoAddressMapping)
			}
			src4 = masked
		}
		dst4, ok := translate6WithEAM(inst.SIIT, p.Header.Dst)
		if !ok {
			return f, Drop(ErrNoAddressMapping)
		}
		if inst.SIIT.Blacklist4.Contains(src4) {
			return f, Drop(ErrUntranslatableSource)
		}
		f.Src4 = src4
		f.Dst4 = dst4
		f.SrcPort = p.TupleIn.Src.Port
		f.DstPort = p.TupleIn.Dst.Port
	}

	return f, Continue(nil)
}

// isICMPv6Error reports whether p carries an ICMPv6 error message (as
// opposed to Echo Request/Reply, which never embeds a quoted datagram).
func isICMPv6Error(p *Packet) bool {
	if p.L4Proto != ProtoICMPv6 || len(p.L4) == 0 {
		return false
	}
	switch int(p.L4[0]) {
	case icmp6TypeDestUnreach, icmp6TypePacketTooBig, icmp6TypeTimeExceeded, icmp6TypeParamProblem:
		return true
	}
	return false
}

// maskUntranslatableICMPSource substitutes a pool6791 masking address (RFC
// 6791) for the source of an ICMPv6 error whose original sender has no
// EAM/pool6 mapping -- e.g. an intermediate router using address space the
// translator was never configured to translate. It only applies to ICMPv6
// errors; an untranslatable source on any other flow is a plain
// no-address-mapping drop.
func maskUntranslatableICMPSource(inst *Instance, p *Packet) (netip.Addr, bool) {
	if inst.Mode != ModeSIIT || !isICMPv6Error(p) {
		return netip.Addr{}, false
	}
	return inst.SIIT.Pool6791.Any()
}

// synthesizeInnerFlow derives the translated addresses for the IPv6
// datagram embedded in outer's ICMPv6 error. The inner datagram's roles
// are the mirror of the outer error's: outer's source becomes the
// translated inner destination, and outer's destination becomes the
// translated inner source, each resolved with the same EAM/pool6 rule
// SynthesizeFlow applies to the outer packet.
func synthesizeInnerFlow(inst *Instance, outer *Packet) (innerSrc4, innerDst4 netip.Addr, v Verdict) {
	var pool6 addr.Prefix6
	switch inst.Mode {
	case ModeNAT64:
		pool6 = inst.NAT64.Pool6
	case ModeSIIT:
		pool6 = inst.SIIT.Pool6
	}

	innerDst4, ok := resolveSIITOrPool6(inst, pool6, outer.Header.Src)
	if !ok {
		return netip.Addr{}, netip.Addr{}, Drop(ErrNoAddressMapping)
	}
	innerSrc4, ok = resolveSIITOrPool6(inst, pool6, outer.Header.Dst)
	if !ok {
		return netip.Addr{}, netip.Addr{}, Drop(ErrNoAddressMapping)
	}
	return innerSrc4, innerDst4, Continue(nil)
}

// resolveSIITOrPool6 translates v6 using the instance's EAM table (SIIT
// only) falling back to pool6 RFC 6052 extraction, regardless of mode.
func resolveSIITOrPool6(inst *Instance, pool6 addr.Prefix6, v6 netip.Addr) (netip.Addr, bool) {
	if inst.Mode == ModeSIIT {
		if v, ok := inst.SIIT.EAM.Lookup6(v6); ok {
			return v, true
		}
	}
	return addr.ExtractRFC6052(pool6, v6)
}

// translate6WithEAM resolves a SIIT IPv6 address to its IPv4 counterpart:
// EAM first, then pool6 RFC 6052 extraction.
func translate6WithEAM(s *SIITState, v6 netip.Addr) (netip.Addr, bool) {
	if v, ok := s.EAM.Lookup6(v6); ok {
		return v, true
	}
	return addr.ExtractRFC6052(s.Pool6, v6)
}
