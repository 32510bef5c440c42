package xlat

import (
	"encoding/binary"

	"github.com/go-xlat/xlat64/internal/checksum"
)

// Translator bundles the host services a 6-to-4 translation call consults:
// routing, namespace device enumeration, fragment-ID allocation, and a
// metrics sink. All fields are optional except Routing and Devices; Metrics
// defaults to a no-op sink.
type Translator struct {
	Routing RoutingService
	Devices NamespaceEnumerator
	IDs     IDAllocator
	Metrics MetricsSink
}

// NewTranslator builds a Translator, defaulting Metrics to a no-op sink
// when nil.
func NewTranslator(routing RoutingService, devices NamespaceEnumerator, ids IDAllocator, metrics MetricsSink) *Translator {
	if metrics == nil {
		metrics = noopMetricsSink{}
	}
	return &Translator{Routing: routing, Devices: devices, IDs: ids, Metrics: metrics}
}

// Translate6to4 runs the full pipeline against the raw IPv6 datagram in,
// owned by instance inst: parse, extension-header walk, synthesize the
// outgoing flow, resolve the skeleton (route + source selection + MTU
// gate), translate the outer IPv4 header, dispatch to the matching L4
// translator (recursing into the inner datagram for ICMP errors), and
// return the resulting Verdict.
func (tr *Translator) Translate6to4(inst *Instance, in []byte) Verdict {
	p, err := ParsePacket(in, checksum.ModeNone, false)
	if err != nil {
		tr.Metrics.IncDrop(err.Error())
		tr.Metrics.IncTranslation(KindDrop.String())
		return Drop(err)
	}

	if v := outerDropCheck(p); v.Kind != KindContinue {
		tr.Metrics.IncDrop(v.Reason.Error())
		tr.Metrics.IncTranslation(v.Kind.String())
		return v
	}

	p.TupleIn = tupleFromPacket(p)

	flow, v := SynthesizeFlow(inst, p)
	if v.Kind != KindContinue {
		tr.Metrics.IncDrop(v.Reason.Error())
		tr.Metrics.IncTranslation(v.Kind.String())
		return v
	}

	skel, v := buildSkeleton(tr.Routing, tr.Devices, inst.Namespace, flow)
	if v.Kind != KindContinue {
		tr.Metrics.IncDrop(v.Reason.Error())
		tr.Metrics.IncTranslation(v.Kind.String())
		return v
	}
	flow.Src4 = skel.Src4
	flow.Dst4 = skel.Dst4

	out, v := tr.translateL4(inst, p, flow, skel)
	if v.Kind != KindContinue {
		tr.Metrics.IncDrop(v.Reason.Error())
		tr.Metrics.IncTranslation(v.Kind.String())
		return v
	}

	tr.Metrics.IncTranslation(KindContinue.String())
	return Continue(out)
}

// tupleFromPacket derives the observed incoming tuple from a parsed
// packet's header and L4 bytes (ports for TCP/UDP, identifier for
// ICMPv6).
func tupleFromPacket(p *Packet) Tuple {
	t := Tuple{L3Proto: 6, L4Proto: p.L4Proto}
	t.Src.Addr = p.Header.Src
	t.Dst.Addr = p.Header.Dst
	if len(p.L4) >= 4 {
		switch p.L4Proto {
		case ProtoTCP, ProtoUDP:
			t.Src.Port = binary.BigEndian.Uint16(p.L4[0:2])
			t.Dst.Port = binary.BigEndian.Uint16(p.L4[2:4])
		case ProtoICMPv6:
			if int(p.L4[0]) == icmp6TypeEchoRequest || int(p.L4[0]) == icmp6TypeEchoReply {
				id := binary.BigEndian.Uint16(p.L4[4:6])
				t.Src.Port = id
				t.Dst.Port = id
			}
		}
	}
	return t
}

func (tr *Translator) translateL4(inst *Instance, p *Packet, flow Flow, skel skeletonResult) ([]byte, Verdict) {
	id, v := tr.allocateID(inst.Namespace, p)
	if v.Kind != KindContinue {
		return nil, v
	}

	switch p.L4Proto {
	case ProtoTCP:
		l4 := make([]byte, len(p.L4))
		copy(l4, p.L4)
		v6Pseudo := checksum.PseudoHeader6(p.Header.Src, p.Header.Dst)
		v4Pseudo := checksum.PseudoHeader4(flow.Src4, flow.Dst4)
		if err := translateTCP(l4, v6Pseudo, v4Pseudo, flow.SrcPort, flow.DstPort, p.ChecksumMode); err != nil {
			return nil, Drop(err)
		}
		return tr.assembleOuter(p, flow, skel, l4, id)

	case ProtoUDP:
		l4 := make([]byte, len(p.L4))
		copy(l4, p.L4)
		v6Pseudo := checksum.PseudoHeader6(p.Header.Src, p.Header.Dst)
		v4Pseudo := checksum.PseudoHeader4(flow.Src4, flow.Dst4)
		if err := translateUDP(l4, v6Pseudo, v4Pseudo, flow.SrcPort, flow.DstPort, p.ChecksumMode); err != nil {
			return nil, Drop(err)
		}
		return tr.assembleOuter(p, flow, skel, l4, id)

	case ProtoICMPv6:
		if !checksum.ValidateICMPv6Checksum(p.ChecksumMode, p.Header.Src, p.Header.Dst, p.L4) {
			return nil, Drop(ErrChecksumValidation)
		}
		mtu4 := uint32(0)
		if len(p.L4) >= 8 && int(p.L4[0]) == icmp6TypePacketTooBig {
			mtu4 = ComputeMTU4(binary.BigEndian.Uint32(p.L4[4:8]), skel.Route.MTU, skel.Route.Device.MTU)
		}
		l4, v := translateICMP(p.L4, flow, mtu4, func(quoted []byte) ([]byte, Verdict) {
			return tr.translateInner(inst, p, quoted, flow)
		})
		if v.Kind != KindContinue {
			return nil, v
		}
		return tr.assembleOuter(p, flow, skel, l4, id)
	}

	return nil, Drop(ErrUnsupportedICMPTypeCode)
}

// translateInner recursively translates the IPv6 datagram embedded in an
// ICMPv6 error per RFC 7915 Section 4.7/4.8: a restricted pass with no
// route lookup, no L4 port rebinding, and no checksum adjustment of the
// inner L4 bytes (quoted as opaque data). It is a separate code path from
// Translate6to4; it shares ParsePacket (with isInner set) and the header
// helpers.
func (tr *Translator) translateInner(inst *Instance, outer *Packet, quoted []byte, outerFlow Flow) ([]byte, Verdict) {
	inner, err := ParsePacket(quoted, checksum.ModeUnnecessary, true)
	if err != nil {
		return nil, Drop(err)
	}
	inner.Outer = outer

	innerSrc4, innerDst4, v := synthesizeInnerFlow(inst, outer)
	if v.Kind != KindContinue {
		return nil, v
	}
	innerFlow := outerFlow
	innerFlow.InnerSrc4 = innerSrc4
	innerFlow.InnerDst4 = innerDst4
	innerFlow.HasInner = true

	totalLen := uint16(ipv4HeaderLen + len(inner.L4))
	buf := make([]byte, ipv4HeaderLen+len(inner.L4))
	buildInnerIPv4Header(buf, inner, innerFlow, totalLen, 0)
	binary.BigEndian.PutUint16(buf[10:12], checksum.ComputeIPv4HeaderChecksum(buf[:ipv4HeaderLen]))
	copy(buf[ipv4HeaderLen:], inner.L4)

	tr.Metrics.IncICMPError("inner")
	return buf, Continue(nil)
}

func (tr *Translator) allocateID(ns string, p *Packet) (uint16, Verdict) {
	if p.Ext.Fragment != nil {
		return uint16(p.Ext.Fragment.Identification), Continue(nil)
	}
	if tr.IDs == nil {
		return 0, Continue(nil)
	}
	id, err := tr.IDs.Identifier(ns)
	if err != nil {
		return 0, Drop(ErrIdentifierAllocation)
	}
	return id, Continue(nil)
}

// assembleOuter writes the outer IPv4 header, appends l4, fills the header
// checksum, and runs the MTU gate (non-ICMP-error flows only; ICMP errors
// are exempt per RFC 7915 Section 4.5).
func (tr *Translator) assembleOuter(p *Packet, flow Flow, skel skeletonResult, l4 []byte, id uint16) ([]byte, Verdict) {
	totalLen := ipv4HeaderLen + len(l4)

	if !isICMPv6Error(p) {
		isFirst := p.Ext.Fragment == nil || p.Ext.Fragment.FragOffset == 0
		if v := mtuGate(skel.Route.MTU, uint32(totalLen), isFirst); v.Kind != KindContinue {
			return nil, v
		}
	}

	df := p.Ext.Fragment == nil && totalLen > 1260
	mf := p.Ext.Fragment != nil && p.Ext.Fragment.MoreFragments
	var fragOffset uint16
	if p.Ext.Fragment != nil {
		fragOffset = p.Ext.Fragment.FragOffset
	}

	buf := make([]byte, totalLen)
	buildOuterIPv4Header(buf, p, flow, uint16(totalLen), id, df, mf, fragOffset)
	binary.BigEndian.PutUint16(buf[10:12], checksum.ComputeIPv4HeaderChecksum(buf[:ipv4HeaderLen]))
	copy(buf[ipv4HeaderLen:], l4)

	return buf, Continue(nil)
}
