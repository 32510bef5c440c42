package xlat_test

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/go-xlat/xlat64/internal/addr"
	"github.com/go-xlat/xlat64/internal/checksum"
	"github.com/go-xlat/xlat64/internal/xlat"
)

// -------------------------------------------------------------------------
// Fakes
// -------------------------------------------------------------------------

type fakeRouting struct {
	route Route
	ok    bool
}

type Route = xlat.Route

func (f fakeRouting) Route4(ns string, dst netip.Addr) (xlat.Route, bool) {
	return f.route, f.ok
}

type fakeEnumerator struct{ devices []xlat.Device }

func (f fakeEnumerator) Devices(ns string) []xlat.Device { return f.devices }

type fakeBIB struct{ entry xlat.BIBEntry }

func (f fakeBIB) Find(t xlat.Tuple) (xlat.BIBEntry, bool) { return f.entry, true }

type fakeIDs struct{ next uint16 }

func (f *fakeIDs) Identifier(ns string) (uint16, error) {
	f.next++
	return f.next, nil
}

func mustPrefix6(s string) addr.Prefix6 {
	p := netip.MustParsePrefix(s)
	return addr.Prefix6{Addr: p.Addr(), Len: p.Bits()}
}

func mustPrefix4(s string) addr.Prefix4 {
	p := netip.MustParsePrefix(s)
	return addr.Prefix4{Addr: p.Addr(), Len: p.Bits()}
}

func defaultRoute(srcCandidate netip.Addr) xlat.Route {
	return xlat.Route{
		MTU: 1500,
		Device: xlat.Device{
			Name: "eth0",
			MTU:  1500,
			Addrs: []xlat.DeviceAddr{
				{Addr: srcCandidate, Universe: true},
			},
		},
	}
}

func buildTCPSegment(srcPort, dstPort uint16) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	return buf
}

// -------------------------------------------------------------------------
// Scenario 1/2-style: NAT64 TCP 6->4
// -------------------------------------------------------------------------

func TestTranslate6to4NAT64TCP(t *testing.T) {
	pool6 := mustPrefix6("64:ff9b::/96")
	remoteV4 := netip.MustParseAddr("203.0.113.9")
	remoteV6, ok := addr.EmbedRFC6052(pool6, remoteV4)
	if !ok {
		t.Fatal("EmbedRFC6052 setup failed")
	}

	bibEntry := xlat.BIBEntry{
		V6: xlat.Transport6{Addr: netip.MustParseAddr("2001:db8::1"), Port: 54321},
		V4: xlat.Transport4{Addr: netip.MustParseAddr("198.51.100.5"), Port: 40000},
	}

	inst := &xlat.Instance{
		Mode: xlat.ModeNAT64,
		Name: "nat64-0",
		NAT64: &xlat.NAT64State{
			BIB:   fakeBIB{entry: bibEntry},
			Pool6: pool6,
		},
	}

	tcp := buildTCPSegment(54321, 80)
	in := buildIPv6Packet(6, nil, tcp)
	// Overwrite addresses to match the BIB/pool6 relationship assumed above.
	src := bibEntry.V6.Addr.As16()
	dst := remoteV6.As16()
	copy(in[8:24], src[:])
	copy(in[24:40], dst[:])

	route := defaultRoute(bibEntry.V4.Addr)
	tr := xlat.NewTranslator(fakeRouting{route: route, ok: true}, fakeEnumerator{}, &fakeIDs{}, nil)

	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindContinue {
		t.Fatalf("Translate6to4: kind=%v reason=%v", v.Kind, v.Reason)
	}
	out := v.PacketOut
	if len(out) < 20 {
		t.Fatalf("output too short: %d", len(out))
	}
	if out[9] != xlat.ProtoTCP {
		t.Fatalf("protocol = %d, want TCP", out[9])
	}
	gotSrc, _ := netip.AddrFromSlice(out[12:16])
	gotDst, _ := netip.AddrFromSlice(out[16:20])
	if gotSrc != bibEntry.V4.Addr {
		t.Fatalf("src4 = %v, want %v", gotSrc, bibEntry.V4.Addr)
	}
	if gotDst != remoteV4 {
		t.Fatalf("dst4 = %v, want %v", gotDst, remoteV4)
	}
	if binary.BigEndian.Uint16(out[20:22]) != bibEntry.V4.Port {
		t.Fatalf("src port = %d, want %d", binary.BigEndian.Uint16(out[20:22]), bibEntry.V4.Port)
	}
}

// -------------------------------------------------------------------------
// SIIT UDP via EAM
// -------------------------------------------------------------------------

func TestTranslate6to4SIITUDPViaEAM(t *testing.T) {
	eamPrefix6 := mustPrefix6("2001:db8:1::c000:200/120")
	eamPrefix4 := mustPrefix4("192.0.2.0/24")

	srcV6 := netip.MustParseAddr("2001:db8:1::c000:0201") // maps onto 192.0.2.1
	dstV6 := netip.MustParseAddr("2001:db8:1::c000:0205") // maps onto 192.0.2.5

	inst := &xlat.Instance{
		Mode: xlat.ModeSIIT,
		Name: "siit-0",
		SIIT: &xlat.SIITState{
			EAM: xlat.NewEAMTable([]xlat.EAMEntry{
				{Prefix4: eamPrefix4, Prefix6: eamPrefix6},
			}),
		},
	}

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], 33333)
	binary.BigEndian.PutUint16(udp[2:4], 53)

	in := buildIPv6Packet(17, nil, udp)
	s := srcV6.As16()
	d := dstV6.As16()
	copy(in[8:24], s[:])
	copy(in[24:40], d[:])

	route := defaultRoute(netip.MustParseAddr("192.0.2.1"))
	tr := xlat.NewTranslator(fakeRouting{route: route, ok: true}, fakeEnumerator{}, &fakeIDs{}, nil)

	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindContinue {
		t.Fatalf("Translate6to4: kind=%v reason=%v", v.Kind, v.Reason)
	}
	out := v.PacketOut
	gotSrc, _ := netip.AddrFromSlice(out[12:16])
	gotDst, _ := netip.AddrFromSlice(out[16:20])
	if gotSrc.String() != "192.0.2.1" || gotDst.String() != "192.0.2.5" {
		t.Fatalf("src/dst = %v/%v, want 192.0.2.1/192.0.2.5", gotSrc, gotDst)
	}
	if out[9] != xlat.ProtoUDP {
		t.Fatalf("protocol = %d, want UDP", out[9])
	}
}

// -------------------------------------------------------------------------
// Scenario 5: Hop-Limit exhausted
// -------------------------------------------------------------------------

func TestTranslate6to4HopLimitExhausted(t *testing.T) {
	inst := &xlat.Instance{Mode: xlat.ModeSIIT, Name: "siit-0", SIIT: &xlat.SIITState{}}
	udp := make([]byte, 8)
	in := buildIPv6Packet(17, nil, udp)
	in[7] = 1 // hop limit

	tr := xlat.NewTranslator(fakeRouting{}, fakeEnumerator{}, &fakeIDs{}, nil)
	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindDropICMP {
		t.Fatalf("kind = %v, want DropICMP", v.Kind)
	}
	if v.Reason != xlat.ErrHopLimitExhausted {
		t.Fatalf("reason = %v, want ErrHopLimitExhausted", v.Reason)
	}
}

// -------------------------------------------------------------------------
// Scenario 6: nonzero Segments-Left
// -------------------------------------------------------------------------

func TestTranslate6to4NonzeroSegmentsLeft(t *testing.T) {
	inst := &xlat.Instance{Mode: xlat.ModeSIIT, Name: "siit-0", SIIT: &xlat.SIITState{}}
	routing := []byte{17, 0, 0, 3, 0, 0, 0, 0} // Segments-Left = 3 at byte offset 40+3=43
	udp := make([]byte, 8)
	in := buildIPv6Packet(43, routing, udp)

	tr := xlat.NewTranslator(fakeRouting{}, fakeEnumerator{}, &fakeIDs{}, nil)
	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindDropICMP {
		t.Fatalf("kind = %v, want DropICMP", v.Kind)
	}
	if v.Reason != xlat.ErrSegmentsLeftNonzero {
		t.Fatalf("reason = %v, want ErrSegmentsLeftNonzero", v.Reason)
	}
	if v.MTUOrPointer != 43 {
		t.Fatalf("pointer = %d, want 43", v.MTUOrPointer)
	}
}

// -------------------------------------------------------------------------
// ICMPv6 Echo Request, NAT64
// -------------------------------------------------------------------------

func TestTranslate6to4ICMPEchoRequestNAT64(t *testing.T) {
	pool6 := mustPrefix6("64:ff9b::/96")
	remoteV4 := netip.MustParseAddr("203.0.113.9")
	remoteV6, _ := addr.EmbedRFC6052(pool6, remoteV4)

	bibEntry := xlat.BIBEntry{
		V6: xlat.Transport6{Addr: netip.MustParseAddr("2001:db8::1")},
		V4: xlat.Transport4{Addr: netip.MustParseAddr("198.51.100.5"), Port: 0xbeef},
	}

	inst := &xlat.Instance{
		Mode:  xlat.ModeNAT64,
		Name:  "nat64-0",
		NAT64: &xlat.NAT64State{BIB: fakeBIB{entry: bibEntry}, Pool6: pool6},
	}

	icmp := make([]byte, 8)
	icmp[0] = 128 // Echo Request
	icmp[1] = 0
	binary.BigEndian.PutUint16(icmp[4:6], 0xa1)
	binary.BigEndian.PutUint16(icmp[6:8], 7)

	in := buildIPv6Packet(58, nil, icmp)
	s := bibEntry.V6.Addr.As16()
	d := remoteV6.As16()
	copy(in[8:24], s[:])
	copy(in[24:40], d[:])

	// Fill in a correct ICMPv6 checksum (over the real IPv6 pseudo-header)
	// so ValidateICMPv6Checksum passes.
	binary.BigEndian.PutUint16(in[42:44], 0)
	var acc checksum.Accumulator
	acc.AddBytes(s[:])
	acc.AddBytes(d[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(icmp)))
	acc.AddBytes(lenBuf[:])
	acc.AddUint16(58)
	acc.AddBytes(in[40:])
	binary.BigEndian.PutUint16(in[42:44], acc.Fold())

	route := defaultRoute(bibEntry.V4.Addr)
	tr := xlat.NewTranslator(fakeRouting{route: route, ok: true}, fakeEnumerator{}, &fakeIDs{}, nil)

	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindContinue {
		t.Fatalf("Translate6to4: kind=%v reason=%v", v.Kind, v.Reason)
	}
	out := v.PacketOut
	icmpOut := out[20:]
	if icmpOut[0] != 8 || icmpOut[1] != 0 {
		t.Fatalf("icmp type/code = %d/%d, want 8/0", icmpOut[0], icmpOut[1])
	}
	if binary.BigEndian.Uint16(icmpOut[4:6]) != 0xbeef {
		t.Fatalf("icmp id = %x, want beef", binary.BigEndian.Uint16(icmpOut[4:6]))
	}
	if binary.BigEndian.Uint16(icmpOut[6:8]) != 7 {
		t.Fatalf("icmp seq = %d, want 7", binary.BigEndian.Uint16(icmpOut[6:8]))
	}
}

// -------------------------------------------------------------------------
// DF bit: set only when the translated datagram exceeds 1260 bytes and no
// IPv6 Fragment header was present.
// -------------------------------------------------------------------------

func translate6to4SIITUDP(t *testing.T, payloadLen int) []byte {
	t.Helper()
	eamPrefix6 := mustPrefix6("2001:db8:1::c000:200/120")
	eamPrefix4 := mustPrefix4("192.0.2.0/24")

	inst := &xlat.Instance{
		Mode: xlat.ModeSIIT,
		Name: "siit-0",
		SIIT: &xlat.SIITState{
			EAM: xlat.NewEAMTable([]xlat.EAMEntry{
				{Prefix4: eamPrefix4, Prefix6: eamPrefix6},
			}),
		},
	}

	udp := make([]byte, 8+payloadLen)
	binary.BigEndian.PutUint16(udp[0:2], 33333)
	binary.BigEndian.PutUint16(udp[2:4], 53)

	in := buildIPv6Packet(17, nil, udp)
	s := netip.MustParseAddr("2001:db8:1::c000:0201").As16() // 192.0.2.1
	d := netip.MustParseAddr("2001:db8:1::c000:0205").As16() // 192.0.2.5
	copy(in[8:24], s[:])
	copy(in[24:40], d[:])

	route := defaultRoute(netip.MustParseAddr("192.0.2.1"))
	tr := xlat.NewTranslator(fakeRouting{route: route, ok: true}, fakeEnumerator{}, &fakeIDs{}, nil)

	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindContinue {
		t.Fatalf("Translate6to4: kind=%v reason=%v", v.Kind, v.Reason)
	}
	return v.PacketOut
}

func TestTranslate6to4DFSetWhenOutputExceeds1260(t *testing.T) {
	out := translate6to4SIITUDP(t, 1272) // 20 (IPv4) + 8 (UDP) + 1272 = 1300
	if got := binary.BigEndian.Uint16(out[6:8]); got&0x4000 == 0 {
		t.Fatalf("DF not set for 1300-byte output: flags/frag = %#x", got)
	}
}

func TestTranslate6to4DFClearWhenOutputAt1260OrBelow(t *testing.T) {
	out := translate6to4SIITUDP(t, 972) // 20 (IPv4) + 8 (UDP) + 972 = 1000
	if got := binary.BigEndian.Uint16(out[6:8]); got&0x4000 != 0 {
		t.Fatalf("DF set for 1000-byte output: flags/frag = %#x", got)
	}
}

// -------------------------------------------------------------------------
// ICMPv6 error carrying an embedded inner datagram: regression for the
// inner-address panic (Translate6to4 must compute the inner flow from the
// outer packet's addresses, not from a field nobody sets).
// -------------------------------------------------------------------------

func TestTranslate6to4ICMPTimeExceededTranslatesInnerDatagram(t *testing.T) {
	eamPrefix6 := mustPrefix6("2001:db8:1::c000:200/120")
	eamPrefix4 := mustPrefix4("192.0.2.0/24")

	routerV6 := netip.MustParseAddr("2001:db8:1::c000:020a") // 192.0.2.10
	senderV6 := netip.MustParseAddr("2001:db8:1::c000:0201") // 192.0.2.1
	destV6 := netip.MustParseAddr("2001:db8:1::c000:0205")   // 192.0.2.5

	inst := &xlat.Instance{
		Mode: xlat.ModeSIIT,
		Name: "siit-0",
		SIIT: &xlat.SIITState{
			EAM: xlat.NewEAMTable([]xlat.EAMEntry{
				{Prefix4: eamPrefix4, Prefix6: eamPrefix6},
			}),
		},
	}

	innerUDP := make([]byte, 8)
	binary.BigEndian.PutUint16(innerUDP[0:2], 33333)
	binary.BigEndian.PutUint16(innerUDP[2:4], 53)
	quoted := buildIPv6Packet(17, nil, innerUDP)
	qs := senderV6.As16()
	qd := destV6.As16()
	copy(quoted[8:24], qs[:])
	copy(quoted[24:40], qd[:])

	icmp := make([]byte, 8+len(quoted))
	icmp[0] = 3 // Time Exceeded
	icmp[1] = 0
	copy(icmp[8:], quoted)

	in := buildIPv6Packet(58, nil, icmp)
	s := routerV6.As16()
	d := senderV6.As16()
	copy(in[8:24], s[:])
	copy(in[24:40], d[:])

	// Correct ICMPv6 checksum over the outer pseudo-header.
	binary.BigEndian.PutUint16(in[42:44], 0)
	var acc checksum.Accumulator
	acc.AddBytes(s[:])
	acc.AddBytes(d[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(icmp)))
	acc.AddBytes(lenBuf[:])
	acc.AddUint16(58)
	acc.AddBytes(in[40:])
	binary.BigEndian.PutUint16(in[42:44], acc.Fold())

	route := defaultRoute(netip.MustParseAddr("192.0.2.10"))
	tr := xlat.NewTranslator(fakeRouting{route: route, ok: true}, fakeEnumerator{}, &fakeIDs{}, nil)

	v := tr.Translate6to4(inst, in)
	if v.Kind != xlat.KindContinue {
		t.Fatalf("Translate6to4: kind=%v reason=%v", v.Kind, v.Reason)
	}
	out := v.PacketOut
	icmpOut := out[20:]
	if icmpOut[0] != 11 {
		t.Fatalf("icmp type = %d, want 11 (Time Exceeded)", icmpOut[0])
	}
	innerOut := icmpOut[8:]
	if len(innerOut) < 20 {
		t.Fatalf("inner datagram too short: %d", len(innerOut))
	}
	gotInnerSrc, _ := netip.AddrFromSlice(innerOut[12:16])
	gotInnerDst, _ := netip.AddrFromSlice(innerOut[16:20])
	if gotInnerSrc.String() != "192.0.2.1" || gotInnerDst.String() != "192.0.2.5" {
		t.Fatalf("inner src/dst = %v/%v, want 192.0.2.1/192.0.2.5", gotInnerSrc, gotInnerDst)
	}
}
