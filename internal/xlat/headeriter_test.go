package xlat_test

import (
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/go-xlat/xlat64/internal/xlat"
)

func buildIPv6Packet(nextHeader uint8, ext []byte, l4 []byte) []byte {
	buf := make([]byte, 40+len(ext)+len(l4))
	buf[0] = 0x60
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(ext)+len(l4)))
	buf[6] = nextHeader
	buf[7] = 64
	src := netip.MustParseAddr("2001:db8::1").As16()
	dst := netip.MustParseAddr("2001:db8::2").As16()
	copy(buf[8:24], src[:])
	copy(buf[24:40], dst[:])
	copy(buf[40:], ext)
	copy(buf[40+len(ext):], l4)
	return buf
}

func TestWalkExtensionHeadersNoExtensions(t *testing.T) {
	buf := buildIPv6Packet(17, nil, make([]byte, 8))
	info, err := xlat.WalkExtensionHeaders(buf, 17)
	if err != nil {
		t.Fatalf("WalkExtensionHeaders: %v", err)
	}
	if info.FinalProto != 17 || info.UpperLayerOffset != 40 {
		t.Fatalf("got proto=%d offset=%d, want 17/40", info.FinalProto, info.UpperLayerOffset)
	}
	if info.Fragment != nil || info.Routing != nil {
		t.Fatal("expected no fragment/routing header")
	}
}

func TestWalkExtensionHeadersRoutingNonzeroSegmentsLeft(t *testing.T) {
	// Routing header: next=17, hdr_ext_len=0 (8 bytes), routing type=0, segments_left=3.
	routing := []byte{17, 0, 0, 3, 0, 0, 0, 0}
	buf := buildIPv6Packet(43, routing, make([]byte, 8))

	info, err := xlat.WalkExtensionHeaders(buf, 43)
	if err != nil {
		t.Fatalf("WalkExtensionHeaders: %v", err)
	}
	if !info.HasNonzeroSegmentsLeft() {
		t.Fatal("expected HasNonzeroSegmentsLeft true")
	}
	if info.Routing.SegmentsLeftOffset() != 43 {
		t.Fatalf("SegmentsLeftOffset = %d, want 43", info.Routing.SegmentsLeftOffset())
	}
}

func TestWalkExtensionHeadersFragment(t *testing.T) {
	// Fragment header: next=17, reserved=0, frag_offset_flags (offset=0,M=0), id=0xdeadbeef.
	frag := make([]byte, 8)
	frag[0] = 17
	binary.BigEndian.PutUint16(frag[2:4], 0)
	binary.BigEndian.PutUint32(frag[4:8], 0xdeadbeef)
	buf := buildIPv6Packet(44, frag, make([]byte, 8))

	info, err := xlat.WalkExtensionHeaders(buf, 44)
	if err != nil {
		t.Fatalf("WalkExtensionHeaders: %v", err)
	}
	if info.Fragment == nil {
		t.Fatal("expected fragment header detected")
	}
	if info.Fragment.Identification != 0xdeadbeef {
		t.Fatalf("Identification = %x, want deadbeef", info.Fragment.Identification)
	}
	if info.FinalProto != 17 || info.UpperLayerOffset != 48 {
		t.Fatalf("got proto=%d offset=%d, want 17/48", info.FinalProto, info.UpperLayerOffset)
	}
}

func TestParseIPv6HeaderHopLimit(t *testing.T) {
	buf := buildIPv6Packet(58, nil, make([]byte, 8))
	buf[7] = 1
	hdr, err := xlat.ParseIPv6Header(buf)
	if err != nil {
		t.Fatalf("ParseIPv6Header: %v", err)
	}
	if hdr.HopLimit != 1 {
		t.Fatalf("HopLimit = %d, want 1", hdr.HopLimit)
	}
}
