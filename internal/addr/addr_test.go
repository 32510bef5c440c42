package addr_test

import (
	"net/netip"
	"testing"

	"github.com/go-xlat/xlat64/internal/addr"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

func TestPrefix4Contains(t *testing.T) {
	t.Parallel()

	p := addr.Prefix4{Addr: mustAddr(t, "203.0.113.0"), Len: 24}
	if !addr.Prefix4Contains(p, p.Addr) {
		t.Error("prefix does not contain its own base address")
	}
	if !addr.Prefix4Contains(p, mustAddr(t, "203.0.113.200")) {
		t.Error("prefix should contain 203.0.113.200")
	}
	if addr.Prefix4Contains(p, mustAddr(t, "203.0.114.1")) {
		t.Error("prefix should not contain 203.0.114.1")
	}
}

func TestPrefix4Intersects(t *testing.T) {
	t.Parallel()

	p := addr.Prefix4{Addr: mustAddr(t, "203.0.113.0"), Len: 24}
	q := addr.Prefix4{Addr: mustAddr(t, "203.0.113.128"), Len: 25}
	r := addr.Prefix4{Addr: mustAddr(t, "198.51.100.0"), Len: 24}

	if !addr.Prefix4Intersects(p, q) {
		t.Error("p and q should intersect (q is a sub-prefix of p)")
	}
	if addr.Prefix4Intersects(p, r) {
		t.Error("p and r should not intersect")
	}
}

func TestPrefix4AddrCountAndNext(t *testing.T) {
	t.Parallel()

	p := addr.Prefix4{Addr: mustAddr(t, "203.0.113.0"), Len: 24}
	if got, want := addr.Prefix4AddrCount(p), uint64(256); got != want {
		t.Errorf("Prefix4AddrCount() = %d, want %d", got, want)
	}

	next := addr.Prefix4Next(p)
	if want := mustAddr(t, "203.0.114.0"); next != want {
		t.Errorf("Prefix4Next() = %v, want %v", next, want)
	}
}

func TestBitOpRoundTrip(t *testing.T) {
	t.Parallel()

	a := mustAddr(t, "203.0.113.77")
	for off := uint(0); off < 32; off++ {
		for length := uint(1); length <= 32-off; length++ {
			bits := addr.Addr4GetBits(a, off, length)
			// Round-trip via single-bit ops to mirror the invariant
			// set_bits(a, off, len, get_bits(a, off, len)) == a.
			modified := a
			for i := uint(0); i < length; i++ {
				bit := (bits >> (length - i - 1)) & 1
				modified = addr.Addr4SetBit(modified, off+i, bit != 0)
			}
			if modified != a {
				t.Fatalf("bit round-trip failed at off=%d len=%d: got %v want %v", off, length, modified, a)
			}
		}
	}
}

func TestAddr6SetGetBitsRoundTrip(t *testing.T) {
	t.Parallel()

	a := mustAddr(t, "2001:db8::1:2:3:4")
	got := addr.Addr6SetBits(a, 96, 32, 0xdeadbeef)
	if v := addr.Addr6GetBits(got, 96, 32); v != 0xdeadbeef {
		t.Errorf("Addr6GetBits() = %#x, want %#x", v, 0xdeadbeef)
	}
}

func TestAddr6CopyBits(t *testing.T) {
	t.Parallel()

	src := mustAddr(t, "2001:db8::ffff:ffff:ffff:ffff")
	dst := mustAddr(t, "::")

	out := addr.Addr6CopyBits(src, dst, 96, 32)
	if v := addr.Addr6GetBits(out, 96, 32); v != 0xffffffff {
		t.Errorf("Addr6CopyBits() low 32 bits = %#x, want 0xffffffff", v)
	}
	if v := addr.Addr6GetBits(out, 0, 32); v != 0 {
		t.Errorf("Addr6CopyBits() touched bits outside its range: %#x", v)
	}
}

func TestIsSubnetScope(t *testing.T) {
	t.Parallel()

	scoped := []string{"0.0.0.1", "127.0.0.1", "169.254.1.1", "224.0.0.1", "255.255.255.255"}
	for _, s := range scoped {
		if !addr.IsSubnetScope(mustAddr(t, s)) {
			t.Errorf("IsSubnetScope(%s) = false, want true", s)
		}
	}

	unscoped := []string{"192.0.2.1", "203.0.113.5", "198.51.100.9"}
	for _, s := range unscoped {
		if addr.IsSubnetScope(mustAddr(t, s)) {
			t.Errorf("IsSubnetScope(%s) = true, want false", s)
		}
	}
}

func TestHasSubnetScope(t *testing.T) {
	t.Parallel()

	p := addr.Prefix4{Addr: mustAddr(t, "169.254.0.0"), Len: 24}
	collision, ok := addr.HasSubnetScope(p)
	if !ok {
		t.Fatal("HasSubnetScope() = false, want true")
	}
	if collision.Len != 16 {
		t.Errorf("colliding prefix len = %d, want 16", collision.Len)
	}

	clean := addr.Prefix4{Addr: mustAddr(t, "203.0.113.0"), Len: 24}
	if _, ok := addr.HasSubnetScope(clean); ok {
		t.Error("HasSubnetScope() = true for a clean prefix")
	}
}

func TestRFC6052EmbedExtractRoundTrip(t *testing.T) {
	t.Parallel()

	lens := []int{32, 40, 48, 56, 64, 96}
	v4 := mustAddr(t, "192.0.2.5")

	for _, length := range lens {
		pool6 := addr.Prefix6{Addr: mustAddr(t, "64:ff9b::"), Len: length}
		v6, ok := addr.EmbedRFC6052(pool6, v4)
		if !ok {
			t.Fatalf("EmbedRFC6052(len=%d) failed", length)
		}

		back, ok := addr.ExtractRFC6052(pool6, v6)
		if !ok {
			t.Fatalf("ExtractRFC6052(len=%d) failed for %v", length, v6)
		}
		if back != v4 {
			t.Errorf("len=%d: round trip = %v, want %v (embedded %v)", length, back, v4, v6)
		}
	}
}

func TestRFC6052Embed96Literal(t *testing.T) {
	t.Parallel()

	pool6 := addr.Prefix6{Addr: mustAddr(t, "64:ff9b::"), Len: 96}
	v6, ok := addr.EmbedRFC6052(pool6, mustAddr(t, "192.0.2.5"))
	if !ok {
		t.Fatal("EmbedRFC6052 failed")
	}
	want := mustAddr(t, "64:ff9b::192.0.2.5")
	if v6 != want {
		t.Errorf("EmbedRFC6052() = %v, want %v", v6, want)
	}
}

func TestTransport4Compare(t *testing.T) {
	t.Parallel()

	a := addr.Transport4{Addr: mustAddr(t, "192.0.2.1"), Port: 80}
	b := addr.Transport4{Addr: mustAddr(t, "192.0.2.1"), Port: 443}
	if addr.Transport4Compare(a, b) >= 0 {
		t.Error("expected a < b by port")
	}
	if !addr.Transport4Equal(a, a) {
		t.Error("expected a == a")
	}
}
