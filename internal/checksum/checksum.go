// Package checksum implements the one's-complement 16-bit checksum
// arithmetic the translation pipeline needs: pseudo-header sums for IPv4
// and IPv6, the incremental v6-pseudo-to-v4-pseudo substitution primitive
// used when a buffer already carries a full L4 checksum, the companion
// primitive for buffers that carry only a pseudo-header partial sum, the
// UDP zero-fold special case, and full-recompute helpers for IPv4 headers
// and ICMP errors (which carry no pseudo-header at all).
//
// Sums are accumulated in 32-bit registers and folded to 16 bits only at
// the end, so intermediate carries are never lost.
package checksum

import (
	"encoding/binary"
	"net/netip"
)

// Mode describes the checksum state of a packet buffer's L4 header, as
// reported by the owning packet-buffer service.
type Mode int

const (
	// ModeNone indicates a full checksum is present.
	ModeNone Mode = iota
	// ModePartial indicates the buffer carries only the pseudo-header
	// contribution at a fixed offset; the actual checksum is computed
	// by the NIC.
	ModePartial
	// ModeUnnecessary indicates the checksum has already been validated
	// by hardware and need not be re-verified.
	ModeUnnecessary
)

// -------------------------------------------------------------------------
// Accumulator
// -------------------------------------------------------------------------

// Accumulator is a 32-bit one's-complement checksum accumulator.
type Accumulator uint32

// AddBytes folds b, a big-endian byte slice of even length, into the
// accumulator as a sequence of 16-bit words.
func (a *Accumulator) AddBytes(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		*a += Accumulator(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		*a += Accumulator(b[len(b)-1]) << 8
	}
}

// AddUint16 folds a single 16-bit word into the accumulator.
func (a *Accumulator) AddUint16(v uint16) { *a += Accumulator(v) }

// SubUint16 removes a single 16-bit word from the accumulator.
func (a *Accumulator) SubUint16(v uint16) { *a += Accumulator(^v) }

// SubBytes removes b from the accumulator (the inverse of AddBytes).
func (a *Accumulator) SubBytes(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		a.SubUint16(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if len(b)%2 == 1 {
		a.SubUint16(uint16(b[len(b)-1]) << 8)
	}
}

// Fold reduces the accumulator to a 16-bit one's-complement sum by folding
// carries until none remain, then returns the one's complement (the value
// ready to be written into a checksum field).
func (a Accumulator) Fold() uint16 {
	v := uint32(a)
	for v>>16 != 0 {
		v = (v & 0xffff) + (v >> 16)
	}
	return ^uint16(v)
}

// FoldPartial is like Fold but returns the raw (non-complemented) folded
// sum, used when only the pseudo-header contribution is being carried
// forward in partial-checksum mode.
func (a Accumulator) FoldPartial() uint16 {
	v := uint32(a)
	for v>>16 != 0 {
		v = (v & 0xffff) + (v >> 16)
	}
	return uint16(v)
}

// -------------------------------------------------------------------------
// Pseudo-headers
// -------------------------------------------------------------------------

// PseudoHeader6 returns the byte sequence summed for an IPv6 pseudo-header:
// saddr || daddr. Per the translation pipeline's contract, Payload Length
// and Next Header are summed as zero because they are identical before and
// after translation and therefore cancel in the incremental update.
func PseudoHeader6(saddr, daddr netip.Addr) []byte {
	buf := make([]byte, 0, 32)
	s, d := saddr.As16(), daddr.As16()
	buf = append(buf, s[:]...)
	buf = append(buf, d[:]...)
	return buf
}

// PseudoHeader4 returns the byte sequence summed for an IPv4 pseudo-header:
// saddr || daddr || 0 || 0.
func PseudoHeader4(saddr, daddr netip.Addr) []byte {
	buf := make([]byte, 0, 8)
	s, d := saddr.As4(), daddr.As4()
	buf = append(buf, s[:]...)
	buf = append(buf, d[:]...)
	buf = append(buf, 0, 0)
	return buf
}

// -------------------------------------------------------------------------
// Incremental update primitives
// -------------------------------------------------------------------------

// Update6to4 implements the full-checksum incremental-update primitive:
// given the old 16-bit checksum c (already folded and complemented), the
// v6 pseudo-header and v4 pseudo-header it replaces, and the old and new
// L4 header bytes (identical length; may be the same slice if the header
// bytes did not change), it subtracts the v6 pseudo and old header, adds
// the v4 pseudo and new header, and returns the refolded checksum.
func Update6to4(c uint16, v6Pseudo, v4Pseudo, oldHdr, newHdr []byte) uint16 {
	var acc Accumulator
	// Seed with the complement of c re-expanded: since c is already a
	// one's-complement folded value, undo the complement to recover the
	// original sum contribution.
	acc.AddUint16(^c)
	acc.SubBytes(v6Pseudo)
	acc.SubBytes(oldHdr)
	acc.AddBytes(v4Pseudo)
	acc.AddBytes(newHdr)
	return acc.Fold()
}

// Update6to4Partial implements the partial-checksum incremental-update
// primitive: the buffer carries only the pseudo-header contribution
// (non-complemented) at a fixed offset. It substitutes the v4 pseudo-header
// for the v6 one without touching any L4 header bytes, and returns the new
// partial (non-complemented) sum.
func Update6to4Partial(partial uint16, v6Pseudo, v4Pseudo []byte) uint16 {
	var acc Accumulator
	acc.AddUint16(partial)
	acc.SubBytes(v6Pseudo)
	acc.AddBytes(v4Pseudo)
	return acc.FoldPartial()
}

// -------------------------------------------------------------------------
// Full recompute
// -------------------------------------------------------------------------

// ComputeIPv4HeaderChecksum computes the IPv4 header checksum over hdr
// (the 20-byte fixed header with the checksum field zeroed).
func ComputeIPv4HeaderChecksum(hdr []byte) uint16 {
	var acc Accumulator
	acc.AddBytes(hdr)
	return acc.Fold()
}

// ComputeTCPUDPChecksum computes a full TCP/UDP checksum from scratch over
// the v4 pseudo-header, the L4 header (with checksum field zeroed), and the
// payload.
func ComputeTCPUDPChecksum(v4Pseudo, l4HeaderAndPayload []byte) uint16 {
	var acc Accumulator
	acc.AddBytes(v4Pseudo)
	acc.AddBytes(l4HeaderAndPayload)
	return acc.Fold()
}

// FoldUDP applies the UDP zero-fold special case: a folded checksum of
// 0x0000 must be written as 0xFFFF, since 0x0000 means "no checksum".
func FoldUDP(c uint16) uint16 {
	if c == 0 {
		return 0xffff
	}
	return c
}

// ComputeICMPChecksum computes an ICMPv4 checksum from scratch. ICMPv4
// carries no pseudo-header.
func ComputeICMPChecksum(icmpHeaderAndPayload []byte) uint16 {
	var acc Accumulator
	acc.AddBytes(icmpHeaderAndPayload)
	return acc.Fold()
}

// icmpv6NextHeader is the IPv6 Next Header value for ICMPv6 (RFC 4443).
const icmpv6NextHeader = 58

// ValidateICMPv6Checksum verifies an incoming ICMPv6 checksum before the
// packet is touched, using the full IPv6 pseudo-header (saddr, daddr,
// upper-layer length, and the ICMPv6 next-header value). If mode is
// ModeUnnecessary (hardware-validated), the check is skipped and true is
// returned.
func ValidateICMPv6Checksum(mode Mode, saddr, daddr netip.Addr, icmpHeaderAndPayload []byte) bool {
	if mode == ModeUnnecessary {
		return true
	}
	var acc Accumulator
	s, d := saddr.As16(), daddr.As16()
	acc.AddBytes(s[:])
	acc.AddBytes(d[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(icmpHeaderAndPayload)))
	acc.AddBytes(lenBuf[:])
	acc.AddUint16(icmpv6NextHeader)
	acc.AddBytes(icmpHeaderAndPayload)
	return acc.Fold() == 0
}
