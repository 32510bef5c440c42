package xlat

import (
	"net/netip"
	"sync"

	"github.com/go-xlat/xlat64/internal/addr"
)

// Mode distinguishes stateless SIIT translation from stateful NAT64. The
// tag is immutable for the life of an Instance.
type Mode int

const (
	ModeSIIT Mode = iota
	ModeNAT64
)

func (m Mode) String() string {
	if m == ModeNAT64 {
		return "nat64"
	}
	return "siit"
}

// Framework distinguishes the packet-hook mechanism an instance is attached
// to. At most one Framework Netfilter instance may exist per namespace.
type Framework int

const (
	FrameworkIPTables Framework = iota
	FrameworkNetfilter
)

func (f Framework) String() string {
	if f == FrameworkNetfilter {
		return "netfilter"
	}
	return "iptables"
}

// GlobalConfig is the per-instance configuration snapshot shared by both
// modes.
type GlobalConfig struct {
	// ResetTOS, if true, replaces the translated TOS byte with NewTOS
	// instead of copying the IPv6 Traffic Class.
	ResetTOS bool
	NewTOS   uint8
}

// EAMEntry is one Explicit Address Mapping pair (SIIT).
type EAMEntry struct {
	Prefix4 addr.Prefix4
	Prefix6 addr.Prefix6
}

// EAMTable is a simple, read-mostly Explicit Address Mapping table. The
// core never mutates it; it is populated by the config layer at instance
// construction time.
type EAMTable struct {
	entries []EAMEntry
}

// NewEAMTable builds an EAMTable from entries.
func NewEAMTable(entries []EAMEntry) *EAMTable {
	cp := make([]EAMEntry, len(entries))
	copy(cp, entries)
	return &EAMTable{entries: cp}
}

// Lookup6 finds the IPv4 address EAM-mapped to v6, translating the suffix
// bits past the matching IPv6 prefix length onto the IPv4 prefix base.
func (t *EAMTable) Lookup6(v6 netip.Addr) (netip.Addr, bool) {
	if t == nil {
		return netip.Addr{}, false
	}
	for _, e := range t.entries {
		if addr.Prefix6Contains(e.Prefix6, v6) {
			suffixLen := uint(32 - e.Prefix4.Len)
			hostBits := addr.Addr6GetBits(v6, uint(e.Prefix6.Len), suffixLen)
			result := addr.Addr4SetBits(e.Prefix4.Addr, uint(e.Prefix4.Len), suffixLen, hostBits)
			return result, true
		}
	}
	return netip.Addr{}, false
}

// Lookup4 finds the IPv6 address EAM-mapped to v4.
func (t *EAMTable) Lookup4(v4 netip.Addr) (netip.Addr, bool) {
	if t == nil {
		return netip.Addr{}, false
	}
	for _, e := range t.entries {
		if addr.Prefix4Contains(e.Prefix4, v4) {
			suffixLen := uint(32 - e.Prefix4.Len)
			hostBits := addr.Addr4GetBits(v4, uint(e.Prefix4.Len), suffixLen)
			result := addr.Addr6SetBits(e.Prefix6.Addr, uint(e.Prefix6.Len), suffixLen, hostBits)
			return result, true
		}
	}
	return netip.Addr{}, false
}

// Blacklist4 is a set of IPv4 prefixes that must never be sources of
// translated addresses (SIIT).
type Blacklist4 []addr.Prefix4

// Contains reports whether a falls within any blacklisted prefix.
func (b Blacklist4) Contains(a netip.Addr) bool {
	for _, p := range b {
		if addr.Prefix4Contains(p, a) {
			return true
		}
	}
	return false
}

// Pool6791 is a set of IPv4 addresses usable to mask untranslatable ICMP
// error sources (RFC 6791).
type Pool6791 struct {
	mu   sync.Mutex
	next int
	addrs []netip.Addr
}

// NewPool6791 builds a Pool6791 from addrs.
func NewPool6791(addrs []netip.Addr) *Pool6791 {
	cp := make([]netip.Addr, len(addrs))
	copy(cp, addrs)
	return &Pool6791{addrs: cp}
}

// Any returns a masking address, round-robin, or false if the pool is empty.
func (p *Pool6791) Any() (netip.Addr, bool) {
	if p == nil || len(p.addrs) == 0 {
		return netip.Addr{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.addrs[p.next%len(p.addrs)]
	p.next++
	return a, true
}

// SIITState is the SIIT-only sub-state of an Instance.
type SIITState struct {
	EAM        *EAMTable
	Blacklist4 Blacklist4
	Pool6791   *Pool6791
	Pool6      addr.Prefix6
}

// Pool4Allocator is the NAT64 IPv4 transport-address pool, consulted as an
// opaque lookup/allocation service (owned and populated externally).
type Pool4Allocator interface {
	Allocate(ns string, proto uint8) (Transport4, bool)
}

// NAT64State is the NAT64-only sub-state of an Instance. BIB and Pool4 are
// consulted as opaque lookup services owned and populated externally;
// joold synchronization and IPv6 fragment reassembly are out of scope
// entirely and have no representation here.
type NAT64State struct {
	BIB   BIBLookup
	Pool4 Pool4Allocator
	// Pool6 is the RFC 6052 translation prefix used to derive the IPv4
	// counterpart of any IPv6 address not covered by a BIB entry (e.g. the
	// remote endpoint of a connection, embedded via the same rule SIIT
	// uses for its pool6).
	Pool6 addr.Prefix6
}

// Instance is an immutable-after-publication bundle describing one
// translator: a mode tag, an instance name, a framework tag, the owning
// namespace, a global-configuration snapshot, and mode-specific sub-state
// represented as a tagged variant (only one of SIIT/NAT64 is non-nil,
// selected by Mode).
type Instance struct {
	Mode      Mode
	Name      string
	Framework Framework
	Namespace string
	Global    GlobalConfig

	SIIT  *SIITState
	NAT64 *NAT64State
}

// ValidateName reports whether name satisfies the registry's naming
// invariant: non-empty, <=15 bytes, printable.
func ValidateName(name string) bool {
	if name == "" || len(name) > 15 {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
