// Package xlat implements the RFC 7915 6-to-4 packet translation pipeline:
// extension-header iteration, flow synthesis, skeleton construction, outer
// and inner IPv4 header translation, and TCP/UDP/ICMP header and checksum
// fix-up, including the recursive translation of ICMP-embedded inner
// packets. It also defines the interfaces the pipeline consumes from its
// host environment (routing, BIB lookup, ID allocation, metrics,
// namespace enumeration) so that the core never depends on a concrete
// kernel, netlink, or conntrack implementation.
package xlat

import "net/netip"

// -------------------------------------------------------------------------
// Consumed interfaces
// -------------------------------------------------------------------------

// DeviceAddr is one address configured on a Device, with its routing scope.
type DeviceAddr struct {
	Addr     netip.Addr
	Universe bool // true iff the address has RT_SCOPE_UNIVERSE or broader.
}

// Device is a network interface as seen by the routing service.
type Device struct {
	Name  string
	MTU   uint32
	Addrs []DeviceAddr
}

// Route is the result of a routing lookup.
type Route struct {
	Dst    netip.Addr
	MTU    uint32
	Device Device
	// Hairpin is true when the destination is itself a translated source
	// of the same instance, in which case routing is bypassed.
	Hairpin bool
}

// RoutingService is the host routing table, consulted read-only.
type RoutingService interface {
	// Route4 resolves an egress route for dst within namespace ns. ok is
	// false if no route exists and the packet is not a hairpin.
	Route4(ns string, dst netip.Addr) (Route, bool)
}

// NamespaceEnumerator lists the devices configured in a namespace, used by
// the skeleton builder's fallback source-address selection.
type NamespaceEnumerator interface {
	Devices(ns string) []Device
}

// BIBEntry is a bidirectional NAT64 binding between a v6 and a v4 transport
// address, consulted read-only by the core.
type BIBEntry struct {
	V6 Transport6
	V4 Transport4
}

// BIBLookup is the NAT64 Binding Information Base, an opaque lookup service
// owned and populated externally.
type BIBLookup interface {
	// Find looks up the BIB entry matching the given incoming tuple.
	Find(t Tuple) (BIBEntry, bool)
}

// IDAllocator supplies fresh IPv4 Identification values when the incoming
// IPv6 packet carried no Fragment header.
type IDAllocator interface {
	Identifier(ns string) (uint16, error)
}

// MetricsSink receives translation outcome and drop-reason notifications.
// The core package stays free of any concrete metrics library dependency;
// callers typically satisfy this with a thin adapter over a Prometheus
// collector.
type MetricsSink interface {
	IncTranslation(verdict string)
	IncDrop(reason string)
	IncICMPError(direction string)
}

// noopMetricsSink is used when a caller does not supply a MetricsSink.
type noopMetricsSink struct{}

func (noopMetricsSink) IncTranslation(string) {}
func (noopMetricsSink) IncDrop(string)        {}
func (noopMetricsSink) IncICMPError(string)   {}
