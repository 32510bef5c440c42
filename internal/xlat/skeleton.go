package xlat

import "net/netip"

// mtuAdvertisementFloor is the minimum MTU ever advertised in a translated
// Packet-Too-Big message, large enough that the IPv6 sender's retry still
// clears the header-size delta.
const mtuAdvertisementFloor = 1280

// headerSizeDelta is the difference between an IPv6 header (40 bytes) and
// an IPv4 header (20 bytes); used when deriving an advertised MTU from a
// route MTU that was sized for IPv6.
const headerSizeDelta = 20

// skeletonResult is the outcome of a successful skeleton build: the
// resolved route plus the chosen outer source and destination addresses.
type skeletonResult struct {
	Route   Route
	Src4    netip.Addr
	Dst4    netip.Addr
}

// buildSkeleton resolves the egress route for flow.Dst4 within ns, and, if
// flow.Src4 is unspecified, selects a concrete source address: the route's
// egress device's first universe-scoped address, else the first
// universe-scoped address on any device in the namespace.
func buildSkeleton(routing RoutingService, ns NamespaceEnumerator, namespace string, flow Flow) (skeletonResult, Verdict) {
	var res skeletonResult

	route, ok := routing.Route4(namespace, flow.Dst4)
	if !ok && !route.Hairpin {
		return res, Drop(ErrNoRoute)
	}
	res.Route = route
	res.Dst4 = flow.Dst4

	src := flow.Src4
	if !src.IsValid() || src.IsUnspecified() {
		selected, ok := selectSource(route, ns, namespace, flow.Dst4)
		if !ok {
			return res, Drop(ErrNoPool6791Address)
		}
		src = selected
	}
	res.Src4 = src

	return res, Continue(nil)
}

// selectSource implements the skeleton builder's fallback source-address
// selection order: the route's egress device's first universe-scoped
// address, then the first universe-scoped address on any device in the
// namespace.
func selectSource(route Route, ns NamespaceEnumerator, namespace string, dst netip.Addr) (netip.Addr, bool) {
	if a, ok := firstUniverseScoped(route.Device.Addrs); ok {
		return a, true
	}
	for _, dev := range ns.Devices(namespace) {
		if a, ok := firstUniverseScoped(dev.Addrs); ok {
			return a, true
		}
	}
	return netip.Addr{}, false
}

func firstUniverseScoped(addrs []DeviceAddr) (netip.Addr, bool) {
	for _, a := range addrs {
		if a.Universe {
			return a.Addr, true
		}
	}
	return netip.Addr{}, false
}

// mtuGate implements the three-way MTU decision: if the outgoing size fits
// within the route MTU, continue; if the first fragment alone would
// exceed it, emit a Packet-Too-Big ICMPv6 error with the floor-adjusted
// advertised MTU and drop; if only a later fragment would exceed it, drop
// silently. ICMP errors are exempt from this gate (they are size-trimmed
// later in the ICMP translator) and should not be passed through it.
func mtuGate(routeMTU uint32, outgoingSize uint32, isFirstFragment bool) Verdict {
	if outgoingSize <= routeMTU {
		return Continue(nil)
	}
	if isFirstFragment {
		advertised := routeMTU + headerSizeDelta
		if advertised < mtuAdvertisementFloor {
			advertised = mtuAdvertisementFloor
		}
		return DropICMP(ErrExceedsRouteMTUFirstFragment, 0, advertised)
	}
	return Drop(ErrExceedsRouteMTULaterFragment)
}
