package ovsdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/ovn-org/libovsdb/client"

	"github.com/go-xlat/xlat64/internal/xlat"
)

// External-ID keys this adapter reads off the Interface table. Nothing in
// the stock Open_vSwitch schema carries namespace or routing-prefix
// metadata, so it rides along in external_ids the way OVN's own
// northbound/southbound glue does.
const (
	extIDNamespace      = "namespace"
	extIDAddresses      = "xlat64_addresses"      // comma-separated CIDR list
	extIDUniverseAddrs  = "xlat64_universe_addrs" // comma-separated subset of the above, RT_SCOPE_UNIVERSE
	extIDRoutePrefixes  = "xlat64_route_prefixes" // comma-separated CIDR list this interface is egress for
	defaultInterfaceMTU = 1500
)

// Adapter is a RoutingService and NamespaceEnumerator backed by a live
// OVSDB connection to an Open vSwitch instance.
type Adapter struct {
	client client.Client
	logger *slog.Logger
}

// New connects to the Open vSwitch database at endpoint (e.g.
// "tcp:127.0.0.1:6640" or "unix:/var/run/openvswitch/db.sock") and begins
// monitoring the Interface/Port/Bridge tables.
func New(ctx context.Context, endpoint string, logger *slog.Logger) (*Adapter, error) {
	dbModel, err := DatabaseModel()
	if err != nil {
		return nil, fmt.Errorf("build ovsdb client model: %w", err)
	}

	c, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create ovsdb client: %w", err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to ovsdb at %s: %w", endpoint, err)
	}
	if _, err := c.MonitorAll(ctx); err != nil {
		c.Disconnect()
		return nil, fmt.Errorf("monitor ovsdb tables: %w", err)
	}

	logger.Info("connected to ovsdb", slog.String("endpoint", endpoint))
	return &Adapter{client: c, logger: logger}, nil
}

// Close disconnects from the database.
func (a *Adapter) Close() {
	a.client.Disconnect()
}

// Devices implements xlat.NamespaceEnumerator: every Interface row tagged
// with namespace ns, decoded into a Device.
func (a *Adapter) Devices(ns string) []xlat.Device {
	ifaces, err := a.listInterfaces(ns)
	if err != nil {
		a.logger.Warn("list interfaces failed", slog.String("namespace", ns), slog.String("error", err.Error()))
		return nil
	}

	devices := make([]xlat.Device, 0, len(ifaces))
	for _, iface := range ifaces {
		devices = append(devices, interfaceToDevice(iface))
	}
	return devices
}

// Route4 implements xlat.RoutingService: the longest matching
// xlat64_route_prefixes entry among the namespace's interfaces, or a
// hairpin route when dst is itself one of the namespace's own addresses.
func (a *Adapter) Route4(ns string, dst netip.Addr) (xlat.Route, bool) {
	ifaces, err := a.listInterfaces(ns)
	if err != nil {
		a.logger.Warn("list interfaces failed", slog.String("namespace", ns), slog.String("error", err.Error()))
		return xlat.Route{}, false
	}

	var best *Interface
	bestLen := -1
	for i, iface := range ifaces {
		for _, cidr := range splitCSV(iface.ExternalIDs[extIDRoutePrefixes]) {
			prefix, err := netip.ParsePrefix(cidr)
			if err != nil || !prefix.Contains(dst) {
				continue
			}
			if prefix.Bits() > bestLen {
				bestLen = prefix.Bits()
				best = &ifaces[i]
			}
		}
		for _, addrStr := range splitCSV(iface.ExternalIDs[extIDAddresses]) {
			if addr, err := netip.ParseAddr(stripMask(addrStr)); err == nil && addr == dst {
				return xlat.Route{Dst: dst, MTU: interfaceMTU(iface), Device: interfaceToDevice(iface), Hairpin: true}, true
			}
		}
	}

	if best == nil {
		return xlat.Route{}, false
	}
	return xlat.Route{Dst: dst, MTU: interfaceMTU(*best), Device: interfaceToDevice(*best)}, true
}

func (a *Adapter) listInterfaces(ns string) ([]Interface, error) {
	var all []Interface
	if err := a.client.List(context.Background(), &all); err != nil {
		return nil, fmt.Errorf("list Interface table: %w", err)
	}
	out := all[:0]
	for _, iface := range all {
		if iface.ExternalIDs[extIDNamespace] == ns {
			out = append(out, iface)
		}
	}
	return out, nil
}

func interfaceToDevice(iface Interface) xlat.Device {
	universe := make(map[string]bool)
	for _, a := range splitCSV(iface.ExternalIDs[extIDUniverseAddrs]) {
		universe[stripMask(a)] = true
	}

	var addrs []xlat.DeviceAddr
	for _, a := range splitCSV(iface.ExternalIDs[extIDAddresses]) {
		addr, err := netip.ParseAddr(stripMask(a))
		if err != nil {
			continue
		}
		addrs = append(addrs, xlat.DeviceAddr{Addr: addr, Universe: universe[addr.String()]})
	}

	return xlat.Device{Name: iface.Name, MTU: interfaceMTU(iface), Addrs: addrs}
}

func interfaceMTU(iface Interface) uint32 {
	if iface.MTU != nil && *iface.MTU > 0 {
		return uint32(*iface.MTU)
	}
	return defaultInterfaceMTU
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stripMask drops a trailing "/NN" CIDR suffix, if present, tolerating
// external_ids values written as either bare addresses or prefixes.
func stripMask(s string) string {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}
