package config

import (
	"fmt"
	"net/netip"

	"github.com/go-xlat/xlat64/internal/addr"
	"github.com/go-xlat/xlat64/internal/xlat"
)

// Build converts a declarative InstanceConfig into a runtime xlat.Instance,
// parsing every address/prefix field. Callers must have already run
// Validate on the owning Config; Build also parses the fields Validate does
// not check (EAM, blacklist4, pool6791) and fails loudly on malformed
// input rather than silently dropping entries.
func Build(ic InstanceConfig) (*xlat.Instance, error) {
	mode, err := parseMode(ic.Mode)
	if err != nil {
		return nil, err
	}
	framework, err := parseFramework(ic.Framework)
	if err != nil {
		return nil, err
	}

	inst := &xlat.Instance{
		Mode:      mode,
		Name:      ic.Name,
		Framework: framework,
		Namespace: ic.Namespace,
		Global: xlat.GlobalConfig{
			ResetTOS: ic.ResetTOS,
			NewTOS:   ic.NewTOS,
		},
	}

	var pool6 addr.Prefix6
	if ic.Pool6 != "" {
		pool6, err = parsePrefix6(ic.Pool6)
		if err != nil {
			return nil, fmt.Errorf("pool6: %w", err)
		}
	}

	switch mode {
	case xlat.ModeSIIT:
		eam, err := buildEAM(ic.EAM)
		if err != nil {
			return nil, err
		}
		blacklist, err := buildBlacklist4(ic.Blacklist4)
		if err != nil {
			return nil, err
		}
		pool6791, err := buildPool6791(ic.Pool6791)
		if err != nil {
			return nil, err
		}
		inst.SIIT = &xlat.SIITState{
			EAM:        eam,
			Blacklist4: blacklist,
			Pool6791:   pool6791,
			Pool6:      pool6,
		}
	case xlat.ModeNAT64:
		inst.NAT64 = &xlat.NAT64State{Pool6: pool6}
	}

	return inst, nil
}

func parseMode(s string) (xlat.Mode, error) {
	switch s {
	case "siit":
		return xlat.ModeSIIT, nil
	case "nat64":
		return xlat.ModeNAT64, nil
	default:
		return 0, fmt.Errorf("mode %q: %w", s, ErrInvalidInstanceMode)
	}
}

func parseFramework(s string) (xlat.Framework, error) {
	switch s {
	case "netfilter":
		return xlat.FrameworkNetfilter, nil
	case "iptables":
		return xlat.FrameworkIPTables, nil
	default:
		return 0, fmt.Errorf("framework %q: %w", s, ErrInvalidInstanceFramework)
	}
}

func parsePrefix4(s string) (addr.Prefix4, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return addr.Prefix4{}, fmt.Errorf("parse ipv4 prefix %q: %w", s, err)
	}
	if !p.Addr().Is4() {
		return addr.Prefix4{}, fmt.Errorf("prefix %q is not IPv4", s)
	}
	return addr.Prefix4{Addr: p.Addr(), Len: p.Bits()}, nil
}

func parsePrefix6(s string) (addr.Prefix6, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return addr.Prefix6{}, fmt.Errorf("parse ipv6 prefix %q: %w", s, err)
	}
	if !p.Addr().Is6() {
		return addr.Prefix6{}, fmt.Errorf("prefix %q is not IPv6", s)
	}
	return addr.Prefix6{Addr: p.Addr(), Len: p.Bits()}, nil
}

func buildEAM(entries []EAMEntryConfig) (*xlat.EAMTable, error) {
	out := make([]xlat.EAMEntry, 0, len(entries))
	for i, e := range entries {
		p4, err := parsePrefix4(e.Prefix4)
		if err != nil {
			return nil, fmt.Errorf("eam[%d]: %w", i, err)
		}
		p6, err := parsePrefix6(e.Prefix6)
		if err != nil {
			return nil, fmt.Errorf("eam[%d]: %w", i, err)
		}
		out = append(out, xlat.EAMEntry{Prefix4: p4, Prefix6: p6})
	}
	return xlat.NewEAMTable(out), nil
}

func buildBlacklist4(prefixes []string) (xlat.Blacklist4, error) {
	out := make(xlat.Blacklist4, 0, len(prefixes))
	for i, s := range prefixes {
		p, err := parsePrefix4(s)
		if err != nil {
			return nil, fmt.Errorf("blacklist4[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func buildPool6791(addrs []string) (*xlat.Pool6791, error) {
	out := make([]netip.Addr, 0, len(addrs))
	for i, s := range addrs {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("pool6791[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return xlat.NewPool6791(out), nil
}
