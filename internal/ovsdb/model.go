// Package ovsdb adapts an Open vSwitch database connection into the
// RoutingService and NamespaceEnumerator interfaces the translation
// pipeline consumes (internal/xlat.RoutingService,
// internal/xlat.NamespaceEnumerator). A translator instance has no netlink
// access of its own; it learns about egress devices, their addresses, and
// directly-connected routes from OVSDB Interface rows tagged with the
// owning namespace and route prefix via external_ids, the same
// external_ids-as-metadata convention OVN itself uses for everything it
// cannot express in the core schema.
package ovsdb

import "github.com/ovn-org/libovsdb/model"

// Interface mirrors the Open_vSwitch Interface table columns this adapter
// reads: name, MTU, and the external_ids carrying namespace/address/scope
// metadata this project layers on top of the stock OVS schema.
type Interface struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	MTU         *int              `ovsdb:"mtu"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// Port mirrors the Open_vSwitch Port table. It is part of the monitored
// model; the adapter does not read its rows.
type Port struct {
	UUID       string   `ovsdb:"_uuid"`
	Name       string   `ovsdb:"name"`
	Interfaces []string `ovsdb:"interfaces"`
}

// Bridge mirrors the Open_vSwitch Bridge table. It is part of the monitored
// model; the adapter does not read its rows (a device's namespace comes
// from the Interface row's own external_ids).
type Bridge struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Ports       []string          `ovsdb:"ports"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// DatabaseModel builds the libovsdb client model for the subset of the
// Open_vSwitch schema this adapter monitors.
func DatabaseModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel("Open_vSwitch", map[string]model.Model{
		"Interface": &Interface{},
		"Port":      &Port{},
		"Bridge":    &Bridge{},
	})
}
