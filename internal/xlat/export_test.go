package xlat

import "net/netip"

// Thin re-exports of unexported pipeline steps for black-box package tests.

var MTUGateForTest = mtuGate

// SkeletonResult mirrors skeletonResult's fields for test-package access.
type SkeletonResult struct {
	Route Route
	Src4  netip.Addr
	Dst4  netip.Addr
}

func BuildSkeletonForTest(routing RoutingService, ns NamespaceEnumerator, namespace string, flow Flow) (SkeletonResult, Verdict) {
	res, v := buildSkeleton(routing, ns, namespace, flow)
	return SkeletonResult{Route: res.Route, Src4: res.Src4, Dst4: res.Dst4}, v
}

var OuterDropCheckForTest = outerDropCheck
var BuildOuterIPv4HeaderForTest = buildOuterIPv4Header
var BuildInnerIPv4HeaderForTest = buildInnerIPv4Header
var TranslateTCPForTest = translateTCP
var TranslateUDPForTest = translateUDP
