package xlat

import "errors"

// Sentinel errors, grouped by the error-handling design's kind taxonomy.
// Every Drop/DropICMP verdict carries exactly one of these as its Reason.

// Malformed-input: bad header chain, hop-limit exhausted, nonzero segments-left.
var (
	ErrHopLimitExhausted       = errors.New("malformed-input: hop limit exhausted")
	ErrSegmentsLeftNonzero     = errors.New("malformed-input: routing header segments-left nonzero")
	ErrMalformedExtensionChain = errors.New("malformed-input: malformed ipv6 extension header chain")
	ErrTruncatedPacket         = errors.New("malformed-input: packet truncated before declared header end")
)

// Unsupported-map: ICMP type/code or Parameter-Problem pointer has no IPv4 counterpart.
var (
	ErrUnsupportedICMPTypeCode        = errors.New("unsupported-map: icmpv6 type/code has no ipv4 counterpart")
	ErrUnsupportedParamProblemPointer = errors.New("unsupported-map: parameter-problem pointer has no ipv4 counterpart")
)

// Addressing-failure: no pool4 mapping, no pool6791 address, untranslatable
// ICMP error source.
var (
	ErrNoAddressMapping     = errors.New("addressing-failure: no siit or nat64 address mapping available")
	ErrNoPool6791Address    = errors.New("addressing-failure: no pool6791 address available for masking")
	ErrUntranslatableSource = errors.New("addressing-failure: untranslatable source address in icmp error")
	ErrBIBEntryNotFound     = errors.New("addressing-failure: no bib entry for flow")
)

// Routing-failure: no route to destination.
var ErrNoRoute = errors.New("routing-failure: no route to destination")

// Resource-exhaustion: allocation failure, checksum-validation failure.
var (
	ErrAllocationFailure    = errors.New("resource-exhaustion: output buffer allocation failure")
	ErrChecksumValidation   = errors.New("resource-exhaustion: incoming checksum failed validation")
	ErrIdentifierAllocation = errors.New("resource-exhaustion: ipv4 identifier allocation failure")
)

// Size-failure: packet exceeds route MTU after translation.
var (
	ErrExceedsRouteMTUFirstFragment = errors.New("size-failure: first fragment exceeds route mtu")
	ErrExceedsRouteMTULaterFragment = errors.New("size-failure: later fragment exceeds route mtu")
)
