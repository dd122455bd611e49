package protocol

import "strings"

// Capability is one token from the closed set a client or server may
// announce during the first want/have/ref-update line of a v1 session.
type Capability string

const (
	CapReportStatus     Capability = "report-status"
	CapReportStatusV2   Capability = "report-status-v2"
	CapDeleteRefs       Capability = "delete-refs"
	CapQuiet            Capability = "quiet"
	CapAtomic           Capability = "atomic"
	CapSideBand         Capability = "side-band"
	CapSideBand64k      Capability = "side-band-64k"
	CapOfsDelta         Capability = "ofs-delta"
	CapShallow          Capability = "shallow"
	CapDeepenSince      Capability = "deepen-since"
	CapDeepenNot        Capability = "deepen-not"
	CapDeepenRelative   Capability = "deepen-relative"
	CapMultiACKDetailed Capability = "multi_ack_detailed"
	CapNoDone           Capability = "no-done"
	CapThinPack         Capability = "thin-pack"
	CapObjectFormatSHA1 Capability = "object-format=sha1"
)

// ServiceType names which of the two v1 services a session is speaking.
type ServiceType int

const (
	ServiceUploadPack ServiceType = iota
	ServiceReceivePack
)

func (s ServiceType) String() string {
	switch s {
	case ServiceUploadPack:
		return "git-upload-pack"
	case ServiceReceivePack:
		return "git-receive-pack"
	default:
		return "unknown"
	}
}

// commonCapabilities are sent and recognized by both services.
var commonCapabilities = []Capability{CapSideBand64k, CapOfsDelta, CapObjectFormatSHA1}

// uploadPackCapabilities are recognized only by upload-pack (fetch).
var uploadPackCapabilities = []Capability{
	CapShallow, CapDeepenSince, CapDeepenNot, CapDeepenRelative,
	CapMultiACKDetailed, CapNoDone,
}

// receivePackCapabilities are recognized only by receive-pack (push).
var receivePackCapabilities = []Capability{
	CapReportStatus, CapReportStatusV2, CapDeleteRefs, CapQuiet, CapAtomic,
}

// AdvertisedCapabilities returns the capability list the server advertises
// for service, in the fixed order spec'd for each.
func AdvertisedCapabilities(service ServiceType) []Capability {
	switch service {
	case ServiceUploadPack:
		return append(append([]Capability{}, uploadPackCapabilities...), commonCapabilities...)
	case ServiceReceivePack:
		return append(append([]Capability{}, receivePackCapabilities...), commonCapabilities...)
	default:
		return append([]Capability{}, commonCapabilities...)
	}
}

// FormatCapabilities joins caps into the space-separated list that follows
// the NUL on an advertisement's first ref line.
func FormatCapabilities(caps []Capability) string {
	words := make([]string, len(caps))
	for i, c := range caps {
		words[i] = string(c)
	}
	return strings.Join(words, " ")
}

// CapabilitySet is a parsed announcement from a client's first want/have or
// ref-update line. Unknown tokens are dropped silently (forward-compatible
// per spec).
type CapabilitySet map[Capability]bool

// ParseCapabilities splits a space-separated capability announcement into a
// CapabilitySet, ignoring unrecognized tokens and `key=value` tokens other
// than the ones this server understands structurally (object-format is
// recorded as a bare flag here; its value is not otherwise interpreted,
// since SHA-1 is the only supported hash).
func ParseCapabilities(s string) CapabilitySet {
	set := make(CapabilitySet)
	for _, word := range strings.Fields(s) {
		if knownCapabilities[Capability(word)] {
			set[Capability(word)] = true
		}
	}
	return set
}

// knownCapabilities is the closed set of tokens ParseCapabilities records.
var knownCapabilities = map[Capability]bool{
	CapReportStatus: true, CapReportStatusV2: true, CapDeleteRefs: true, CapQuiet: true,
	CapAtomic: true, CapSideBand: true, CapSideBand64k: true, CapOfsDelta: true,
	CapShallow: true, CapDeepenSince: true, CapDeepenNot: true, CapDeepenRelative: true,
	CapMultiACKDetailed: true, CapNoDone: true, CapThinPack: true, CapObjectFormatSHA1: true,
}

// Has reports whether cap was announced.
func (s CapabilitySet) Has(cap Capability) bool {
	return s[cap]
}
