package protocol

import (
	"fmt"
	"sort"
)

// NoRefsCapabilitiesMarker is the placeholder ref name an empty repository
// advertises capabilities against, since there is no real ref to hang the
// first pkt-line's NUL-separated capability list off of.
const NoRefsCapabilitiesMarker = "capabilities^{}"

// BuildAdvertisement renders the ref advertisement for service: refs (keyed
// by hex object id, valued by ref name) plus the capability list, in pkt-line
// wire format terminated by a flush packet. refs may be empty, in which
// case a single zero-id "capabilities^{}" line carries the capability
// announcement instead (the empty-repository rule).
//
// When withServiceHeader is true (the smart HTTP GET /info/refs path), the
// output is prefixed with a "# service=<name>\n" pkt-line and a flush
// packet; the SSH/git:// transport omits it, going straight to the ref
// list.
func BuildAdvertisement(service ServiceType, refs map[string]string, withServiceHeader bool) ([]byte, error) {
	caps := FormatCapabilities(AdvertisedCapabilities(service))

	names := make([]string, 0, len(refs))
	for id := range refs {
		names = append(names, id)
	}
	sort.Slice(names, func(i, j int) bool { return refs[names[i]] < refs[names[j]] })

	var packs []Pack
	if withServiceHeader {
		packs = append(packs, PackLine(fmt.Sprintf("# service=%s\n", service)), FlushPacket)
	}

	if len(names) == 0 {
		packs = append(packs, PackLine(fmt.Sprintf("%s %s\x00%s\n", ZeroHash, NoRefsCapabilitiesMarker, caps)))
	} else {
		first := names[0]
		packs = append(packs, PackLine(fmt.Sprintf("%s %s\x00%s\n", first, refs[first], caps)))
		for _, id := range names[1:] {
			packs = append(packs, PackLine(fmt.Sprintf("%s %s\n", id, refs[id])))
		}
	}
	packs = append(packs, FlushPacket)

	return FormatPacks(packs...)
}

// sideBandWrap prefixes payload with the side-band channel byte, splitting
// it across as many pkt-lines as needed to stay under MaxPktLineDataSize.
// Callers only reach this once side-band-64k has been negotiated; otherwise
// they write payload unframed.
func sideBandWrap(channel byte, payload []byte) ([]byte, error) {
	const perLine = MaxPktLineDataSize - 1 // leave room for the channel byte
	var packs []Pack
	for len(payload) > 0 {
		n := len(payload)
		if n > perLine {
			n = perLine
		}
		chunk := make([]byte, 0, n+1)
		chunk = append(chunk, channel)
		chunk = append(chunk, payload[:n]...)
		packs = append(packs, PackLine(chunk))
		payload = payload[n:]
	}
	packs = append(packs, FlushPacket)
	return FormatPacks(packs...)
}

// Side-band channel bytes, per spec: 1 carries pack data, 2 carries
// progress/informational text, 3 carries a fatal error that ends the
// session.
const (
	SideBandData     byte = 0x01
	SideBandProgress byte = 0x02
	SideBandFatal    byte = 0x03
)
