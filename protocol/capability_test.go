package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/monogit/protocol"
)

func TestAdvertisedCapabilities(t *testing.T) {
	t.Parallel()

	upload := protocol.AdvertisedCapabilities(protocol.ServiceUploadPack)
	require.Contains(t, upload, protocol.CapMultiACKDetailed)
	require.Contains(t, upload, protocol.CapSideBand64k)
	require.Contains(t, upload, protocol.CapOfsDelta)
	require.NotContains(t, upload, protocol.CapAtomic)
	require.NotContains(t, upload, protocol.CapReportStatus)

	receive := protocol.AdvertisedCapabilities(protocol.ServiceReceivePack)
	require.Contains(t, receive, protocol.CapAtomic)
	require.Contains(t, receive, protocol.CapReportStatus)
	require.Contains(t, receive, protocol.CapDeleteRefs)
	require.Contains(t, receive, protocol.CapSideBand64k)
	require.NotContains(t, receive, protocol.CapMultiACKDetailed)
}

func TestFormatCapabilities(t *testing.T) {
	t.Parallel()

	got := protocol.FormatCapabilities([]protocol.Capability{protocol.CapAtomic, protocol.CapReportStatus})
	require.Equal(t, "atomic report-status", got)

	require.Equal(t, "", protocol.FormatCapabilities(nil))
}

func TestParseCapabilities(t *testing.T) {
	t.Parallel()

	set := protocol.ParseCapabilities("report-status-v2 side-band-64k object-format=sha1")
	require.True(t, set.Has(protocol.CapReportStatusV2))
	require.True(t, set.Has(protocol.CapSideBand64k))
	require.False(t, set.Has(protocol.CapAtomic))

	// Unknown tokens are dropped silently rather than erroring, per the
	// forward-compatibility rule.
	set = protocol.ParseCapabilities("totally-made-up-token atomic")
	require.True(t, set.Has(protocol.CapAtomic))
	require.False(t, set.Has(protocol.Capability("totally-made-up-token")))
}

func TestCapabilitySet_Has_Empty(t *testing.T) {
	t.Parallel()

	var set protocol.CapabilitySet
	require.False(t, set.Has(protocol.CapAtomic))
}

func TestServiceType_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "git-upload-pack", protocol.ServiceUploadPack.String())
	require.Equal(t, "git-receive-pack", protocol.ServiceReceivePack.String())
	require.Equal(t, "unknown", protocol.ServiceType(99).String())
}
