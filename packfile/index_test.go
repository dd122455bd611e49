package packfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/protocol/object"
)

func TestIndex_RoundTrip(t *testing.T) {
	t.Parallel()

	a, err := gitobject.New(object.TypeBlob, []byte("first blob"))
	require.NoError(t, err)
	bObj, err := gitobject.New(object.TypeBlob, []byte("second blob, a bit longer"))
	require.NoError(t, err)
	c, err := gitobject.New(object.TypeTree, []byte{})
	require.NoError(t, err)

	encoded, err := Encode([]EncodableObject{
		&gitobjectAdapter{kind: a.Kind, payload: a.Payload},
		&gitobjectAdapter{kind: bObj.Kind, payload: bObj.Payload},
		&gitobjectAdapter{kind: c.Kind, payload: c.Payload},
	})
	require.NoError(t, err)

	decoded, trailer, err := Decode(bytes.NewReader(encoded), nil)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	idx, err := BuildIndex(encoded, decoded, trailer)
	require.NoError(t, err)
	require.Equal(t, uint32(2), idx.Version)
	require.Len(t, idx.Entries, 3)

	// Entries must be sorted bytewise by id.
	for i := 1; i < len(idx.Entries); i++ {
		require.True(t, bytes.Compare(idx.Entries[i-1].ID, idx.Entries[i].ID) < 0)
	}

	idxBytes, err := idx.Encode()
	require.NoError(t, err)

	parsed, err := DecodeIndex(idxBytes)
	require.NoError(t, err)
	require.Equal(t, idx.Version, parsed.Version)
	require.Equal(t, idx.FanOut, parsed.FanOut)
	require.Len(t, parsed.Entries, 3)
	require.True(t, idx.PackTrailer.Is(parsed.PackTrailer))

	for _, obj := range decoded {
		off, ok := parsed.Lookup(obj.ID)
		require.True(t, ok)
		require.Equal(t, obj.Offset, off)
	}
}

func TestIndex_LookupMiss(t *testing.T) {
	t.Parallel()

	a, err := gitobject.New(object.TypeBlob, []byte("only object"))
	require.NoError(t, err)
	encoded, err := Encode([]EncodableObject{&gitobjectAdapter{kind: a.Kind, payload: a.Payload}})
	require.NoError(t, err)

	decoded, trailer, err := Decode(bytes.NewReader(encoded), nil)
	require.NoError(t, err)

	idx, err := BuildIndex(encoded, decoded, trailer)
	require.NoError(t, err)

	var missing [20]byte
	for i := range missing {
		missing[i] = 0xAB
	}
	_, ok := idx.Lookup(missing[:])
	require.False(t, ok)
}

func TestDecodeIndex_RejectsBadHeader(t *testing.T) {
	t.Parallel()

	_, err := DecodeIndex(bytes.Repeat([]byte{0}, 4+4+256*4+40))
	require.Error(t, err)
	var hdrErr *InvalidIdxHeaderError
	require.ErrorAs(t, err, &hdrErr)
}

func TestDecodeIndex_RejectsTamperedTrailer(t *testing.T) {
	t.Parallel()

	a, err := gitobject.New(object.TypeBlob, []byte("content"))
	require.NoError(t, err)
	encoded, err := Encode([]EncodableObject{&gitobjectAdapter{kind: a.Kind, payload: a.Payload}})
	require.NoError(t, err)
	decoded, trailer, err := Decode(bytes.NewReader(encoded), nil)
	require.NoError(t, err)

	idx, err := BuildIndex(encoded, decoded, trailer)
	require.NoError(t, err)
	idxBytes, err := idx.Encode()
	require.NoError(t, err)
	idxBytes[len(idxBytes)-1] ^= 0xff

	_, err = DecodeIndex(idxBytes)
	require.Error(t, err)
	var trailerErr *InvalidIdxTrailerError
	require.ErrorAs(t, err, &trailerErr)
}
