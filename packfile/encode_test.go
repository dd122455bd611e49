package packfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/protocol/object"
)

func TestEncode_EmptyPack(t *testing.T) {
	t.Parallel()

	data, err := Encode(nil)
	require.NoError(t, err)

	objects, _, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Empty(t, objects)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	blob, err := gitobject.New(object.TypeBlob, []byte("round trip me\n"))
	require.NoError(t, err)
	tree, err := gitobject.New(object.TypeTree, []byte{})
	require.NoError(t, err)

	objects := []EncodableObject{
		&gitobjectAdapter{kind: blob.Kind, payload: blob.Payload},
		&gitobjectAdapter{kind: tree.Kind, payload: tree.Payload},
	}

	data, err := Encode(objects)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PACK")))

	decoded, trailer, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.NotNil(t, trailer)
	require.Len(t, decoded, 2)
	require.Equal(t, blob.Payload, decoded[0].Payload)
	require.Equal(t, object.TypeBlob, decoded[0].Kind)
	require.Equal(t, object.TypeTree, decoded[1].Kind)
}

// gitobjectAdapter wraps a bare kind and payload as an EncodableObject.
type gitobjectAdapter struct {
	kind    object.Type
	payload []byte
}

func (a *gitobjectAdapter) ObjectKind() object.Type { return a.kind }
func (a *gitobjectAdapter) ObjectPayload() []byte   { return a.payload }
