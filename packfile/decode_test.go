package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// packBuilder assembles a well-formed packfile byte-for-byte for tests,
// so the decoder can be exercised without needing a real `git` binary.
type packBuilder struct {
	entries   [][]byte
	baseSizes []int
}

func (b *packBuilder) addBase(kind object.Type, payload []byte) {
	var entry []byte
	entry = writeEntryHeader(entry, uint8(kind), uint64(len(payload)))

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(payload)
	_ = w.Close()
	entry = append(entry, compressed.Bytes()...)

	b.entries = append(b.entries, entry)
	b.baseSizes = append(b.baseSizes, len(payload))
}

// addOfsDelta appends an OfsDelta entry at the next slot, referencing the
// base entry at index baseIdx (already added).
func (b *packBuilder) addOfsDelta(baseIdx int, instructions []byte, resultSize int) {
	myOffset := b.entryOffset(len(b.entries))
	baseOffset := b.entryOffset(baseIdx)
	delta := myOffset - baseOffset

	var entry []byte
	entry = writeEntryHeader(entry, uint8(object.TypeOfsDelta), uint64(len(instructions)))
	entry = writeOffsetVarint(entry, uint64(delta))

	var deltaBody []byte
	baseSize := b.decodedBaseSize(baseIdx)
	deltaBody = writeSizeVarint(deltaBody, uint64(baseSize))
	deltaBody = writeSizeVarint(deltaBody, uint64(resultSize))
	deltaBody = append(deltaBody, instructions...)

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(deltaBody)
	_ = w.Close()
	entry = append(entry, compressed.Bytes()...)

	b.entries = append(b.entries, entry)
}

// entryOffset returns the absolute pack offset at which entry index idx
// starts (12-byte pack header precedes the first entry).
func (b *packBuilder) entryOffset(idx int) int64 {
	offset := int64(12)
	for i := 0; i < idx; i++ {
		offset += int64(len(b.entries[i]))
	}
	return offset
}

// decodedBaseSize returns the literal payload length recorded by addBase
// for entry idx, for declaring a delta's expected base size.
func (b *packBuilder) decodedBaseSize(idx int) int {
	return b.baseSizes[idx]
}

func (b *packBuilder) build(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("PACK")
	var versionAndCount [8]byte
	binary.BigEndian.PutUint32(versionAndCount[0:4], 2)
	binary.BigEndian.PutUint32(versionAndCount[4:8], uint32(len(b.entries)))
	buf.Write(versionAndCount[:])

	for _, e := range b.entries {
		buf.Write(e)
	}

	h := sha1.New() //nolint:gosec
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))

	return buf.Bytes()
}

func TestDecode_AllBaseObjects(t *testing.T) {
	t.Parallel()
	b := &packBuilder{}
	b.addBase(object.TypeBlob, []byte("hello, world\n"))
	b.addBase(object.TypeBlob, []byte("a second blob\n"))
	data := b.build(t)

	objects, trailer, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.NotNil(t, trailer)
	require.Len(t, objects, 2)
	require.Equal(t, "hello, world\n", string(objects[0].Payload))
	require.Equal(t, "a second blob\n", string(objects[1].Payload))
	require.Equal(t, object.TypeBlob, objects[0].Kind)
}

func TestDecode_OffsetDeltaChain(t *testing.T) {
	t.Parallel()
	b := &packBuilder{}
	b.addBase(object.TypeBlob, []byte("the quick brown fox"))

	// Copy "the quick " (offset 0, len 10), insert "red", copy " fox" (offset 15, len 4).
	instr := []byte{}
	instr = append(instr, copyInstructionFlag|0x01|0x10, 0, 10)
	instr = append(instr, 3)
	instr = append(instr, []byte("red")...)
	instr = append(instr, copyInstructionFlag|0x01|0x10, 15, 4)
	want := "the quick red fox"
	b.addOfsDelta(0, instr, len(want))

	data := b.build(t)

	objects, _, err := Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, want, string(objects[1].Payload))
	require.Equal(t, object.TypeBlob, objects[1].Kind)
	require.True(t, objects[1].ID.Is(objects[1].ID))
}

func TestDecode_RejectsBadHeader(t *testing.T) {
	t.Parallel()

	_, _, err := Decode(bytes.NewReader([]byte("NOPE0000000000")), nil)
	require.Error(t, err)
	var hdrErr *InvalidPackHeaderError
	require.ErrorAs(t, err, &hdrErr)
}

func TestDecode_RejectsTamperedTrailer(t *testing.T) {
	t.Parallel()
	b := &packBuilder{}
	b.addBase(object.TypeBlob, []byte("content"))
	data := b.build(t)
	data[len(data)-1] ^= 0xff

	_, _, err := Decode(bytes.NewReader(data), nil)
	require.Error(t, err)
	var trailerErr *InvalidPackTrailerError
	require.ErrorAs(t, err, &trailerErr)
}

// addRefDelta appends a RefDelta entry referencing baseID, a base that
// lives outside this pack and must come from the resolver.
func (b *packBuilder) addRefDelta(baseID hash.Hash, baseSize int, instructions []byte, resultSize int) {
	var entry []byte
	entry = writeEntryHeader(entry, uint8(object.TypeRefDelta), uint64(len(instructions)))
	entry = append(entry, baseID...)

	var deltaBody []byte
	deltaBody = writeSizeVarint(deltaBody, uint64(baseSize))
	deltaBody = writeSizeVarint(deltaBody, uint64(resultSize))
	deltaBody = append(deltaBody, instructions...)

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(deltaBody)
	_ = w.Close()
	entry = append(entry, compressed.Bytes()...)

	b.entries = append(b.entries, entry)
}

type stubResolver struct {
	objects map[string]*DecodedObject
}

func (s *stubResolver) ResolveBase(id hash.Hash) (*DecodedObject, error) {
	return s.objects[id.String()], nil
}

func TestDecode_RefDeltaResolvedFromStore(t *testing.T) {
	t.Parallel()

	baseObj, err := gitobject.New(object.TypeBlob, []byte("stored elsewhere"))
	require.NoError(t, err)
	resolver := &stubResolver{objects: map[string]*DecodedObject{
		baseObj.ID.String(): {ID: baseObj.ID, Kind: object.TypeBlob, Payload: baseObj.Payload},
	}}

	// Copy the whole base, then append " plus more".
	instr := []byte{}
	instr = append(instr, copyInstructionFlag|0x01|0x10, 0, byte(len(baseObj.Payload)))
	instr = append(instr, 10)
	instr = append(instr, []byte(" plus more")...)
	want := "stored elsewhere plus more"

	b := &packBuilder{}
	b.addRefDelta(baseObj.ID, len(baseObj.Payload), instr, len(want))
	data := b.build(t)

	objects, _, err := Decode(bytes.NewReader(data), resolver)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, want, string(objects[0].Payload))
}
