package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/grafana/monogit/protocol/object"
)

// EncodableObject is the minimal shape Encode needs from an object: its
// kind and its raw (non-delta) payload.
type EncodableObject interface {
	ObjectKind() object.Type
	ObjectPayload() []byte
}

// SerializeEntry writes a single Base pack entry (header varint followed
// by a zlib-compressed payload) for obj, in the pack-entry encoding §4.3
// defines. Loose objects use a different form (see gitobject.EncodeLoose).
func SerializeEntry(obj EncodableObject) ([]byte, error) {
	payload := obj.ObjectPayload()
	entry := writeEntryHeader(nil, uint8(obj.ObjectKind()), uint64(len(payload)))

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing entry payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zlib stream: %w", err)
	}

	return append(entry, compressed.Bytes()...), nil
}

// Encode serializes objects into a packfile: "PACK" || BE32(2) || BE32(N)
// || entries || SHA-1 trailer. This is the naive encoder named in §4.7: it
// always emits every object as a Base entry. It produces no OfsDelta or
// RefDelta entries: SerializeEntry writes neither a base offset nor a base
// id.
func Encode(objects []EncodableObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("PACK")

	var versionAndCount [8]byte
	binary.BigEndian.PutUint32(versionAndCount[0:4], 2)
	binary.BigEndian.PutUint32(versionAndCount[4:8], uint32(len(objects)))
	buf.Write(versionAndCount[:])

	for i, obj := range objects {
		entry, err := SerializeEntry(obj)
		if err != nil {
			return nil, fmt.Errorf("serializing entry %d: %w", i, err)
		}
		buf.Write(entry)
	}

	h := sha1.New() //nolint:gosec
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))

	return buf.Bytes(), nil
}
