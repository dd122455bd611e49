package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/grafana/monogit/protocol/hash"
)

var idxMagic = [4]byte{0xff, 0x74, 0x4f, 0x63} // "\xFFtOc"

const idxVersion = 2

// largeOffsetFlag marks a Layer 4 offset entry as an index into the Layer 5
// overflow table, for objects whose pack offset doesn't fit in 31 bits.
const largeOffsetFlag = 1 << 31

// IdxEntry is one object's record in an idx v2 file.
type IdxEntry struct {
	ID     hash.Hash
	CRC32  uint32
	Offset int64
}

// Idx is a decoded/buildable idx v2 index: a fan-out table over the first
// byte of each id, the sorted entries themselves, and the two trailer
// hashes that tie the index to its packfile and to itself.
type Idx struct {
	Version     uint32
	FanOut      [256]uint32
	Entries     []IdxEntry
	PackTrailer hash.Hash
	IdxTrailer  hash.Hash
}

// BuildIndex constructs an idx v2 index for a packfile from its decoded
// objects. packData is the full encoded pack (needed to compute each
// entry's CRC32 over its exact on-disk byte range); objects must be in the
// same order Decode produced them (ascending by Offset), and trailer is the
// pack's own trailer hash.
//
// CRC32 is computed over each entry's packed bytes (header + zlib stream),
// using CRC-32/ISO-HDLC with the standard initial value of 0xFFFFFFFF --
// not over the decoded payload, which reference tooling disagrees with.
func BuildIndex(packData []byte, objects []*DecodedObject, trailer hash.Hash) (*Idx, error) {
	entries := make([]IdxEntry, len(objects))
	for i, obj := range objects {
		end := int64(len(packData)) - int64(hash.Size)
		if i+1 < len(objects) {
			end = objects[i+1].Offset
		}
		if end < obj.Offset || end > int64(len(packData)) {
			return nil, fmt.Errorf("computing byte range for entry at offset %d: invalid range [%d,%d)", obj.Offset, obj.Offset, end)
		}
		entries[i] = IdxEntry{
			ID:     obj.ID,
			CRC32:  crc32.ChecksumIEEE(packData[obj.Offset:end]),
			Offset: obj.Offset,
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].ID, entries[j].ID) < 0
	})

	idx := &Idx{Version: idxVersion, Entries: entries, PackTrailer: trailer}
	var fanOut [256]uint32
	for _, e := range entries {
		fanOut[e.ID[0]]++
	}
	var cumulative uint32
	for i := range fanOut {
		cumulative += fanOut[i]
		fanOut[i] = cumulative
	}
	idx.FanOut = fanOut

	return idx, nil
}

// Encode serializes idx into the idx v2 byte format.
func (idx *Idx) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(idxMagic[:])

	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], idx.Version)
	buf.Write(versionBytes[:])

	for _, count := range idx.FanOut {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], count)
		buf.Write(b[:])
	}

	for _, e := range idx.Entries {
		buf.Write(e.ID)
	}

	for _, e := range idx.Entries {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e.CRC32)
		buf.Write(b[:])
	}

	var overflow []int64
	for _, e := range idx.Entries {
		var b [4]byte
		if e.Offset >= largeOffsetFlag {
			binary.BigEndian.PutUint32(b[:], largeOffsetFlag|uint32(len(overflow)))
			overflow = append(overflow, e.Offset)
		} else {
			binary.BigEndian.PutUint32(b[:], uint32(e.Offset))
		}
		buf.Write(b[:])
	}

	for _, off := range overflow {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(off))
		buf.Write(b[:])
	}

	buf.Write(idx.PackTrailer)

	h := sha1.New() //nolint:gosec
	h.Write(buf.Bytes())
	idxTrailer := h.Sum(nil)
	buf.Write(idxTrailer)

	return buf.Bytes(), nil
}

// InvalidIdxHeaderError is returned when an idx file does not begin with
// the "\xFFtOc" magic.
type InvalidIdxHeaderError struct {
	Got [4]byte
}

func (e *InvalidIdxHeaderError) Error() string {
	return fmt.Sprintf("invalid idx header: got % x", e.Got)
}

func (e *InvalidIdxHeaderError) Is(target error) bool {
	_, ok := target.(*InvalidIdxHeaderError)
	return ok
}

// InvalidIdxVersionError is returned when an idx file declares a version
// other than 2.
type InvalidIdxVersionError struct {
	Got uint32
}

func (e *InvalidIdxVersionError) Error() string {
	return fmt.Sprintf("invalid idx version: got %d, want 2", e.Got)
}

func (e *InvalidIdxVersionError) Is(target error) bool {
	_, ok := target.(*InvalidIdxVersionError)
	return ok
}

// InvalidIdxTrailerError is returned when an idx file's own trailer hash
// does not match the SHA-1 of its preceding bytes.
type InvalidIdxTrailerError struct {
	Declared string
	Computed string
}

func (e *InvalidIdxTrailerError) Error() string {
	return fmt.Sprintf("invalid idx trailer: declared %s, computed %s", e.Declared, e.Computed)
}

func (e *InvalidIdxTrailerError) Is(target error) bool {
	_, ok := target.(*InvalidIdxTrailerError)
	return ok
}

// DecodeIndex parses an idx v2 file, validating its header, version, and
// trailer hash.
func DecodeIndex(data []byte) (*Idx, error) {
	const headerSize = 4 + 4
	const fanOutSize = 256 * 4
	if len(data) < headerSize+fanOutSize+2*hash.Size {
		return nil, fmt.Errorf("idx file too short: %d bytes", len(data))
	}

	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != idxMagic {
		return nil, &InvalidIdxHeaderError{Got: magic}
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 {
		return nil, &InvalidIdxVersionError{Got: version}
	}

	idx := &Idx{Version: version}
	offset := headerSize
	for i := 0; i < 256; i++ {
		idx.FanOut[i] = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
	}
	n := int(idx.FanOut[255])

	ids := make([]hash.Hash, n)
	for i := 0; i < n; i++ {
		id, err := hash.FromRaw(data[offset : offset+hash.Size])
		if err != nil {
			return nil, fmt.Errorf("parsing idx id %d: %w", i, err)
		}
		ids[i] = id
		offset += hash.Size
	}

	crc32s := make([]uint32, n)
	for i := 0; i < n; i++ {
		crc32s[i] = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
	}

	rawOffsets := make([]uint32, n)
	overflowCount := 0
	for i := 0; i < n; i++ {
		rawOffsets[i] = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		if rawOffsets[i]&largeOffsetFlag != 0 {
			overflowCount++
		}
	}

	overflow := make([]int64, overflowCount)
	for i := 0; i < overflowCount; i++ {
		overflow[i] = int64(binary.BigEndian.Uint64(data[offset : offset+8]))
		offset += 8
	}

	idx.Entries = make([]IdxEntry, n)
	for i := 0; i < n; i++ {
		off := int64(rawOffsets[i])
		if rawOffsets[i]&largeOffsetFlag != 0 {
			off = overflow[rawOffsets[i]&^largeOffsetFlag]
		}
		idx.Entries[i] = IdxEntry{ID: ids[i], CRC32: crc32s[i], Offset: off}
	}

	packTrailer, err := hash.FromRaw(data[offset : offset+hash.Size])
	if err != nil {
		return nil, fmt.Errorf("parsing pack trailer: %w", err)
	}
	idx.PackTrailer = packTrailer
	offset += hash.Size

	idxTrailer, err := hash.FromRaw(data[offset : offset+hash.Size])
	if err != nil {
		return nil, fmt.Errorf("parsing idx trailer: %w", err)
	}
	idx.IdxTrailer = idxTrailer
	offset += hash.Size

	h := sha1.New() //nolint:gosec
	h.Write(data[:offset-hash.Size])
	computed, err := hash.FromRaw(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	if !computed.Is(idxTrailer) {
		return nil, &InvalidIdxTrailerError{Declared: idxTrailer.String(), Computed: computed.String()}
	}

	return idx, nil
}

// Lookup returns the offset of id in the pack, and whether it was found.
// It uses the fan-out table to narrow the search to entries sharing id's
// first byte before a binary search over the (sorted) remainder.
func (idx *Idx) Lookup(id hash.Hash) (int64, bool) {
	if len(id) == 0 {
		return 0, false
	}
	lo := 0
	if id[0] > 0 {
		lo = int(idx.FanOut[id[0]-1])
	}
	hi := int(idx.FanOut[id[0]])

	i := sort.Search(hi-lo, func(i int) bool {
		return bytes.Compare(idx.Entries[lo+i].ID, id) >= 0
	})
	pos := lo + i
	if pos < hi && idx.Entries[pos].ID.Is(id) {
		return idx.Entries[pos].Offset, true
	}
	return 0, false
}
