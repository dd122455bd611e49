package packfile

import (
	"bufio"
	"crypto/sha1" //nolint:gosec
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// DecodedObject is one object produced by decoding a pack: its identity,
// kind, fully-reconstructed (delta-resolved) payload, and the absolute
// offset its entry started at in the source pack (used by index building).
type DecodedObject struct {
	ID      hash.Hash
	Kind    object.Type
	Payload []byte
	Offset  int64
}

// ObjectKind and ObjectPayload satisfy EncodableObject, so a decoded
// object can be fed straight back into Encode.
func (d *DecodedObject) ObjectKind() object.Type { return d.Kind }
func (d *DecodedObject) ObjectPayload() []byte   { return d.Payload }

// BaseResolver resolves a RefDelta's base object when it is not found
// among the objects already decoded from the same pack. The pack decoder
// calls this to reach the object store for bases that live outside the
// incoming pack (a "thin pack").
type BaseResolver interface {
	ResolveBase(id hash.Hash) (*DecodedObject, error)
}

type packCache struct {
	byOffset map[int64]*DecodedObject
	byHash   map[string]*DecodedObject
}

func newPackCache() *packCache {
	return &packCache{
		byOffset: make(map[int64]*DecodedObject),
		byHash:   make(map[string]*DecodedObject),
	}
}

// insert records obj under both offset and hash. If the pack lists the
// same hash more than once, the later entry silently overwrites the
// earlier one in the hash index, matching the decoder's tie-break rule.
func (c *packCache) insert(offset int64, obj *DecodedObject) {
	c.byOffset[offset] = obj
	c.byHash[obj.ID.String()] = obj
}

type decoder struct {
	src      io.ReadSeeker
	cache    *packCache
	resolver BaseResolver
}

// Decode stream-parses a packfile from a seekable source, producing every
// object it contains with offset- and reference-deltas fully resolved
// against earlier objects in the same pack (or, for RefDelta, against
// resolver when the base lies outside the pack). It returns the objects in
// pack order and the trailer hash, after verifying the trailer equals the
// SHA-1 of everything that precedes it.
func Decode(src io.ReadSeeker, resolver BaseResolver) ([]*DecodedObject, hash.Hash, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("seeking to pack start: %w", err)
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, nil, fmt.Errorf("reading pack header: %w", err)
	}
	var magic [4]byte
	copy(magic[:], header[:4])
	if string(magic[:]) != "PACK" {
		return nil, nil, &InvalidPackHeaderError{Got: magic}
	}
	version := binary.BigEndian.Uint32(header[4:8])
	if version != 2 {
		return nil, nil, &InvalidPackVersionError{Got: version}
	}
	count := binary.BigEndian.Uint32(header[8:12])

	d := &decoder{src: src, cache: newPackCache(), resolver: resolver}
	objects := make([]*DecodedObject, 0, count)

	offset := int64(len(header))
	for i := uint32(0); i < count; i++ {
		obj, end, err := d.decodeEntryAt(offset)
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, obj)
		offset = end
	}

	trailer := make([]byte, hash.Size)
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("seeking to pack trailer: %w", err)
	}
	if _, err := io.ReadFull(src, trailer); err != nil {
		return nil, nil, fmt.Errorf("reading pack trailer: %w", err)
	}
	trailerHash, err := hash.FromRaw(trailer)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing pack trailer: %w", err)
	}

	computed, err := sha1OfRange(src, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing pack contents: %w", err)
	}
	if !computed.Is(trailerHash) {
		return nil, nil, &InvalidPackTrailerError{Declared: trailerHash.String(), Computed: computed.String()}
	}

	return objects, trailerHash, nil
}

// sha1OfRange hashes the first n bytes of src, restoring src's original
// seek semantics are not a concern here since decoding is already complete.
func sha1OfRange(src io.ReadSeeker, n int64) (hash.Hash, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	h := sha1.New() //nolint:gosec
	if _, err := io.CopyN(h, src, n); err != nil {
		return nil, err
	}
	return hash.FromRaw(h.Sum(nil))
}

// newPositionedReader anchors a countingReader + bufio.Reader pair at src's
// current position, so absOffset can later recover the precise absolute
// offset the bufio.Reader has logically consumed up to.
func newPositionedReader(src io.ReadSeeker) (*bufio.Reader, *countingReader, error) {
	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, nil, fmt.Errorf("getting current offset: %w", err)
	}
	cr := &countingReader{r: src, n: start}
	return bufio.NewReader(cr), cr, nil
}

// absOffset returns the absolute offset into the pack that br has
// logically consumed up to: the total bytes physically pulled from the
// source, minus whatever br is still holding unread in its own buffer.
func absOffset(cr *countingReader, br *bufio.Reader) int64 {
	return cr.n - int64(br.Buffered())
}

// decodeEntryAt decodes the single pack entry starting at offset, applying
// any delta against its base, and returns the resulting object along with
// the absolute offset immediately following the entry (where the next
// entry, if any, begins).
func (d *decoder) decodeEntryAt(offset int64) (*DecodedObject, int64, error) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seeking to entry at %d: %w", offset, err)
	}
	br, cr, err := newPositionedReader(d.src)
	if err != nil {
		return nil, 0, err
	}

	kindByte, size, err := readEntryHeader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("reading entry header at %d: %w", offset, err)
	}
	kind := object.Type(kindByte)

	switch kind {
	case object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag:
		decoded, err := readZlibExact(br)
		if err != nil {
			return nil, 0, fmt.Errorf("decompressing entry at %d: %w", offset, err)
		}
		if int64(len(decoded)) != int64(size) {
			return nil, 0, &IncorrectObjectSizeError{Offset: offset, Declared: int64(size), Actual: int64(len(decoded))}
		}
		end := absOffset(cr, br)

		m, err := gitobject.New(kind, decoded)
		if err != nil {
			return nil, 0, fmt.Errorf("hashing entry at %d: %w", offset, err)
		}
		obj := &DecodedObject{ID: m.ID, Kind: kind, Payload: decoded, Offset: offset}
		d.cache.insert(offset, obj)
		return obj, end, nil

	case object.TypeOfsDelta:
		delta, err := readOffsetVarint(br)
		if err != nil {
			return nil, 0, fmt.Errorf("reading offset-delta varint at %d: %w", offset, err)
		}
		baseOffset := offset - int64(delta)
		if baseOffset < 0 {
			return nil, 0, &InvalidBaseOffsetError{Offset: offset, Delta: int64(delta)}
		}
		savedPos := absOffset(cr, br)

		base, err := d.resolveOffsetBase(baseOffset)
		if err != nil {
			return nil, 0, fmt.Errorf("resolving offset-delta base for entry at %d: %w", offset, err)
		}

		result, end, err := d.applyDeltaAt(savedPos, base)
		if err != nil {
			return nil, 0, fmt.Errorf("applying offset-delta at %d: %w", offset, err)
		}

		m, err := gitobject.New(base.Kind, result)
		if err != nil {
			return nil, 0, err
		}
		obj := &DecodedObject{ID: m.ID, Kind: base.Kind, Payload: result, Offset: offset}
		d.cache.insert(offset, obj)
		return obj, end, nil

	case object.TypeRefDelta:
		idBytes := make([]byte, hash.Size)
		if _, err := io.ReadFull(br, idBytes); err != nil {
			return nil, 0, fmt.Errorf("reading ref-delta base id at %d: %w", offset, err)
		}
		baseID, err := hash.FromRaw(idBytes)
		if err != nil {
			return nil, 0, err
		}
		savedPos := absOffset(cr, br)

		base, err := d.resolveHashBase(baseID)
		if err != nil {
			return nil, 0, fmt.Errorf("resolving ref-delta base for entry at %d: %w", offset, err)
		}

		result, end, err := d.applyDeltaAt(savedPos, base)
		if err != nil {
			return nil, 0, fmt.Errorf("applying ref-delta at %d: %w", offset, err)
		}

		m, err := gitobject.New(base.Kind, result)
		if err != nil {
			return nil, 0, err
		}
		obj := &DecodedObject{ID: m.ID, Kind: base.Kind, Payload: result, Offset: offset}
		d.cache.insert(offset, obj)
		return obj, end, nil

	default:
		return nil, 0, &InvalidPackEntryKindError{Offset: offset, Kind: kindByte}
	}
}

// applyDeltaAt reads the zlib-compressed delta instruction stream starting
// at pos and applies it against base. pos is captured independently of any
// in-flight bufio.Reader because resolving the base (possibly a recursive
// decode elsewhere in the pack) may have moved the source's cursor.
func (d *decoder) applyDeltaAt(pos int64, base *DecodedObject) (result []byte, end int64, err error) {
	if _, err := d.src.Seek(pos, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seeking to delta instructions: %w", err)
	}
	br, cr, err := newPositionedReader(d.src)
	if err != nil {
		return nil, 0, err
	}
	deltaPayload, err := readZlibExact(br)
	if err != nil {
		return nil, 0, fmt.Errorf("decompressing delta instructions: %w", err)
	}
	result, err = ApplyDelta(base.Payload, deltaPayload)
	if err != nil {
		return nil, 0, err
	}
	return result, absOffset(cr, br), nil
}

// resolveOffsetBase returns the object at baseOffset, decoding it now if
// it has not already been seen. OfsDelta back-references always point
// strictly earlier in the pack, so in a well-formed pack this is always a
// cache hit; the recursive fallback exists only so a malformed or
// reordered pack does not crash.
func (d *decoder) resolveOffsetBase(baseOffset int64) (*DecodedObject, error) {
	if obj, ok := d.cache.byOffset[baseOffset]; ok {
		return obj, nil
	}
	obj, _, err := d.decodeEntryAt(baseOffset)
	return obj, err
}

// resolveHashBase returns the object identified by id, preferring one
// already decoded from the same pack and otherwise asking resolver (the
// object store) for it.
func (d *decoder) resolveHashBase(id hash.Hash) (*DecodedObject, error) {
	if obj, ok := d.cache.byHash[id.String()]; ok {
		return obj, nil
	}
	if d.resolver == nil {
		return nil, &UnknownBaseObjectError{ID: id.String()}
	}
	obj, err := d.resolver.ResolveBase(id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &UnknownBaseObjectError{ID: id.String()}
	}
	return obj, nil
}
