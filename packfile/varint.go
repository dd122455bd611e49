// Package packfile implements the Git packfile format: entry header
// varints, delta instruction application, pack stream decode/encode, and
// the idx v2 index.
package packfile

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	continuationBit = 1 << 7
	sizeEncodingBits = 7
)

// readSizeVarint reads a "size-encoding" varint: each byte's low 7 bits
// contribute, high bit set means another byte follows; bytes are
// concatenated least-significant-group first.
func readSizeVarint(r io.ByteReader) (value uint64, shift uint, err error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		value |= uint64(b&^continuationBit) << shift
		if b&continuationBit == 0 {
			return value, shift, nil
		}
		shift += sizeEncodingBits
	}
}

// writeSizeVarint appends number's size-varint encoding to buf.
func writeSizeVarint(buf []byte, number uint64) []byte {
	for {
		if number>>sizeEncodingBits > 0 {
			buf = append(buf, byte(number&0x7f)|continuationBit)
		} else {
			buf = append(buf, byte(number&0x7f))
			return buf
		}
		number >>= sizeEncodingBits
	}
}

// readEntryHeader reads a packfile entry header: a size-varint whose first
// byte packs (kind:3 bits in bits 4-6, low 4 size bits in bits 0-3) and
// whose continuation bytes each contribute 7 more size bits.
func readEntryHeader(r io.ByteReader) (kind uint8, size uint64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	kind = (b >> 4) & 0x7
	size = uint64(b & 0x0f)
	shift := uint(4)

	for b&continuationBit != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(b&^continuationBit) << shift
		shift += sizeEncodingBits
	}

	return kind, size, nil
}

// writeEntryHeader appends a packfile entry header for (kind, size) to buf.
func writeEntryHeader(buf []byte, kind uint8, size uint64) []byte {
	first := byte(kind&0x7)<<4 | byte(size&0x0f)
	size >>= 4
	if size > 0 {
		first |= continuationBit
	}
	buf = append(buf, first)

	for size > 0 {
		b := byte(size & 0x7f)
		size >>= sizeEncodingBits
		if size > 0 {
			b |= continuationBit
		}
		buf = append(buf, b)
	}

	return buf
}

// readOffsetVarint reads an "offset-encoding" varint used by OfsDelta
// entries: bytes are ordered most-to-least significant, and every
// non-final byte's value is offset by 1 to avoid redundant encodings of
// the same offset.
func readOffsetVarint(r io.ByteReader) (uint64, error) {
	var value uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value = (value << sizeEncodingBits) | uint64(b&^continuationBit)
		if b&continuationBit == 0 {
			return value, nil
		}
		value++
	}
}

// writeOffsetVarint appends number's offset-encoding to buf.
func writeOffsetVarint(buf []byte, number uint64) []byte {
	var bytes []byte
	bytes = append(bytes, byte(number&0x7f))
	number >>= sizeEncodingBits

	for number > 0 {
		number--
		bytes = append(bytes, byte(number&0x7f)|continuationBit)
		number >>= sizeEncodingBits
	}

	for i := len(bytes) - 1; i >= 0; i-- {
		buf = append(buf, bytes[i])
	}
	return buf
}

// readPartialInt reads up to n bytes, each gated by a bit of presentBytes
// (bit 0 gates the first byte read), assembling the result little-endian.
// It is used by the delta copy instruction to read a variable-width
// offset/size field.
func readPartialInt(r io.ByteReader, n uint8, presentBytes *uint8) (uint64, error) {
	var value uint64
	for i := uint8(0); i < n; i++ {
		if *presentBytes&1 != 0 {
			b, err := r.ReadByte()
			if err != nil {
				return 0, err
			}
			value |= uint64(b) << (i * 8)
		}
		*presentBytes >>= 1
	}
	return value, nil
}

// countingReader tracks the number of bytes Read has returned from the
// underlying reader, giving the absolute offset into that reader's stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// readZlibExact decompresses exactly one zlib stream starting at br's
// current position and returns the decompressed bytes. br MUST be backed,
// directly or indirectly, by a countingReader so the caller can recover
// the exact post-stream offset afterward.
//
// Passing a *bufio.Reader to zlib.NewReader (rather than a bare io.Reader)
// matters: flate only reaches for its own internal buffering when the
// supplied reader does not already implement io.ByteReader. Since
// *bufio.Reader does, flate pulls single bytes through it directly,
// leaving br's buffer holding exactly the bytes that follow the zlib
// stream — no extra source bytes are silently swallowed into a second,
// inaccessible buffer. The caller then derives the absolute offset as
// countingReader.n - br.Buffered().
func readZlibExact(br *bufio.Reader) ([]byte, error) {
	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("starting zlib stream: %w", err)
	}
	defer zr.Close()

	decoded, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflating zlib stream: %w", err)
	}
	return decoded, nil
}
