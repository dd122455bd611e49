package packfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Delta instruction encoding. The high bit of the instruction byte selects
// between a copy-from-base instruction (bit set) and a literal insert
// instruction (bit clear).
const (
	copyInstructionFlag = 1 << 7
	copyOffsetBytes     = 4
	copySizeBytes       = 3
	copyZeroSize        = 0x10000
)

// DeltaBaseSizeMismatchError is returned when a delta's encoded base size
// does not match the actual size of the base object it is applied against.
type DeltaBaseSizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *DeltaBaseSizeMismatchError) Error() string {
	return fmt.Sprintf("delta base size mismatch: delta expects %d bytes, base has %d", e.Expected, e.Actual)
}

func (e *DeltaBaseSizeMismatchError) Is(target error) bool {
	_, ok := target.(*DeltaBaseSizeMismatchError)
	return ok
}

// DeltaResultSizeMismatchError is returned when applying a delta produces a
// result whose length does not match the size the delta header declared.
type DeltaResultSizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *DeltaResultSizeMismatchError) Error() string {
	return fmt.Sprintf("delta result size mismatch: delta declares %d bytes, produced %d", e.Expected, e.Actual)
}

func (e *DeltaResultSizeMismatchError) Is(target error) bool {
	_, ok := target.(*DeltaResultSizeMismatchError)
	return ok
}

// InvalidDeltaInstructionError is returned when a delta instruction stream
// is malformed, e.g. a literal-insert instruction with a zero length.
type InvalidDeltaInstructionError struct {
	Reason string
}

func (e *InvalidDeltaInstructionError) Error() string {
	return fmt.Sprintf("invalid delta instruction: %s", e.Reason)
}

func (e *InvalidDeltaInstructionError) Is(target error) bool {
	_, ok := target.(*InvalidDeltaInstructionError)
	return ok
}

// ApplyDelta reconstructs an object's content by applying a delta
// instruction stream against base. The delta begins with two size-varints:
// the size base is expected to have, and the size the result will have.
// What follows is a sequence of instructions, each either copying a run of
// bytes out of base or inserting literal bytes carried in the delta itself.
func ApplyDelta(base []byte, delta []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(delta))

	baseSize, _, err := readSizeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading delta base size: %w", err)
	}
	if int64(baseSize) != int64(len(base)) {
		return nil, &DeltaBaseSizeMismatchError{Expected: int64(baseSize), Actual: int64(len(base))}
	}

	resultSize, _, err := readSizeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading delta result size: %w", err)
	}

	result := make([]byte, 0, resultSize)
	for {
		instr, err := r.ReadByte()
		if err != nil {
			break
		}

		if instr&copyInstructionFlag == 0 {
			// Literal insert: the instruction byte itself is the length.
			length := instr
			if length == 0 {
				return nil, &InvalidDeltaInstructionError{Reason: "data instruction with zero length"}
			}
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("reading literal insert: %w", err)
			}
			result = append(result, buf...)
			continue
		}

		presentBytes := instr &^ copyInstructionFlag
		offsetBits := presentBytes & 0x0f
		sizeBits := (presentBytes >> 4) & 0x07

		offset, err := readPartialInt(r, copyOffsetBytes, &offsetBits)
		if err != nil {
			return nil, fmt.Errorf("reading copy offset: %w", err)
		}
		size, err := readPartialInt(r, copySizeBytes, &sizeBits)
		if err != nil {
			return nil, fmt.Errorf("reading copy size: %w", err)
		}
		if size == 0 {
			size = copyZeroSize
		}

		if offset+size > uint64(len(base)) {
			return nil, &InvalidDeltaInstructionError{Reason: fmt.Sprintf("copy [%d,%d) exceeds base length %d", offset, offset+size, len(base))}
		}
		result = append(result, base[offset:offset+size]...)
	}

	if int64(len(result)) != int64(resultSize) {
		return nil, &DeltaResultSizeMismatchError{Expected: int64(resultSize), Actual: int64(len(result))}
	}

	return result, nil
}
