package gitobject

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/grafana/monogit/protocol/hash"
)

// EntryMode is a tree entry's octal file mode, which also determines its
// subtype (regular blob, executable blob, tree, symlink, or submodule
// commit).
type EntryMode uint32

const (
	ModeFile       EntryMode = 0o100644
	ModeFileAlt1   EntryMode = 0o100664
	ModeFileAlt2   EntryMode = 0o100640
	ModeExecutable EntryMode = 0o100755
	ModeTree       EntryMode = 0o40000
	ModeSymlink    EntryMode = 0o120000
	ModeSubmodule  EntryMode = 0o160000
)

// IsTree reports whether the mode names a subtree entry.
func (m EntryMode) IsTree() bool {
	return m == ModeTree
}

// IsBlob reports whether the mode names any of the blob variants (regular,
// alternate regular, executable, or symlink — a symlink's payload is a
// blob containing the link target).
func (m EntryMode) IsBlob() bool {
	switch m {
	case ModeFile, ModeFileAlt1, ModeFileAlt2, ModeExecutable, ModeSymlink:
		return true
	default:
		return false
	}
}

// InvalidTreeEntryError is returned when a tree payload cannot be parsed:
// a malformed mode, a name containing a NUL byte, or a truncated id.
type InvalidTreeEntryError struct {
	Reason string
}

func (e *InvalidTreeEntryError) Error() string {
	return fmt.Sprintf("invalid tree entry: %s", e.Reason)
}

func NewInvalidTreeEntryError(reason string) *InvalidTreeEntryError {
	return &InvalidTreeEntryError{Reason: reason}
}

// TreeEntry is one line of a tree object's payload: `<mode> SP <name> NUL
// <20-byte-id>`.
type TreeEntry struct {
	Mode EntryMode
	Name string
	ID   hash.Hash
}

// Tree is the parsed view of a tree object's payload: a flat list of
// entries in the order they were encountered.
type Tree struct {
	Entries []TreeEntry
}

// ParseTree parses a tree object's payload. Entries are accepted in
// whatever order they appear on the wire; only Encode enforces the sort
// invariant.
func ParseTree(payload []byte) (*Tree, error) {
	t := &Tree{}

	rest := payload
	for len(rest) > 0 {
		spIdx := bytes.IndexByte(rest, ' ')
		if spIdx == -1 {
			return nil, NewInvalidTreeEntryError("missing space after mode")
		}

		modeStr := string(rest[:spIdx])
		modeVal, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, NewInvalidTreeEntryError(fmt.Sprintf("malformed mode %q", modeStr))
		}

		rest = rest[spIdx+1:]
		nulIdx := bytes.IndexByte(rest, 0)
		if nulIdx == -1 {
			return nil, NewInvalidTreeEntryError("missing NUL after name")
		}

		name := string(rest[:nulIdx])
		if name == "" {
			return nil, NewInvalidTreeEntryError("empty entry name")
		}

		rest = rest[nulIdx+1:]
		if len(rest) < hash.Size {
			return nil, NewInvalidTreeEntryError("truncated object id")
		}

		id, err := hash.FromRaw(rest[:hash.Size])
		if err != nil {
			return nil, NewInvalidTreeEntryError(err.Error())
		}
		rest = rest[hash.Size:]

		t.Entries = append(t.Entries, TreeEntry{
			Mode: EntryMode(modeVal),
			Name: name,
			ID:   id,
		})
	}

	return t, nil
}

// Encode serializes a Tree back into its payload form, sorting entries
// bytewise by name as §3 mandates for writers.
func (t *Tree) Encode() []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%o %s", e.Mode, e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID)
	}
	return buf.Bytes()
}
