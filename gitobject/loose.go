package gitobject

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/grafana/monogit/protocol/hash"
)

// EncodeLoose serializes a Metadata into the loose-object wire form:
// zlib(kind-name SP ascii-decimal-size NUL payload).
func EncodeLoose(m *Metadata) ([]byte, error) {
	var header bytes.Buffer
	header.Write(m.Kind.Bytes())
	header.WriteByte(' ')
	header.WriteString(strconv.FormatInt(m.Size, 10))
	header.WriteByte(0)

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(header.Bytes()); err != nil {
		return nil, err
	}
	if _, err := w.Write(m.Payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// DecodeLoose parses the loose-object wire form produced by EncodeLoose,
// recomputes the object id, and verifies it.
func DecodeLoose(raw []byte) (*Metadata, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("inflating loose object: %w", err)
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflating loose object: %w", err)
	}

	spIdx := bytes.IndexByte(decoded, ' ')
	if spIdx == -1 {
		return nil, NewInvalidObjectKindError(string(decoded))
	}
	kind, err := kindFromBytes(decoded[:spIdx])
	if err != nil {
		return nil, err
	}

	nulIdx := bytes.IndexByte(decoded[spIdx+1:], 0)
	if nulIdx == -1 {
		return nil, fmt.Errorf("loose object header missing NUL terminator")
	}
	nulIdx += spIdx + 1

	sizeStr := string(decoded[spIdx+1 : nulIdx])
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("loose object header has invalid size %q: %w", sizeStr, err)
	}

	payload := decoded[nulIdx+1:]
	if int64(len(payload)) != size {
		return nil, fmt.Errorf("loose object declared size %d, payload is %d bytes", size, len(payload))
	}

	m, err := New(kind, payload)
	if err != nil {
		return nil, err
	}
	return m, m.Verify()
}

// LoosePath returns the on-disk path of a loose object under root, using
// the hash's folder/filename partitioning (first two hex chars as
// directory, remaining 38 as filename).
func LoosePath(root string, id hash.Hash) string {
	return filepath.Join(root, "objects", id.Folder(), id.Filename())
}

// WriteLoose writes m to its loose-object path under root, creating the
// folder bucket as needed. It is a no-op if the object already exists,
// since loose objects are immutable and content-addressed.
func WriteLoose(root string, m *Metadata) error {
	path := LoosePath(root, m.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating loose object directory: %w", err)
	}

	encoded, err := EncodeLoose(m)
	if err != nil {
		return err
	}

	return os.WriteFile(path, encoded, 0o644)
}

// ReadLoose reads and decodes the loose object named id under root.
func ReadLoose(root string, id hash.Hash) (*Metadata, error) {
	raw, err := os.ReadFile(LoosePath(root, id))
	if err != nil {
		return nil, err
	}
	return DecodeLoose(raw)
}
