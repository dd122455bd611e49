// Package gitobject implements the Git object model: the four object kinds,
// their content-addressed identity, and the loose-object on-disk codec.
package gitobject

import (
	"crypto"
	"fmt"

	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// InvalidObjectKindError is returned when a loose-object header or pack
// entry names an object kind outside the closed set {commit, tree, blob,
// tag}.
type InvalidObjectKindError struct {
	Word string
}

func (e *InvalidObjectKindError) Error() string {
	return fmt.Sprintf("invalid object kind: %q", e.Word)
}

func NewInvalidObjectKindError(word string) *InvalidObjectKindError {
	return &InvalidObjectKindError{Word: word}
}

// kindFromBytes maps a loose-object header word to its Type. Only the four
// base kinds are valid here; OfsDelta/RefDelta only ever appear inside a
// packfile entry header, never in a loose-object header or tree entry.
func kindFromBytes(word []byte) (object.Type, error) {
	switch string(word) {
	case "commit":
		return object.TypeCommit, nil
	case "tree":
		return object.TypeTree, nil
	case "blob":
		return object.TypeBlob, nil
	case "tag":
		return object.TypeTag, nil
	default:
		return object.TypeInvalid, NewInvalidObjectKindError(string(word))
	}
}

// Metadata is the (kind, size, payload, id) tuple shared by every Git
// object, independent of whether it arrived as a loose object or a packfile
// entry. Payload bytes are uninterpreted here; Commit/Tree/Tag give a
// parsed view over them.
type Metadata struct {
	Kind    object.Type
	Size    int64
	Payload []byte
	ID      hash.Hash
}

// New computes a Metadata's id eagerly from its kind and payload, matching
// the invariant id = SHA-1(kind SP size NUL payload).
func New(kind object.Type, payload []byte) (*Metadata, error) {
	id, err := hash.Object(crypto.SHA1, kind, payload)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		Kind:    kind,
		Size:    int64(len(payload)),
		Payload: payload,
		ID:      id,
	}, nil
}

// ObjectKind and ObjectPayload satisfy packfile.EncodableObject, so a
// Metadata read back out of a store can be fed straight into a pack
// encode without an adapter type.
func (m *Metadata) ObjectKind() object.Type { return m.Kind }
func (m *Metadata) ObjectPayload() []byte   { return m.Payload }

// Verify recomputes the object's id from its kind and payload and reports
// whether it matches ID. Callers that read an object from untrusted storage
// should call this before trusting its content.
func (m *Metadata) Verify() error {
	want, err := hash.Object(crypto.SHA1, m.Kind, m.Payload)
	if err != nil {
		return err
	}
	if !want.Is(m.ID) {
		return fmt.Errorf("object id mismatch: computed %s, stored %s", want, m.ID)
	}
	return nil
}
