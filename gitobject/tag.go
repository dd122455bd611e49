package gitobject

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// Tag is the parsed view of an annotated tag object's payload:
//
//	object <hex>
//	type <kind>
//	tag <name>
//	tagger <sign>
//	<blank line>
//	<message>
type Tag struct {
	Object hash.Hash
	Type   object.Type
	Name   string
	Tagger object.Identity
	Message string
}

// ParseTag parses an annotated tag object's payload into a structured Tag.
func ParseTag(payload []byte) (*Tag, error) {
	t := &Tag{}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}

		switch {
		case strings.HasPrefix(line, "object "):
			id, err := hash.FromHex(strings.TrimPrefix(line, "object "))
			if err != nil {
				return nil, fmt.Errorf("tag object line: %w", err)
			}
			t.Object = id
		case strings.HasPrefix(line, "type "):
			kind, err := kindFromBytes([]byte(strings.TrimPrefix(line, "type ")))
			if err != nil {
				return nil, fmt.Errorf("tag type line: %w", err)
			}
			t.Type = kind
		case strings.HasPrefix(line, "tag "):
			t.Name = strings.TrimPrefix(line, "tag ")
		case strings.HasPrefix(line, "tagger "):
			id, err := object.ParseIdentity(strings.TrimPrefix(line, "tagger "))
			if err != nil {
				return nil, fmt.Errorf("tag tagger line: %w", err)
			}
			t.Tagger = *id
		}
	}

	if t.Object == nil {
		return nil, fmt.Errorf("tag missing object line")
	}
	if t.Name == "" {
		return nil, fmt.Errorf("tag missing tag line")
	}

	var msg bytes.Buffer
	for scanner.Scan() {
		msg.WriteString(scanner.Text())
		msg.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning tag message: %w", err)
	}
	t.Message = msg.String()

	return t, nil
}

// Encode serializes a Tag back into its payload form.
func (t *Tag) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type.Bytes())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s <%s> %d %s\n", t.Tagger.Name, t.Tagger.Email, t.Tagger.Timestamp, t.Tagger.Timezone)
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}
