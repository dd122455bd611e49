package protocol

import (
	"fmt"
	"strings"
)

// ZeroHash represents the all-zeros SHA-1 hash used in Git to represent a non-existent object
const ZeroHash = "0000000000000000000000000000000000000000"

type RefUpdateRequest struct {
	OldRef  string
	NewRef  string
	RefName string
}

// Format formats the ref update request into a byte slice that can be sent over the wire.
// The format follows Git's receive-pack protocol:
//   - A pkt-line containing the ref update command
//   - A flush packet ending the command list
//   - An empty pack file (required by the protocol)
//   - A flush packet to indicate the end of the request
//
// The ref update command format is:
//
//	<old-value> <new-value> <ref-name>\000<capabilities>\n
//
// The old-value and new-value fields have specific meanings depending on the operation:
//   - Create: old-value is ZeroHash, new-value is the target hash
//   - Update: old-value is the current hash, new-value is the target hash
//   - Delete: old-value is the current hash, new-value is ZeroHash
//
// Returns:
//   - A byte slice containing the formatted request
//   - Any error that occurred during formatting
//
// Examples:
//
//	Create refs/heads/main pointing to 1234...:
//	"0000... 1234... refs/heads/main\000report-status-v2 side-band-64k quiet object-format=sha1 agent=nanogit\n"
//
//	Update refs/heads/main from 1234... to 5678...:
//	"1234... 5678... refs/heads/main\000report-status-v2 side-band-64k quiet object-format=sha1 agent=nanogit\n"
//
//	Delete refs/heads/main:
//	"1234... 0000... refs/heads/main\000report-status-v2 side-band-64k quiet object-format=sha1 agent=nanogit\n"
func (r RefUpdateRequest) Format() ([]byte, error) {
	// Validate hash lengths
	if len(r.OldRef) != 40 && r.OldRef != ZeroHash {
		return nil, fmt.Errorf("invalid old ref hash length: got %d, want 40", len(r.OldRef))
	}
	if len(r.NewRef) != 40 && r.NewRef != ZeroHash {
		return nil, fmt.Errorf("invalid new ref hash length: got %d, want 40", len(r.NewRef))
	}

	// Create the ref using receive-pack
	// Format: <old-value> <new-value> <ref-name>\000<capabilities>\n
	refLine := fmt.Sprintf("%s %s %s\000report-status-v2 side-band-64k quiet object-format=sha1 agent=nanogit\n", r.OldRef, r.NewRef, r.RefName)

	// Calculate the correct length (including the 4 bytes of the length field)
	lineLen := len(refLine) + 4
	pkt := make([]byte, 0, lineLen+4)
	pkt = fmt.Appendf(pkt, "%04x%s0000", lineLen, refLine)

	// Send pack file as raw data (not as a pkt-line)
	// It seems we need to send the empty pack even if it's not needed.
	pkt = append(pkt, EmptyPack...)

	// Add final flush packet
	pkt = append(pkt, FlushPacket...)

	return pkt, nil
}

// NewCreateRefRequest builds a RefUpdateRequest that creates refName
// pointing at newRef.
func NewCreateRefRequest(refName, newRef string) RefUpdateRequest {
	return RefUpdateRequest{OldRef: ZeroHash, NewRef: newRef, RefName: refName}
}

// NewUpdateRefRequest builds a RefUpdateRequest that moves refName from
// oldRef to newRef.
func NewUpdateRefRequest(oldRef, newRef, refName string) RefUpdateRequest {
	return RefUpdateRequest{OldRef: oldRef, NewRef: newRef, RefName: refName}
}

// NewDeleteRefRequest builds a RefUpdateRequest that deletes refName,
// which must currently point at oldRef.
func NewDeleteRefRequest(oldRef, refName string) RefUpdateRequest {
	return RefUpdateRequest{OldRef: oldRef, NewRef: ZeroHash, RefName: refName}
}

// ParseRefUpdateCommand parses one `<old-id> <new-id> <name>` line from a
// receive-pack command list. Only the first command in a batch carries a
// NUL-separated capability announcement after the ref name; when present,
// it is split out and returned separately from the parsed request.
func ParseRefUpdateCommand(line string) (RefUpdateRequest, []string, error) {
	line = strings.TrimSuffix(line, "\n")

	var caps []string
	if idx := strings.IndexByte(line, 0); idx != -1 {
		if rest := line[idx+1:]; rest != "" {
			caps = strings.Split(rest, " ")
		}
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return RefUpdateRequest{}, nil, fmt.Errorf("malformed ref update command: %q", line)
	}
	old, newID, name := fields[0], fields[1], fields[2]

	if len(old) != 40 && old != ZeroHash {
		return RefUpdateRequest{}, nil, fmt.Errorf("invalid old ref hash length: got %d, want 40", len(old))
	}
	if len(newID) != 40 && newID != ZeroHash {
		return RefUpdateRequest{}, nil, fmt.Errorf("invalid new ref hash length: got %d, want 40", len(newID))
	}

	return RefUpdateRequest{OldRef: old, NewRef: newID, RefName: name}, caps, nil
}
