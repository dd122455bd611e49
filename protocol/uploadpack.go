package protocol

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol/hash"
)

// Store is the persistence surface the pack-exchange state machine drives.
// It mirrors store.ObjectStore's method set exactly; it is declared locally
// because store imports protocol for RefUpdateRequest and friends, so
// protocol cannot import store back without a cycle. Any store.ObjectStore
// implementation satisfies this interface automatically.
type Store interface {
	HeadObjectID(ctx context.Context, path string) (hash.Hash, error)
	RefMap(ctx context.Context, path string) (map[string]string, error)
	ApplyRefCommand(ctx context.Context, path string, cmd RefUpdateRequest) error
	ApplyRefCommands(ctx context.Context, path string, cmds []RefUpdateRequest) []error
	IngestPack(ctx context.Context, path string, objects []*packfile.DecodedObject) error
	FullPack(ctx context.Context, path string) ([]byte, error)
	IncrementalPack(ctx context.Context, path string, wants, haves []hash.Hash) ([]byte, error)
	GetObject(ctx context.Context, id hash.Hash) (*gitobject.Metadata, error)
}

// pktLineReader reads pkt-lines off an underlying stream one at a time.
type pktLineReader struct {
	r *bufio.Reader
}

func newPktLineReader(r io.Reader) *pktLineReader {
	return &pktLineReader{r: bufio.NewReader(r)}
}

// next returns the next pkt-line's payload. isFlush is true for a flush (or
// delimiter/response-end) packet, in which case payload is nil.
func (p *pktLineReader) next() (payload []byte, isFlush bool, err error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(p.r, lengthBytes[:]); err != nil {
		return nil, false, fmt.Errorf("reading pkt-line length: %w", err)
	}
	length, err := strconv.ParseUint(string(lengthBytes[:]), 16, 16)
	if err != nil {
		return nil, false, NewProtocolParseError("pkt-line-length", string(lengthBytes[:]))
	}
	if length < 4 {
		return nil, true, nil
	}
	data := make([]byte, length-4)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return nil, false, fmt.Errorf("reading pkt-line payload: %w", err)
	}
	return data, false, nil
}

// reader exposes the raw buffered reader, used once the pkt-line phase of a
// request ends and the remaining bytes are a raw packfile (receive-pack).
func (p *pktLineReader) reader() *bufio.Reader { return p.r }

func writePktLine(w io.Writer, s string) error {
	marshalled, err := PackLine(s).Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(marshalled)
	return err
}

func writeFlush(w io.Writer) error {
	_, err := w.Write([]byte(FlushPacket))
	return err
}

// dedupPreserveOrder drops repeated ids, keeping the first occurrence's
// position, per the protocol's want/have tie-break rule.
func dedupPreserveOrder(ids []hash.Hash) []hash.Hash {
	seen := make(map[string]bool, len(ids))
	out := make([]hash.Hash, 0, len(ids))
	for _, id := range ids {
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// AdvertiseFetch renders the git-upload-pack ref advertisement for path.
// HeadObjectID is invoked first so a descendant-path clone observes a
// synthesized ref rather than an empty list.
func AdvertiseFetch(ctx context.Context, st Store, path string, withServiceHeader bool) ([]byte, error) {
	if _, err := st.HeadObjectID(ctx, path); err != nil {
		return nil, err
	}
	refs, err := st.RefMap(ctx, path)
	if err != nil {
		return nil, err
	}
	return BuildAdvertisement(ServiceUploadPack, refs, withServiceHeader)
}

// RunUploadPack drives the server side of the upload-pack negotiation: read
// wants, read haves (ACKing/NAKing per the negotiated capabilities), then
// stream the resulting pack. r must pick up exactly where the ref
// advertisement (if any) left off.
func RunUploadPack(ctx context.Context, st Store, path string, r io.Reader, w io.Writer) error {
	pr := newPktLineReader(r)

	wants, caps, err := readWantLines(pr)
	if err != nil {
		return err
	}
	if len(wants) == 0 {
		return writePktLine(w, "NAK\n")
	}

	haves, err := readHaveLines(ctx, pr, st, caps, w)
	if err != nil {
		return err
	}

	sideBand := caps.Has(CapSideBand64k) || caps.Has(CapSideBand)

	var data []byte
	if len(haves) == 0 {
		data, err = st.FullPack(ctx, path)
	} else {
		data, err = st.IncrementalPack(ctx, path, wants, haves)
	}
	if err != nil {
		return writeProtocolError(w, sideBand, err)
	}

	return sendPack(w, data, sideBand)
}

// writeProtocolError reports a failure that happens after the 200/advertise
// response has already started streaming, per spec.md §7: as a side-band
// fatal (0x03) chunk when side-band was negotiated, or an unframed ERR line
// otherwise. The original error is returned unchanged so the caller still
// logs it server-side.
func writeProtocolError(w io.Writer, sideBand bool, cause error) error {
	msg := fmt.Sprintf("ERR %s\n", cause.Error())
	if sideBand {
		if wrapped, marshalErr := sideBandWrap(SideBandFatal, []byte(msg)); marshalErr == nil {
			_, _ = w.Write(wrapped)
		}
	} else {
		_ = writePktLine(w, msg)
	}
	return cause
}

// readWantLines consumes the READ_WANTS phase: pkt-lines of the form
// `want <hex>[ <capabilities>]` up to the terminating flush. Capabilities
// travel space-separated after the first want line's hash.
func readWantLines(pr *pktLineReader) ([]hash.Hash, CapabilitySet, error) {
	var wants []hash.Hash
	var caps CapabilitySet

	first := true
	for {
		line, isFlush, err := pr.next()
		if err != nil {
			return nil, nil, err
		}
		if isFlush {
			break
		}

		text := strings.TrimSuffix(string(line), "\n")
		fields := strings.Fields(text)
		if len(fields) < 2 || fields[0] != "want" {
			return nil, nil, NewProtocolParseError("want-line", text)
		}

		id, err := hash.FromHex(fields[1])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing want id: %w", err)
		}
		wants = append(wants, id)

		if first && len(fields) > 2 {
			caps = ParseCapabilities(strings.Join(fields[2:], " "))
		}
		first = false
	}

	if caps == nil {
		caps = CapabilitySet{}
	}
	return dedupPreserveOrder(wants), caps, nil
}

// readHaveLines consumes the READ_HAVES and DONE phases. It ACKs/NAKs per
// the multi_ack_detailed rule and returns the de-duplicated have set in
// first-seen order.
func readHaveLines(ctx context.Context, pr *pktLineReader, st Store, caps CapabilitySet, w io.Writer) ([]hash.Hash, error) {
	multiAck := caps.Has(CapMultiACKDetailed)

	var haves []hash.Hash
	seen := make(map[string]bool)
	var lastCommon hash.Hash
	foundCommon := false

	for {
		line, isFlush, err := pr.next()
		if err != nil {
			return nil, err
		}
		if isFlush {
			// A round boundary with no "done" yet: this server always
			// knows its full history up front, so there is nothing more
			// a further round of haves could teach it. Treat it as the
			// end of negotiation, matching a server that answers in one
			// round.
			break
		}

		text := strings.TrimSuffix(string(line), "\n")
		if text == "done" {
			break
		}

		fields := strings.Fields(text)
		if len(fields) != 2 || fields[0] != "have" {
			return nil, NewProtocolParseError("have-line", text)
		}
		id, err := hash.FromHex(fields[1])
		if err != nil {
			return nil, fmt.Errorf("parsing have id: %w", err)
		}
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		haves = append(haves, id)

		if multiAck {
			if _, err := st.GetObject(ctx, id); err == nil {
				foundCommon = true
				lastCommon = id
				if err := writePktLine(w, fmt.Sprintf("ACK %s common\n", id.String())); err != nil {
					return nil, err
				}
			}
		}
	}

	switch {
	case multiAck && foundCommon:
		// The terminal acknowledgement is the bare form, `ACK <hex>`; the
		// `common`/`ready` suffixes only annotate mid-negotiation rounds.
		if err := writePktLine(w, fmt.Sprintf("ACK %s\n", lastCommon.String())); err != nil {
			return nil, err
		}
	default:
		if err := writePktLine(w, "NAK\n"); err != nil {
			return nil, err
		}
	}

	return haves, nil
}

// sendPack writes a complete packfile to w, framed in side-band channel 1
// pkt-lines when sideBand is negotiated, or as a single unframed write
// otherwise (matching a client that did not ask for side-band-64k).
func sendPack(w io.Writer, data []byte, sideBand bool) error {
	if !sideBand {
		_, err := w.Write(data)
		return err
	}
	wrapped, err := sideBandWrap(SideBandData, data)
	if err != nil {
		return err
	}
	_, err = w.Write(wrapped)
	return err
}
