package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol/hash"
)

// AdvertisePush renders the git-receive-pack ref advertisement for path.
func AdvertisePush(ctx context.Context, st Store, path string, withServiceHeader bool) ([]byte, error) {
	if _, err := st.HeadObjectID(ctx, path); err != nil {
		return nil, err
	}
	refs, err := st.RefMap(ctx, path)
	if err != nil {
		return nil, err
	}
	return BuildAdvertisement(ServiceReceivePack, refs, withServiceHeader)
}

// storeResolver adapts Store.GetObject to packfile.BaseResolver, letting a
// thin incoming pack reference a base object that already lives in the
// store rather than in the pack itself.
type storeResolver struct {
	ctx context.Context
	st  Store
}

func (r storeResolver) ResolveBase(id hash.Hash) (*packfile.DecodedObject, error) {
	meta, err := r.st.GetObject(r.ctx, id)
	if err != nil {
		return nil, err
	}
	return &packfile.DecodedObject{ID: meta.ID, Kind: meta.ObjectKind(), Payload: meta.ObjectPayload()}, nil
}

// commandResult is the outcome of applying one parsed ref-update command,
// used to build the report-status reply.
type commandResult struct {
	refName string
	err     error
}

// RunReceivePack drives the server side of the receive-pack push: read the
// command list, read and decode the pack it carries (if any), ingest it,
// apply every ref command (atomically if the `atomic` capability was
// negotiated), and write the report-status reply. r must pick up exactly
// where the ref advertisement (if any) left off.
func RunReceivePack(ctx context.Context, st Store, path string, r io.Reader, w io.Writer) error {
	pr := newPktLineReader(r)

	cmds, caps, err := readCommandList(pr)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return nil
	}

	needsPack := false
	for _, cmd := range cmds {
		if cmd.NewRef != ZeroHash {
			needsPack = true
			break
		}
	}

	var unpackErr error
	if needsPack {
		unpackErr = decodeAndIngest(ctx, st, path, pr.reader())
	}

	var results []commandResult
	if unpackErr == nil {
		results = applyCommands(ctx, st, path, cmds, caps.Has(CapAtomic))
	} else {
		for _, cmd := range cmds {
			results = append(results, commandResult{refName: cmd.RefName, err: unpackErr})
		}
	}

	return writeReceivePackReport(w, unpackErr, results, caps.Has(CapSideBand64k) || caps.Has(CapSideBand))
}

// readCommandList consumes the ref-update command list up to the
// terminating flush. The first line carries a NUL-separated capability
// announcement after the ref name.
func readCommandList(pr *pktLineReader) ([]RefUpdateRequest, CapabilitySet, error) {
	var cmds []RefUpdateRequest
	var caps CapabilitySet

	for {
		line, isFlush, err := pr.next()
		if err != nil {
			return nil, nil, err
		}
		if isFlush {
			break
		}

		cmd, lineCaps, err := ParseRefUpdateCommand(string(line))
		if err != nil {
			return nil, nil, NewProtocolParseError("command-list", string(line))
		}
		cmds = append(cmds, cmd)

		if caps == nil && lineCaps != nil {
			caps = ParseCapabilities(strings.Join(lineCaps, " "))
		}
	}

	if caps == nil {
		caps = CapabilitySet{}
	}
	return cmds, caps, nil
}

// decodeAndIngest reads the remainder of the request body as a raw
// packfile, decodes it (resolving thin-pack bases against the store), and
// ingests every resulting object into path.
func decodeAndIngest(ctx context.Context, st Store, path string, rest io.Reader) error {
	raw, err := io.ReadAll(rest)
	if err != nil {
		return fmt.Errorf("reading pack body: %w", err)
	}

	objects, _, err := packfile.Decode(bytes.NewReader(raw), storeResolver{ctx: ctx, st: st})
	if err != nil {
		return err
	}

	return st.IngestPack(ctx, path, objects)
}

// applyCommands runs every command against the store. When atomic is true,
// the whole batch goes through ApplyRefCommands, which the store runs as one
// unit (one lock acquisition in the in-memory backend, one transaction in
// the SQL backend) so a failing command can't leave a partial update visible
// to a concurrent reader or writer. When atomic is false, each command is
// applied independently and may succeed or fail on its own.
func applyCommands(ctx context.Context, st Store, path string, cmds []RefUpdateRequest, atomic bool) []commandResult {
	results := make([]commandResult, len(cmds))

	if atomic {
		errs := st.ApplyRefCommands(ctx, path, cmds)
		for i, cmd := range cmds {
			results[i] = commandResult{refName: cmd.RefName, err: errs[i]}
		}
		return results
	}

	for i, cmd := range cmds {
		results[i] = commandResult{refName: cmd.RefName, err: st.ApplyRefCommand(ctx, path, cmd)}
	}
	return results
}

// writeReceivePackReport writes the `unpack ok`/`unpack <err>` line followed
// by one `<ok|ng> <refname>[ <reason>]` per command and a terminating
// flush, wrapped in side-band channel 1 if negotiated.
func writeReceivePackReport(w io.Writer, unpackErr error, results []commandResult, sideBand bool) error {
	var buf bytes.Buffer

	if unpackErr != nil {
		if err := writePktLineTo(&buf, fmt.Sprintf("unpack %s\n", unpackErr.Error())); err != nil {
			return err
		}
	} else {
		if err := writePktLineTo(&buf, "unpack ok\n"); err != nil {
			return err
		}
	}

	for _, res := range results {
		var line string
		if res.err == nil {
			line = fmt.Sprintf("ok %s\n", res.refName)
		} else {
			line = fmt.Sprintf("ng %s %s\n", res.refName, res.err.Error())
		}
		if err := writePktLineTo(&buf, line); err != nil {
			return err
		}
	}
	buf.Write([]byte(FlushPacket))

	if !sideBand {
		_, err := w.Write(buf.Bytes())
		return err
	}

	wrapped, err := sideBandWrap(SideBandData, buf.Bytes())
	if err != nil {
		return err
	}
	_, err = w.Write(wrapped)
	return err
}

func writePktLineTo(buf *bytes.Buffer, s string) error {
	marshalled, err := PackLine(s).Marshal()
	if err != nil {
		return err
	}
	buf.Write(marshalled)
	return nil
}
