// Package store defines the abstract persistence backend the pack-exchange
// protocol drives: ref lookup and mutation, pack ingestion, and full/
// incremental pack assembly for fetch. memory.go and sql.go are two
// implementations of the same interface; callers depend only on
// ObjectStore.
package store

import (
	"context"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/protocol/hash"
)

// DefaultBranch is the ref name HeadObjectID resolves against. Repositories
// that never negotiate a different default HEAD target are assumed to use
// it, matching Git's traditional default.
const DefaultBranch = "refs/heads/master"

// ObjectStore is the persistence interface the pack-exchange protocol (C11)
// and its transports (C12) drive. All operations are scoped to a repo_path:
// the sub-path of the monorepo a client's fetch/push was addressed to.
type ObjectStore interface {
	// HeadObjectID returns the commit id refs/heads/master points at for
	// path. If path has no ref of its own but is a strict descendant of
	// some stored ref's path, a child commit scoped to path is
	// synthesized (and persisted) on the fly. If no ancestor ref exists
	// either, it returns hash.Zero.
	HeadObjectID(ctx context.Context, path string) (hash.Hash, error)

	// RefMap returns every ref recorded at path, keyed by hex object id.
	RefMap(ctx context.Context, path string) (map[string]string, error)

	// ApplyRefCommand performs one ref create/update/delete at path,
	// gated on cmd.OldRef matching the ref's current value.
	ApplyRefCommand(ctx context.Context, path string, cmd protocol.RefUpdateRequest) error

	// ApplyRefCommands performs every command in cmds at path as a single
	// atomic unit: every precondition is checked against one consistent
	// snapshot of the ref set before any mutation lands, so a command that
	// would fail its precondition rolls back the whole batch rather than
	// leaving a partial update. The returned slice has one entry per cmd,
	// in order; a rejected batch carries the same error in every entry.
	ApplyRefCommands(ctx context.Context, path string, cmds []protocol.RefUpdateRequest) []error

	// IngestPack persists every object a decoded pack produced, builds
	// the node graph (C9) for each commit object among them rooted at
	// path, and records the commits themselves.
	IngestPack(ctx context.Context, path string, objects []*packfile.DecodedObject) error

	// FullPack walks every commit recorded at path, collects every
	// reachable tree and blob, and returns a packfile containing all of
	// it.
	FullPack(ctx context.Context, path string) ([]byte, error)

	// IncrementalPack walks each want's ancestry (first-parent only)
	// until it reaches a commit in haves (or runs out of parents),
	// seeds the objects reachable from that common base as already
	// known to the client, and returns a packfile of everything newly
	// reachable from wants that isn't in that seeded set.
	IncrementalPack(ctx context.Context, path string, wants, haves []hash.Hash) ([]byte, error)

	// GetObject resolves a single object by id, used by the pack decoder
	// to satisfy RefDelta bases whose base lies outside an incoming
	// (thin) pack.
	GetObject(ctx context.Context, id hash.Hash) (*gitobject.Metadata, error)
}
