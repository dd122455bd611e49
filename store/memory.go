package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/node"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

type refRecord struct {
	name string
	id   hash.Hash
}

type commitRecord struct {
	id     hash.Hash
	path   string
	commit *gitobject.Commit
}

// InMemoryStore is a process-local ObjectStore, adapted from the map-based
// packfile cache nanogit clients keep for a fetch, generalized to also
// track refs, commits, and the node graph across repo paths.
type InMemoryStore struct {
	mu sync.RWMutex

	objects       map[string]*gitobject.Metadata
	commitsByPath map[string][]*commitRecord
	refsByPath    map[string][]*refRecord
	nodesByPath   map[string]node.Node

	idgen *node.IDGenerator
}

// NewInMemoryStore returns an empty InMemoryStore ready to ingest packs.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		objects:       make(map[string]*gitobject.Metadata),
		commitsByPath: make(map[string][]*commitRecord),
		refsByPath:    make(map[string][]*refRecord),
		nodesByPath:   make(map[string]node.Node),
		idgen:         node.NewIDGenerator(),
	}
}

func (s *InMemoryStore) HeadObjectID(ctx context.Context, path string) (hash.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.refsByPath[path] {
		if r.name == DefaultBranch {
			return r.id, nil
		}
	}

	// path has no ref of its own. If it's a strict descendant of some
	// other stored ref's path, synthesize a commit scoped to it. Prefer
	// the longest matching ancestor path when more than one qualifies.
	var bestPath string
	var bestRef *refRecord
	for p, refs := range s.refsByPath {
		if !isStrictPrefix(p, path) {
			continue
		}
		for _, r := range refs {
			if r.name != DefaultBranch {
				continue
			}
			if bestRef == nil || len(p) > len(bestPath) {
				bestPath, bestRef = p, r
			}
		}
	}
	if bestRef == nil {
		return hash.Zero, nil
	}

	return s.synthesizeChildCommit(path, bestPath, bestRef)
}

// isStrictPrefix reports whether path is a slash-delimited descendant of
// ancestor (ancestor itself does not count).
func isStrictPrefix(ancestor, path string) bool {
	return strings.HasPrefix(path, ancestor+"/")
}

// synthesizeChildCommit builds and persists a commit scoped to path, whose
// tree is the node already recorded at path and whose sole parent is the
// commit rootRef (recorded at rootPath) points at.
func (s *InMemoryStore) synthesizeChildCommit(path, rootPath string, rootRef *refRecord) (hash.Hash, error) {
	var root *commitRecord
	for _, c := range s.commitsByPath[rootPath] {
		if c.id.Is(rootRef.id) {
			root = c
			break
		}
	}
	if root == nil {
		return hash.Zero, nil
	}

	n, ok := s.nodesByPath[path]
	if !ok {
		return hash.Zero, nil
	}

	child := &gitobject.Commit{
		Tree:      n.GitID(),
		Parents:   []hash.Hash{root.id},
		Author:    root.commit.Author,
		Committer: root.commit.Committer,
		Message:   root.commit.Message,
	}
	meta, err := gitobject.New(object.TypeCommit, child.Encode())
	if err != nil {
		return nil, fmt.Errorf("hashing synthesized commit: %w", err)
	}

	s.objects[meta.ID.String()] = meta
	s.commitsByPath[path] = append(s.commitsByPath[path], &commitRecord{id: meta.ID, path: path, commit: child})
	s.refsByPath[path] = append(s.refsByPath[path], &refRecord{name: DefaultBranch, id: meta.ID})

	return meta.ID, nil
}

func (s *InMemoryStore) RefMap(ctx context.Context, path string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[string]string, len(s.refsByPath[path]))
	for _, r := range s.refsByPath[path] {
		m[r.id.String()] = r.name
	}
	return m, nil
}

func (s *InMemoryStore) ApplyRefCommand(ctx context.Context, path string, cmd protocol.RefUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyRefCommandLocked(path, cmd)
}

// applyRefCommandLocked is ApplyRefCommand's body, split out so
// ApplyRefCommands can run a whole batch under one lock acquisition instead
// of one per command.
func (s *InMemoryStore) applyRefCommandLocked(path string, cmd protocol.RefUpdateRequest) error {
	oldID, err := hash.FromHex(cmd.OldRef)
	if err != nil {
		return fmt.Errorf("parsing old ref id: %w", err)
	}
	newID, err := hash.FromHex(cmd.NewRef)
	if err != nil {
		return fmt.Errorf("parsing new ref id: %w", err)
	}

	refs := s.refsByPath[path]
	idx := -1
	for i, r := range refs {
		if r.name == cmd.RefName {
			idx = i
			break
		}
	}

	switch {
	case oldID.IsZero() && newID.IsZero():
		return protocol.NewRefCommandInvalidError(cmd.RefName)

	case oldID.IsZero(): // create
		if idx != -1 {
			return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, refs[idx].id.String())
		}
		s.refsByPath[path] = append(refs, &refRecord{name: cmd.RefName, id: newID})
		return nil

	case newID.IsZero(): // delete
		if idx == -1 {
			return protocol.NewRefNotFoundError(cmd.RefName)
		}
		if !refs[idx].id.Is(oldID) {
			return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, refs[idx].id.String())
		}
		s.refsByPath[path] = append(refs[:idx], refs[idx+1:]...)
		return nil

	default: // update
		if idx == -1 {
			return protocol.NewRefNotFoundError(cmd.RefName)
		}
		if !refs[idx].id.Is(oldID) {
			return protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, refs[idx].id.String())
		}
		refs[idx].id = newID
		return nil
	}
}

// ApplyRefCommands holds the store's single lock for the whole batch, so no
// other ApplyRefCommand/ApplyRefCommands call can interleave a mutation
// between this batch's precondition check and its apply, unlike driving
// ApplyRefCommand in a loop from the caller's side.
func (s *InMemoryStore) ApplyRefCommands(ctx context.Context, path string, cmds []protocol.RefUpdateRequest) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]hash.Hash, len(s.refsByPath[path]))
	for _, r := range s.refsByPath[path] {
		current[r.name] = r.id
	}

	for _, cmd := range cmds {
		oldID, err := hash.FromHex(cmd.OldRef)
		if err != nil {
			return fillErrors(len(cmds), fmt.Errorf("parsing old ref id: %w", err))
		}
		newID, err := hash.FromHex(cmd.NewRef)
		if err != nil {
			return fillErrors(len(cmds), fmt.Errorf("parsing new ref id: %w", err))
		}
		if oldID.IsZero() && newID.IsZero() {
			return fillErrors(len(cmds), protocol.NewRefCommandInvalidError(cmd.RefName))
		}
		actual, exists := current[cmd.RefName]
		switch {
		case oldID.IsZero() && exists:
			return fillErrors(len(cmds), protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual.String()))
		case !oldID.IsZero() && (!exists || !actual.Is(oldID)):
			if !exists {
				return fillErrors(len(cmds), protocol.NewRefNotFoundError(cmd.RefName))
			}
			return fillErrors(len(cmds), protocol.NewRefPreconditionFailedError(cmd.RefName, cmd.OldRef, actual.String()))
		}
	}

	errs := make([]error, len(cmds))
	for i, cmd := range cmds {
		errs[i] = s.applyRefCommandLocked(path, cmd)
	}
	return errs
}

// fillErrors returns a slice of n entries all carrying cause, used when a
// batch precondition fails before any command is allowed to mutate state.
func fillErrors(n int, cause error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = cause
	}
	return errs
}

func (s *InMemoryStore) IngestPack(ctx context.Context, path string, objects []*packfile.DecodedObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, obj := range objects {
		meta, err := gitobject.New(obj.Kind, obj.Payload)
		if err != nil {
			return fmt.Errorf("hashing ingested object %s: %w", obj.ID, err)
		}
		s.objects[meta.ID.String()] = meta
	}

	lookup := node.NewPackLookup(objects)
	for _, obj := range objects {
		if obj.Kind != object.TypeCommit {
			continue
		}

		commit, err := gitobject.ParseCommit(obj.Payload)
		if err != nil {
			return fmt.Errorf("parsing ingested commit %s: %w", obj.ID, err)
		}

		root, err := node.BuildFromCommit(s.idgen, lookup, commit, baseName(path), path)
		if err != nil {
			return fmt.Errorf("building node tree for commit %s: %w", obj.ID, err)
		}
		for _, n := range node.Flatten(root) {
			s.nodesByPath[n.Path()] = n
		}

		s.commitsByPath[path] = append(s.commitsByPath[path], &commitRecord{id: obj.ID, path: path, commit: commit})
	}

	return nil
}

func (s *InMemoryStore) FullPack(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*gitobject.Metadata)
	seen := make(map[string]bool)
	for _, c := range s.commitsByPath[path] {
		key := c.id.String()
		if meta, ok := s.objects[key]; ok {
			result[key] = meta
		}
		s.collectTree(c.commit.Tree, seen)
	}
	for key := range seen {
		if meta, ok := s.objects[key]; ok {
			result[key] = meta
		}
	}

	return encodePack(result)
}

func (s *InMemoryStore) IncrementalPack(ctx context.Context, path string, wants, haves []hash.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	haveSet := make(map[string]bool, len(haves))
	for _, h := range haves {
		haveSet[h.String()] = true
	}

	commitsByID := make(map[string]*commitRecord, len(s.commitsByPath[path]))
	for _, c := range s.commitsByPath[path] {
		commitsByID[c.id.String()] = c
	}

	result := make(map[string]*gitobject.Metadata)
	basic := make(map[string]bool)

	for _, want := range wants {
		chain, base := ancestorChain(commitsByID, want, haveSet)
		if base != nil {
			s.collectTree(base.commit.Tree, basic)
		}

		// chain is ordered newest (want) to oldest; walk it oldest-first
		// so that objects shared between consecutive new commits are
		// only emitted once.
		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			if meta, ok := s.objects[c.id.String()]; ok {
				result[c.id.String()] = meta
			}

			fresh := make(map[string]bool)
			s.collectTree(c.commit.Tree, fresh)
			for key := range fresh {
				if basic[key] {
					continue
				}
				basic[key] = true
				if meta, ok := s.objects[key]; ok {
					result[key] = meta
				}
			}
		}
	}

	return encodePack(result)
}

// ancestorChain walks want's first-parent history, stopping at (and
// excluding) a commit found in haveSet. It returns the walked commits
// ordered from want back towards that base, and the base commit itself (nil
// if the walk ran out of parents before finding one).
func ancestorChain(commits map[string]*commitRecord, want hash.Hash, haveSet map[string]bool) ([]*commitRecord, *commitRecord) {
	var chain []*commitRecord

	cur, ok := commits[want.String()]
	for ok && !haveSet[cur.id.String()] {
		chain = append(chain, cur)
		if len(cur.commit.Parents) == 0 {
			return chain, nil
		}
		cur, ok = commits[cur.commit.Parents[0].String()]
	}
	if !ok {
		return chain, nil
	}
	return chain, cur
}

// collectTree walks the tree at treeID and everything reachable from it,
// recording every tree and blob hash encountered (including treeID itself)
// into seen.
func (s *InMemoryStore) collectTree(treeID hash.Hash, seen map[string]bool) {
	key := treeID.String()
	if seen[key] {
		return
	}
	seen[key] = true

	meta, ok := s.objects[key]
	if !ok {
		return
	}
	tree, err := gitobject.ParseTree(meta.Payload)
	if err != nil {
		return
	}
	for _, e := range tree.Entries {
		if e.Mode.IsTree() {
			s.collectTree(e.ID, seen)
			continue
		}
		seen[e.ID.String()] = true
	}
}

func (s *InMemoryStore) GetObject(ctx context.Context, id hash.Hash) (*gitobject.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.objects[id.String()]
	if !ok {
		return nil, &MissingObjectError{ID: id.String()}
	}
	return meta, nil
}

// encodePack serializes a set of stored objects into a packfile.
func encodePack(objects map[string]*gitobject.Metadata) ([]byte, error) {
	encodables := make([]packfile.EncodableObject, 0, len(objects))
	for _, m := range objects {
		encodables = append(encodables, m)
	}
	return packfile.Encode(encodables)
}

// baseName returns the final slash-delimited component of path ("" for a
// root path), the name recorded on a node graph's root node.
func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx != -1 {
		return path[idx+1:]
	}
	return path
}
