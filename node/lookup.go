package node

import (
	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/packfile"
	"github.com/grafana/monogit/protocol/hash"
	"github.com/grafana/monogit/protocol/object"
)

// ObjectLookup resolves the tree and blob objects a tree walk needs by id.
// Consumers of this package supply their own implementation (a decoded
// pack cache, a store round-trip, whatever backs the walk); PackLookup
// below is the adapter for the common case of walking a freshly decoded
// pack directly.
type ObjectLookup interface {
	Tree(id hash.Hash) (*gitobject.Tree, error)
	Blob(id hash.Hash) ([]byte, error)
}

// PackLookup resolves objects out of a packfile.Decode result, keyed by
// hex id.
type PackLookup struct {
	byHash map[string]*packfile.DecodedObject
}

// NewPackLookup indexes objects by id for repeated lookups during a walk.
func NewPackLookup(objects []*packfile.DecodedObject) *PackLookup {
	byHash := make(map[string]*packfile.DecodedObject, len(objects))
	for _, obj := range objects {
		byHash[obj.ID.String()] = obj
	}
	return &PackLookup{byHash: byHash}
}

func (p *PackLookup) Tree(id hash.Hash) (*gitobject.Tree, error) {
	obj, err := p.get(id, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return gitobject.ParseTree(obj.Payload)
}

func (p *PackLookup) Blob(id hash.Hash) ([]byte, error) {
	obj, err := p.get(id, object.TypeBlob)
	if err != nil {
		return nil, err
	}
	return obj.Payload, nil
}

func (p *PackLookup) get(id hash.Hash, want object.Type) (*packfile.DecodedObject, error) {
	obj, ok := p.byHash[id.String()]
	if !ok {
		return nil, &MissingObjectError{ID: id.String()}
	}
	if obj.Kind != want {
		return nil, &UnexpectedObjectKindError{ID: id.String(), Want: want, Got: obj.Kind}
	}
	return obj, nil
}
