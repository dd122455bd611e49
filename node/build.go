package node

import (
	"fmt"

	"github.com/grafana/monogit/gitobject"
	"github.com/grafana/monogit/protocol/hash"
)

// BuildFromCommit walks the tree a commit points at and returns the root
// TreeNode of the resulting node graph, rooted at requestPath (the
// repository sub-path the fetch was scoped to). rootName is the name
// recorded on the root node itself; it has no bearing on requestPath.
func BuildFromCommit(gen *IDGenerator, lookup ObjectLookup, commit *gitobject.Commit, rootName, requestPath string) (*TreeNode, error) {
	return buildTree(gen, lookup, commit.Tree, rootName, requestPath, 0)
}

// buildTree recursively constructs a TreeNode for the tree identified by
// treeID, with parentID linking it to its caller (0 for the root).
func buildTree(gen *IDGenerator, lookup ObjectLookup, treeID hash.Hash, name, path string, parentID int64) (*TreeNode, error) {
	tree, err := lookup.Tree(treeID)
	if err != nil {
		return nil, fmt.Errorf("resolving tree %s: %w", treeID, err)
	}

	n := &TreeNode{
		NID:      gen.Next(),
		PID:      parentID,
		Git:      treeID,
		NodeName: name,
		NodePath: path,
	}

	for _, entry := range tree.Entries {
		entryPath := childPath(path, entry.Name)
		switch {
		case entry.Mode.IsTree():
			child, err := buildTree(gen, lookup, entry.ID, entry.Name, entryPath, n.NID)
			if err != nil {
				return nil, fmt.Errorf("walking %s: %w", entryPath, err)
			}
			n.Children = append(n.Children, child)

		case entry.Mode.IsBlob():
			data, err := lookup.Blob(entry.ID)
			if err != nil {
				return nil, fmt.Errorf("resolving blob %s: %w", entryPath, err)
			}
			n.Children = append(n.Children, &FileNode{
				NID:      gen.Next(),
				PID:      n.NID,
				Git:      entry.ID,
				NodeName: entry.Name,
				NodePath: entryPath,
				Data:     data,
			})

		default:
			// Submodule commit entries have no content of their own to
			// walk into; record them as a childless leaf node so the
			// graph still accounts for every tree entry.
			n.Children = append(n.Children, &FileNode{
				NID:      gen.Next(),
				PID:      n.NID,
				Git:      entry.ID,
				NodeName: entry.Name,
				NodePath: entryPath,
			})
		}
	}

	return n, nil
}

// Walk visits root and then, recursively, every descendant, in pre-order:
// a node is visited before any of its children. This is the order the
// persistence layer requires so that parent rows exist before child rows
// that reference them.
func Walk(root Node, visit func(Node) error) error {
	if err := visit(root); err != nil {
		return err
	}
	tree, ok := root.(*TreeNode)
	if !ok {
		return nil
	}
	for _, child := range tree.Children {
		if err := Walk(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Flatten returns every node in root's graph in the same pre-order Walk
// visits them, as a ready-to-persist batch.
func Flatten(root Node) []Node {
	var batch []Node
	// Walk only returns an error if visit does, and this visit never does.
	_ = Walk(root, func(n Node) error {
		batch = append(batch, n)
		return nil
	})
	return batch
}
