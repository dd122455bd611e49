// Package node builds the persistent directory/blob graph a pack decodes
// into: the tree reachable from a commit, rooted at a repository sub-path,
// with every node assigned a system-generated id and linked to its parent.
package node

import "github.com/grafana/monogit/protocol/hash"

// Node is either a TreeNode (a directory) or a FileNode (a blob). Both
// carry the fields common to every node in the graph: its own id, its
// parent's id, the git object it was built from, and its full
// repository-relative path.
type Node interface {
	ID() int64
	ParentID() int64
	GitID() hash.Hash
	Name() string
	Path() string
	IsDir() bool
}

// TreeNode is a directory: a node whose children are other nodes, in the
// order its tree object listed them.
type TreeNode struct {
	NID      int64
	PID      int64
	Git      hash.Hash
	NodeName string
	NodePath string
	Children []Node
}

func (n *TreeNode) ID() int64        { return n.NID }
func (n *TreeNode) ParentID() int64  { return n.PID }
func (n *TreeNode) GitID() hash.Hash { return n.Git }
func (n *TreeNode) Name() string     { return n.NodeName }
func (n *TreeNode) Path() string     { return n.NodePath }
func (n *TreeNode) IsDir() bool      { return true }

// FileNode is a blob: a leaf node carrying its decoded content inline.
type FileNode struct {
	NID      int64
	PID      int64
	Git      hash.Hash
	NodeName string
	NodePath string
	Data     []byte
}

func (n *FileNode) ID() int64        { return n.NID }
func (n *FileNode) ParentID() int64  { return n.PID }
func (n *FileNode) GitID() hash.Hash { return n.Git }
func (n *FileNode) Name() string     { return n.NodeName }
func (n *FileNode) Path() string     { return n.NodePath }
func (n *FileNode) IsDir() bool      { return false }

// childPath joins a parent path and a child name with exactly one slash,
// treating an empty parent path (the request root) as having no prefix.
func childPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}
