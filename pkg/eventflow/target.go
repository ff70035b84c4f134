package eventflow

import (
	"sync"
	"weak"
)

// Target is a node in a propagation hierarchy.
//
// ParentTarget returns the node's parent, or nil at the root. It must
// return an untyped nil, not a nil pointer wrapped in the interface.
// Targets are used as map keys by the registry, so implementations must
// be comparable; pointer types are the usual choice.
type Target interface {
	ParentTarget() Target
}

// Node is a ready-made Target. Its parent link is weak: a Node never keeps
// its ancestors alive, and a parent that has been collected reads as nil.
// Keeping the hierarchy reachable is the application's job.
type Node struct {
	name string

	mu     sync.RWMutex
	parent weak.Pointer[Node]
}

var _ Target = (*Node)(nil)

// NewNode creates a node under parent. A nil parent makes a root.
func NewNode(name string, parent *Node) *Node {
	n := &Node{name: name}
	if parent != nil {
		n.parent = weak.Make(parent)
	}
	return n
}

// Name returns the node's name.
func (n *Node) Name() string {
	return n.name
}

// String returns the node's name.
func (n *Node) String() string {
	return n.name
}

// Parent returns the parent node, or nil for a root, a collected parent
// or a nil node.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent.Value()
}

// SetParent re-parents the node. A nil parent detaches it.
func (n *Node) SetParent(parent *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if parent == nil {
		n.parent = weak.Pointer[Node]{}
		return
	}
	n.parent = weak.Make(parent)
}

// ParentTarget implements Target.
func (n *Node) ParentTarget() Target {
	if p := n.Parent(); p != nil {
		return p
	}
	return nil
}
