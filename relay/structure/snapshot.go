package structure

import (
	"time"
)

// NodeID addresses a node inside its Snapshot.
type NodeID int

// NoNode is the parent of top-level nodes.
const NoNode NodeID = -1

// ElementRef is a back-reference to the page element a node was built
// from: the element's XPath in the document the Snapshot was taken of.
// It does not keep the element alive.
type ElementRef string

// Node is one captured element.
type Node struct {
	ID       string // data-cy value, e.g. "Container-n13"
	Kind     Kind
	Text     string
	HasText  bool // only Text nodes with a content element
	Ref      ElementRef
	Parent   NodeID
	Children []NodeID
}

// Snapshot is the structure of an overlay page captured once per
// page-ready cycle. It is not modified after Parse returns.
type Snapshot struct {
	ID      string
	PageURL string
	TakenAt time.Time

	nodes []Node
	roots []NodeID

	// Issues lists recoverable problems found while walking, e.g. a Text
	// node without its content element.
	Issues []error
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Roots returns the top-level (region) node IDs in document order.
func (s *Snapshot) Roots() []NodeID {
	out := make([]NodeID, len(s.roots))
	copy(out, s.roots)
	return out
}

// Node returns the node with the given ID.
func (s *Snapshot) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(s.nodes) {
		return Node{}, false
	}
	return s.nodes[id], true
}

// Lookup returns the first node (in traversal order) carrying the given
// data-cy identifier.
func (s *Snapshot) Lookup(id string) (NodeID, bool) {
	return s.Find(FieldID, id)
}

// Walk visits nodes depth-first, pre-order, starting at the roots. fn
// returning false stops the walk.
func (s *Snapshot) Walk(fn func(NodeID, Node) bool) {
	for _, r := range s.roots {
		if !s.walkFrom(r, fn) {
			return
		}
	}
}

func (s *Snapshot) walkFrom(id NodeID, fn func(NodeID, Node) bool) bool {
	n := s.nodes[id]
	if !fn(id, n) {
		return false
	}
	for _, c := range n.Children {
		if !s.walkFrom(c, fn) {
			return false
		}
	}
	return true
}

// Tree renders the Snapshot as nested maps keyed by data-cy identifier,
// the shape operators know from the page inspector. When siblings share an
// identifier the last one in document order wins.
func (s *Snapshot) Tree() map[string]any {
	out := make(map[string]any, len(s.roots))
	for _, r := range s.roots {
		out[s.nodes[r].ID] = s.subtree(r)
	}
	return out
}

func (s *Snapshot) subtree(id NodeID) map[string]any {
	n := s.nodes[id]
	m := map[string]any{"ref": string(n.Ref)}
	if n.HasText {
		m["text"] = n.Text
	}
	for _, c := range n.Children {
		m[s.nodes[c].ID] = s.subtree(c)
	}
	return m
}

// add appends a node and links it to its parent.
func (s *Snapshot) add(n Node) NodeID {
	id := NodeID(len(s.nodes))
	s.nodes = append(s.nodes, n)
	if n.Parent == NoNode {
		s.roots = append(s.roots, id)
	} else {
		p := &s.nodes[n.Parent]
		p.Children = append(p.Children, id)
	}
	return id
}
