package structure

// Field names a node attribute the finder can match on.
type Field string

const (
	FieldID   Field = "id"
	FieldKind Field = "kind"
	FieldText Field = "text"
)

// value returns the node's value for f. ok is false when the node has no
// such field (non-Text nodes have no text).
func (n Node) value(f Field) (string, bool) {
	switch f {
	case FieldID:
		return n.ID, true
	case FieldKind:
		return string(n.Kind), true
	case FieldText:
		return n.Text, n.HasText
	}
	return "", false
}

// Find returns the first node, depth-first pre-order over the whole
// Snapshot, whose field equals value.
func (s *Snapshot) Find(f Field, value string) (NodeID, bool) {
	found := NoNode
	s.Walk(func(id NodeID, n Node) bool {
		if v, ok := n.value(f); ok && v == value {
			found = id
			return false
		}
		return true
	})
	return found, found != NoNode
}

// FindFrom is Find restricted to the subtree rooted at start (inclusive).
func (s *Snapshot) FindFrom(start NodeID, f Field, value string) (NodeID, bool) {
	if _, ok := s.Node(start); !ok {
		return NoNode, false
	}
	found := NoNode
	s.walkFrom(start, func(id NodeID, n Node) bool {
		if v, ok := n.value(f); ok && v == value {
			found = id
			return false
		}
		return true
	})
	return found, found != NoNode
}

// Closest returns the nearest node of the given kind on the ancestor chain
// of id, id itself included.
func (s *Snapshot) Closest(id NodeID, k Kind) (NodeID, bool) {
	for cur := id; cur != NoNode; {
		n, ok := s.Node(cur)
		if !ok {
			return NoNode, false
		}
		if n.Kind == k {
			return cur, true
		}
		cur = n.Parent
	}
	return NoNode, false
}
