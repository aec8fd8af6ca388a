// Package structure defines the Snapshot of an overlay page: the tree of
// data-cy tagged elements discovered after the page has settled, and the
// lookups the binder runs against it.
//
// A Snapshot is an arena of nodes addressed by NodeID. Nodes never own the
// page element they describe; they carry an ElementRef that resolves in the
// live document.
package structure

import "strings"

// Attr is the custom attribute the vendor page tags its elements with.
const Attr = "data-cy"

// ContentID is the data-cy value of the element holding a Text node's
// rendered string.
const ContentID = "Text-content"

// Kind is the element kind encoded in the data-cy prefix.
type Kind string

const (
	KindRegion    Kind = "Region"
	KindOverlay   Kind = "Overlay"
	KindContainer Kind = "Container"
	KindText      Kind = "Text"
	KindImage     Kind = "Image"
	KindRectangle Kind = "Rectangle"
)

// walkable lists the kinds captured as children during the recursive walk.
// Anything else below an overlay is skipped on purpose.
var walkable = []Kind{KindContainer, KindText, KindImage, KindRectangle}

// Prefix returns the data-cy prefix for the kind, e.g. "Container-".
func (k Kind) Prefix() string { return string(k) + "-" }

// Walkable reports whether nodes of this kind are captured below an overlay.
func (k Kind) Walkable() bool {
	for _, w := range walkable {
		if k == w {
			return true
		}
	}
	return false
}

// KindOf returns the kind encoded in a data-cy identifier. Unknown
// prefixes return ok=false.
func KindOf(id string) (Kind, bool) {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return "", false
	}
	switch k := Kind(prefix); k {
	case KindRegion, KindOverlay, KindContainer, KindText, KindImage, KindRectangle:
		return k, true
	}
	return "", false
}
