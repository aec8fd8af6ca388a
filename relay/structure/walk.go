// CLAUDE:SUMMARY Builds a Snapshot from a page's serialized DOM: regions, their overlays, and the allow-listed direct-child tree below each overlay.
package structure

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// ErrMissingContent matches a Text node that has no Text-content element.
var ErrMissingContent = errors.New("structure: text content element missing")

// MissingContentError reports a Text node captured without its text.
type MissingContentError struct {
	ID  string
	Ref ElementRef
}

func (e *MissingContentError) Error() string {
	return fmt.Sprintf("structure: %s at %s has no %s element", e.ID, e.Ref, ContentID)
}

func (e *MissingContentError) Is(target error) bool { return target == ErrMissingContent }

var (
	regionSelector  = fmt.Sprintf(`div[%s^="%s"]`, Attr, KindRegion.Prefix())
	overlaySelector = fmt.Sprintf(`div[%s^="%s"]`, Attr, KindOverlay.Prefix())
	contentSelector = fmt.Sprintf(`[%s="%s"]`, Attr, ContentID)
)

// Parse reads a serialized DOM and builds its Snapshot.
func Parse(r io.Reader, pageURL string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("structure: parse: %w", err)
	}
	return FromDocument(doc, pageURL), nil
}

// FromDocument builds the Snapshot of an already parsed document.
//
// Every Region element becomes a root; every Overlay inside a region
// becomes its child and seeds the recursive walk.
func FromDocument(doc *goquery.Document, pageURL string) *Snapshot {
	s := &Snapshot{
		ID:      uuid.Must(uuid.NewV7()).String(),
		PageURL: pageURL,
		TakenAt: time.Now(),
	}

	doc.Find(regionSelector).Each(func(_ int, region *goquery.Selection) {
		rid := s.add(newNode(region, KindRegion, NoNode))
		region.Find(overlaySelector).Each(func(_ int, overlay *goquery.Selection) {
			oid := s.add(newNode(overlay, KindOverlay, rid))
			s.walkChildren(overlay, oid)
		})
	})
	return s
}

// walkChildren captures the direct children of sel whose kind is
// walkable, in document order, and recurses into each.
func (s *Snapshot) walkChildren(sel *goquery.Selection, parent NodeID) {
	sel.Children().Each(func(_ int, child *goquery.Selection) {
		id, ok := child.Attr(Attr)
		if !ok || id == ContentID {
			return
		}
		kind, ok := KindOf(id)
		if !ok || !kind.Walkable() {
			return
		}

		n := newNode(child, kind, parent)
		if kind == KindText {
			content := child.Find(contentSelector).First()
			if content.Length() == 0 {
				s.Issues = append(s.Issues, &MissingContentError{ID: n.ID, Ref: n.Ref})
			} else {
				n.Text = content.Text()
				n.HasText = true
			}
		}

		nid := s.add(n)
		s.walkChildren(child, nid)
	})
}

func newNode(sel *goquery.Selection, kind Kind, parent NodeID) Node {
	id, _ := sel.Attr(Attr)
	return Node{
		ID:     strings.TrimSpace(id),
		Kind:   kind,
		Ref:    ElementRef(xpathOf(sel.Nodes[0])),
		Parent: parent,
	}
}
