package structure

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// xpathOf computes the XPath of an element node in its parsed document.
// Same-tag siblings get a 1-based index; unique tags do not, so the result
// matches what document.evaluate expects in the live page.
func xpathOf(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		parts = append(parts, step(cur))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func step(n *html.Node) string {
	name := strings.ToLower(n.Data)
	if n.Parent == nil {
		return name
	}

	idx, total := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || strings.ToLower(sib.Data) != name {
			continue
		}
		total++
		if sib == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", name, idx)
	}
	return name
}
