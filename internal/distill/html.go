package distill

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLMetadata is the page-level text pulled out of raw HTML.
type HTMLMetadata struct {
	Title       string
	Description string
}

// ExtractHTMLMetadata returns the <title> and meta description of a document.
// Unparseable input yields an empty result.
func ExtractHTMLMetadata(raw string) HTMLMetadata {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return HTMLMetadata{}
	}
	var out HTMLMetadata
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if out.Title == "" {
					out.Title = collapse(nodeText(n))
				}
			case atom.Meta:
				if out.Description == "" && isDescription(n) {
					out.Description = collapse(attr(n, "content"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isDescription(n *html.Node) bool {
	name := strings.ToLower(attr(n, "name"))
	prop := strings.ToLower(attr(n, "property"))
	return name == "description" || prop == "og:description"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
