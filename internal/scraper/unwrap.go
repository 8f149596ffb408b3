// Package scraper implements listing retrieval, payload unwrapping and the
// fetch-and-upsert harvest.
package scraper

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
)

// Paths into the listing page's data-props JSON.
var (
	totalCountPath   = []string{"resources", "promotionsIdOrType", "data", "totalCount"}
	productItemsPath = []string{"resources", "promotionsIdOrType", "data", "results", "productItems"}
)

// ExtractProps returns the data-props attribute of the page's <body>, which
// carries the listing as JSON.
func ExtractProps(page []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	body := findElement(doc, "body")
	if body == nil {
		return nil, fmt.Errorf("page has no <body>")
	}
	for _, a := range body.Attr {
		if a.Key == "data-props" {
			return []byte(a.Val), nil
		}
	}
	return nil, fmt.Errorf("<body> has no data-props attribute")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// DeepGet walks nested JSON objects along path and returns the value at the
// end, or nil when a key is missing or an intermediate value is not an
// object. path is never modified.
func DeepGet(data map[string]any, path ...string) any {
	if len(path) == 0 {
		return data
	}
	cur := data
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			return v
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}
