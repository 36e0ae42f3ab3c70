package wfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/usgin/modelmanager/internal/core/domain"
)

const maxDocumentSize = 32 << 20

// document is a remote XML document fetched and parsed at most once.
type document struct {
	url    string
	client *http.Client
	loaded bool
	root   *xmlquery.Node
	err    error
}

func newDocument(url string, client *http.Client) *document {
	return &document{url: url, client: client}
}

// load returns the root element. Repeat calls return the first outcome
// without another request.
func (d *document) load(ctx context.Context) (*xmlquery.Node, error) {
	if d.loaded {
		return d.root, d.err
	}
	d.loaded = true

	raw, err := fetch(ctx, d.client, d.url)
	if err != nil {
		d.err = err
		return nil, err
	}
	d.root, d.err = parse(raw)
	return d.root, d.err
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: no url to request", domain.ErrFetch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrFetch, url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrFetch, err)
	}
	return raw, nil
}

func parse(raw []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	root := rootElement(doc)
	if root == nil {
		return nil, fmt.Errorf("%w: document has no root element", domain.ErrParse)
	}
	return root, nil
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// declarations returns the namespace declarations made on n, keyed by
// prefix. The default namespace has the empty prefix.
func declarations(n *xmlquery.Node) map[string]string {
	out := map[string]string{}
	for _, a := range n.Attr {
		switch {
		case a.Name.Space == "xmlns":
			out[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			out[""] = a.Value
		}
	}
	return out
}

// inScope collects every namespace declaration visible at n. Inner
// declarations shadow outer ones.
func inScope(n *xmlquery.Node) map[string]string {
	out := map[string]string{}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != xmlquery.ElementNode {
			continue
		}
		for prefix, uri := range declarations(cur) {
			if _, seen := out[prefix]; !seen {
				out[prefix] = uri
			}
		}
	}
	return out
}
