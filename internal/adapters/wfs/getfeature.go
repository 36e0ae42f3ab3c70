package wfs

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// qname is an optionally prefixed XML element name. The XPath compiler
// ignores trailing tokens, so anything else is rejected before compiling.
var qname = regexp.MustCompile(`^([A-Za-z_][\w.-]*:)?[A-Za-z_][\w.-]*$`)

// GetFeature is one GetFeature request against a WFS. The request URL is
// fixed at construction and is empty when the capabilities could not
// produce one.
type GetFeature struct {
	URL         string
	FeatureType string
	doc         *document
}

func NewGetFeature(caps *Capabilities, featureType string, count int, client *http.Client) *GetFeature {
	u, _ := caps.GetFeatureURL(featureType, count)
	return &GetFeature{URL: u, FeatureType: featureType, doc: newDocument(u, client)}
}

// Validate selects every element of the feature type from the response and
// checks each one against schema. Fetch, parse and selection failures come
// back as an invalid result.
func (g *GetFeature) Validate(ctx context.Context, schema ports.ElementValidator) *Results {
	root, err := g.doc.load(ctx)
	if err != nil {
		return failedResults(err)
	}
	elements, err := g.elements(root)
	if err != nil {
		return failedResults(err)
	}
	return NewResults(elements, schema)
}

func (g *GetFeature) elements(root *xmlquery.Node) ([]Element, error) {
	ns := declarations(root)
	// XPath 1.0 has no way to address the default namespace.
	delete(ns, "")

	if !qname.MatchString(g.FeatureType) {
		return nil, fmt.Errorf("%w: //%s: feature type is not an element name", domain.ErrXPath, g.FeatureType)
	}
	if prefix, _, ok := strings.Cut(g.FeatureType, ":"); ok {
		if _, known := ns[prefix]; !known {
			return nil, fmt.Errorf("%w: //%s: namespace prefix %q is not declared", domain.ErrXPath, g.FeatureType, prefix)
		}
	}
	expr, err := xpath.CompileWithNS("//"+g.FeatureType, ns)
	if err != nil {
		return nil, fmt.Errorf("%w: //%s: %v", domain.ErrXPath, g.FeatureType, err)
	}

	nodes := xmlquery.QuerySelectorAll(root, expr)
	out := make([]Element, 0, len(nodes))
	for i, n := range nodes {
		scope := inScope(n)
		out = append(out, Element{
			ID:         elementID(n, i),
			Doc:        standalone(n, scope),
			Namespaces: scope,
		})
	}
	return out, nil
}

// standalone serializes n as its own document, re-declaring every namespace
// it inherits from its ancestors.
func standalone(n *xmlquery.Node, scope map[string]string) []byte {
	out := n.OutputXML(true)
	tag := n.Data
	if n.Prefix != "" {
		tag = n.Prefix + ":" + n.Data
	}
	if !strings.HasPrefix(out, "<"+tag) {
		return []byte(out)
	}

	own := declarations(n)
	prefixes := make([]string, 0, len(scope))
	for prefix := range scope {
		if _, declared := own[prefix]; !declared {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)

	var b strings.Builder
	b.WriteString("<" + tag)
	for _, prefix := range prefixes {
		name := "xmlns"
		if prefix != "" {
			name += ":" + prefix
		}
		fmt.Fprintf(&b, ` %s="%s"`, name, escapeAttr(scope[prefix]))
	}
	b.WriteString(out[len(tag)+1:])
	return []byte(b.String())
}

func elementID(n *xmlquery.Node, index int) string {
	for _, attr := range []string{"gml:id", "fid", "id"} {
		if id := n.SelectAttr(attr); id != "" {
			return id
		}
	}
	name := n.Data
	if n.Prefix != "" {
		name = n.Prefix + ":" + n.Data
	}
	return fmt.Sprintf("%s[%d]", name, index+1)
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
