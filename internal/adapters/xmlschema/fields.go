package xmlschema

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const nsXS = "http://www.w3.org/2001/XMLSchema"

var xsNS = map[string]string{"xs": nsXS}

// Node-set queries are shared: selection clones the compiled query.
var (
	sequenceElements = compileXS("//xs:sequence/xs:element")
	documentation    = compileXS("xs:annotation/xs:documentation")
	globalElements   = compileXS("/xs:schema/xs:element[@name]")
	namedTypes       = compileXS("/xs:schema/xs:complexType[@name]")
	inlineSequence   = compileXS("xs:complexType//xs:sequence/xs:element")
	nestedSequence   = compileXS(".//xs:sequence/xs:element")
)

// String queries are evaluated in place and compiled per call.
const (
	restrictionBase = "string(xs:simpleType/xs:restriction/@base)"
	targetNamespace = "string(/xs:schema/@targetNamespace)"
	rootType        = "string(/xs:schema/xs:element/@type)"
)

func compileXS(expr string) *xpath.Expr {
	e, err := xpath.CompileWithNS(expr, xsNS)
	if err != nil {
		panic(err)
	}
	return e
}

// Introspector reads field descriptors out of XSD documents.
type Introspector struct{}

func NewIntrospector() *Introspector { return &Introspector{} }

// Fields describes every element of every sequence in document order.
func (Introspector) Fields(raw []byte) ([]domain.FieldInfo, error) {
	doc, err := parseSchema(raw)
	if err != nil {
		return nil, err
	}
	return fieldsOf(xmlquery.QuerySelectorAll(doc, sequenceElements)), nil
}

// TypeDetails degrades to empty strings when the document cannot be read.
func (Introspector) TypeDetails(raw []byte) domain.TypeDetails {
	doc, err := parseSchema(raw)
	if err != nil {
		return domain.TypeDetails{}
	}
	details := domain.TypeDetails{
		Namespace: evalString(doc, targetNamespace),
		TypeName:  strings.TrimSuffix(evalString(doc, rootType), "Type"),
	}
	if prefix, layer, ok := strings.Cut(details.TypeName, ":"); ok {
		details.Prefix = prefix
		details.LayerName = layer
	}
	return details
}

// LayerFields maps every global element to the fields of its type. Both
// inline complex types and named types declared in the same document are
// followed.
func (Introspector) LayerFields(raw []byte) (map[string][]domain.FieldInfo, error) {
	doc, err := parseSchema(raw)
	if err != nil {
		return nil, err
	}

	named := map[string]*xmlquery.Node{}
	for _, ct := range xmlquery.QuerySelectorAll(doc, namedTypes) {
		named[ct.SelectAttr("name")] = ct
	}

	out := map[string][]domain.FieldInfo{}
	for _, el := range xmlquery.QuerySelectorAll(doc, globalElements) {
		fields := fieldsOf(xmlquery.QuerySelectorAll(el, inlineSequence))
		if len(fields) == 0 {
			if ct, ok := named[localName(el.SelectAttr("type"))]; ok {
				fields = fieldsOf(xmlquery.QuerySelectorAll(ct, nestedSequence))
			}
		}
		out[el.SelectAttr("name")] = fields
	}
	return out, nil
}

func fieldsOf(nodes []*xmlquery.Node) []domain.FieldInfo {
	out := make([]domain.FieldInfo, 0, len(nodes))
	for _, el := range nodes {
		name := el.SelectAttr("name")
		if name == "" {
			name = localName(el.SelectAttr("ref"))
		}
		typ := el.SelectAttr("type")
		if typ == "" {
			typ = evalString(el, restrictionBase)
		}
		field := domain.FieldInfo{
			Name:     name,
			Type:     localName(typ),
			Optional: el.SelectAttr("minOccurs") == "0",
		}
		if doc := xmlquery.QuerySelector(el, documentation); doc != nil {
			text := doc.InnerText()
			field.Description = &text
		}
		out = append(out, field)
	}
	return out
}

func parseSchema(raw []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchema, err)
	}
	return doc, nil
}

func evalString(n *xmlquery.Node, expr string) string {
	s, _ := compileXS(expr).Evaluate(xmlquery.CreateXPathNavigator(n)).(string)
	return s
}

// localName strips a namespace prefix.
func localName(qname string) string {
	if i := strings.LastIndex(qname, ":"); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

var _ ports.SchemaIntrospector = Introspector{}
